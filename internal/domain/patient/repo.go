package patient

import "context"

type Repository interface {
	List(ctx context.Context) ([]*Patient, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Search(ctx context.Context, query string) ([]*Patient, error)
	Create(ctx context.Context, in *Input) (*Patient, error)
	Update(ctx context.Context, id string, in *Input) (*Patient, error)
	Delete(ctx context.Context, id string) error
}
