package patient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/medassist/medassist/internal/platform/backend"
)

type repoHTTP struct {
	client *backend.Client
}

// NewRepoHTTP returns a Repository backed by the /patients endpoints.
func NewRepoHTTP(client *backend.Client) Repository {
	return &repoHTTP{client: client}
}

func (r *repoHTTP) List(ctx context.Context) ([]*Patient, error) {
	var out []*Patient
	if err := r.client.GetJSON(ctx, "/patients/", nil, &out); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return out, nil
}

func (r *repoHTTP) GetByID(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	if err := r.client.GetJSON(ctx, "/patients/"+backend.PathEscape(id), nil, &p); err != nil {
		return nil, notFound(err, "get patient %s", id)
	}
	return &p, nil
}

func (r *repoHTTP) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	var p Patient
	if err := r.client.GetJSON(ctx, "/patients/mrn/"+backend.PathEscape(mrn), nil, &p); err != nil {
		return nil, notFound(err, "get patient by mrn %s", mrn)
	}
	return &p, nil
}

func (r *repoHTTP) Search(ctx context.Context, query string) ([]*Patient, error) {
	var out struct {
		Patients []*Patient `json:"patients"`
		Total    int        `json:"total"`
	}
	req := map[string]string{"query": query}
	if err := r.client.PostJSON(ctx, "/patients/search", nil, req, &out); err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return out.Patients, nil
}

func (r *repoHTTP) Create(ctx context.Context, in *Input) (*Patient, error) {
	var p Patient
	if err := r.client.PostJSON(ctx, "/patients/", nil, in, &p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &p, nil
}

func (r *repoHTTP) Update(ctx context.Context, id string, in *Input) (*Patient, error) {
	var p Patient
	if err := r.client.PutJSON(ctx, "/patients/"+backend.PathEscape(id), in, &p); err != nil {
		return nil, notFound(err, "update patient %s", id)
	}
	return &p, nil
}

func (r *repoHTTP) Delete(ctx context.Context, id string) error {
	if err := r.client.Delete(ctx, "/patients/"+backend.PathEscape(id), nil, nil); err != nil {
		return notFound(err, "delete patient %s", id)
	}
	return nil
}

func notFound(err error, format string, args ...any) error {
	if backend.StatusCode(err) == http.StatusNotFound {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
