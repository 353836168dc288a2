package conversation

import (
	"context"

	"github.com/medassist/medassist/internal/domain/patient"
)

// Backend is the conversation storage API. Every call names the kind so
// namespaces stay separate.
type Backend interface {
	Create(ctx context.Context, kind Kind) (string, error)
	List(ctx context.Context, kind Kind) ([]Summary, error)
	Messages(ctx context.Context, id string, kind Kind) (*HistoryRecord, error)
	SaveMessage(ctx context.Context, id string, kind Kind, rec Record) error
	Rename(ctx context.Context, id string, kind Kind, title string) error
	Delete(ctx context.Context, id string, kind Kind) error
	// Patient association; only document conversations carry one.
	PatientData(ctx context.Context, id string) (*patient.Patient, error)
	SavePatient(ctx context.Context, id string, p *patient.Patient) error
}
