package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Service is the patient directory client: search and CRUD against the
// backend plus local filtering of an already fetched list.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Search(ctx context.Context, query string) ([]*Patient, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalid)
	}
	return s.repo.Search(ctx, query)
}

func (s *Service) List(ctx context.Context) ([]*Patient, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	if mrn == "" {
		return nil, fmt.Errorf("%w: medicalRecordNumber is required", ErrInvalid)
	}
	return s.repo.GetByMRN(ctx, mrn)
}

// Create validates locally before issuing any request.
func (s *Service) Create(ctx context.Context, in *Input) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.Create(ctx, in)
	if err != nil {
		s.logger.Error().Err(err).Msg("create patient failed")
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID).Msg("patient created")
	return p, nil
}

func (s *Service) Update(ctx context.Context, id string, in *Input) (*Patient, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.Update(ctx, id, in)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", id).Msg("update patient failed")
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("patient_id", id).Msg("delete patient failed")
		return err
	}
	return nil
}

// Filter returns the patients whose name, MRN, email or phone contains query,
// case-insensitively. An empty query returns the list unchanged. It never
// touches the backend.
func Filter(patients []*Patient, query string) []*Patient {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return patients
	}
	var out []*Patient
	for _, p := range patients {
		if contains(p.Name, q) || contains(p.MedicalRecordNumber, q) ||
			contains(p.Email, q) || contains(p.Phone, q) {
			out = append(out, p)
		}
	}
	return out
}

func contains(field, q string) bool {
	return field != "" && strings.Contains(strings.ToLower(field), q)
}

// MatchExact finds the candidate whose name or MRN equals input, ignoring
// case and surrounding whitespace.
func MatchExact(candidates []*Patient, input string) *Patient {
	in := strings.TrimSpace(input)
	if in == "" {
		return nil
	}
	for _, p := range candidates {
		if strings.EqualFold(p.Name, in) || strings.EqualFold(p.MedicalRecordNumber, in) {
			return p
		}
	}
	return nil
}
