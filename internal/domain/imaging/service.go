// Package imaging sends a medical image to the backend for analysis.
package imaging

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/internal/platform/upload"
)

const ErrorText = "Error analyzing image. Please try again."

type Service struct {
	client *backend.Client
	logger zerolog.Logger
}

func NewService(client *backend.Client, logger zerolog.Logger) *Service {
	return &Service{
		client: client,
		logger: logger.With().Str("component", "imaging").Logger(),
	}
}

// Analyze returns the cleaned analysis of f. Files that are not images are
// rejected before any request is made.
func (s *Service) Analyze(ctx context.Context, f upload.File) (string, error) {
	ct, err := upload.ValidateImage(f.Name, f.Data)
	if err != nil {
		return "", err
	}
	var out struct {
		Analysis *string `json:"analysis"`
	}
	err = s.client.PostMultipart(ctx, "/analyze-image/", nil, nil, []backend.FilePart{{
		Field:       "file",
		FileName:    f.Name,
		ContentType: ct,
		Data:        f.Data,
	}}, &out)
	if err != nil {
		s.logger.Error().Err(err).Str("file", f.Name).Msg("image analysis failed")
		return "", err
	}
	if out.Analysis == nil {
		return "", errors.New("image analysis has no analysis field")
	}
	s.logger.Info().Str("file", f.Name).Str("content_type", ct).Msg("image analyzed")
	return conversation.CleanText(*out.Analysis), nil
}
