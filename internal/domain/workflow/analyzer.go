package workflow

import (
	"context"
	"errors"

	"github.com/medassist/medassist/internal/platform/backend"
	"github.com/medassist/medassist/internal/platform/upload"
)

// AnalysisRequest is one document analysis turn.
type AnalysisRequest struct {
	File               *upload.File
	PatientInformation string
	Query              string
	ConversationID     string
}

type AnalysisResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// Analyzer runs a document analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error)
}

type analyzerHTTP struct {
	client *backend.Client
}

// NewAnalyzerHTTP posts analysis requests to /thinker.
func NewAnalyzerHTTP(client *backend.Client) Analyzer {
	return &analyzerHTTP{client: client}
}

var analysisFields = []string{"patient_information", "query", "conversation_id"}

func (a *analyzerHTTP) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResponse, error) {
	fields := map[string]string{
		"patient_information": req.PatientInformation,
		"query":               req.Query,
		"conversation_id":     req.ConversationID,
	}
	var files []backend.FilePart
	if req.File != nil {
		files = append(files, backend.FilePart{Field: "file", FileName: req.File.Name, Data: req.File.Data})
	}

	var out struct {
		Response       *string `json:"response"`
		ConversationID string  `json:"conversation_id"`
	}
	if err := a.client.PostMultipart(ctx, "/thinker", analysisFields, fields, files, &out); err != nil {
		return nil, err
	}
	if out.Response == nil {
		return nil, errors.New("analysis response has no response field")
	}
	return &AnalysisResponse{Response: *out.Response, ConversationID: out.ConversationID}, nil
}
