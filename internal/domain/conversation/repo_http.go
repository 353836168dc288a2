package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/backend"
)

// BackendHTTP implements Backend over the conversation endpoints.
type BackendHTTP struct {
	client *backend.Client
}

// NewBackendHTTP returns a BackendHTTP using client.
func NewBackendHTTP(client *backend.Client) *BackendHTTP {
	return &BackendHTTP{client: client}
}

func kindQuery(kind Kind) url.Values {
	return url.Values{"conversation_type": {string(kind)}}
}

func conversationPath(id, suffix string) string {
	return "/conversation/" + backend.PathEscape(id) + suffix
}

func (b *BackendHTTP) Create(ctx context.Context, kind Kind) (string, error) {
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := b.client.Post(ctx, "/new-"+string(kind)+"-conversation", nil, &out); err != nil {
		return "", fmt.Errorf("create %s conversation: %w", kind, err)
	}
	if out.ConversationID == "" {
		return "", fmt.Errorf("create %s conversation: empty conversation_id", kind)
	}
	return out.ConversationID, nil
}

func (b *BackendHTTP) List(ctx context.Context, kind Kind) ([]Summary, error) {
	var out []Summary
	if err := b.client.GetJSON(ctx, "/"+string(kind)+"-conversations", nil, &out); err != nil {
		return nil, fmt.Errorf("list %s conversations: %w", kind, err)
	}
	return out, nil
}

// ListAll reads the combined list used by the generic sidebar. It is not part
// of Backend because controllers are always scoped to one kind.
func (b *BackendHTTP) ListAll(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := b.client.GetJSON(ctx, "/conversations", nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

func (b *BackendHTTP) Messages(ctx context.Context, id string, kind Kind) (*HistoryRecord, error) {
	var out HistoryRecord
	if err := b.client.GetJSON(ctx, conversationPath(id, "/messages"), kindQuery(kind), &out); err != nil {
		return nil, fmt.Errorf("load %s conversation %s: %w", kind, id, err)
	}
	return &out, nil
}

func (b *BackendHTTP) SaveMessage(ctx context.Context, id string, kind Kind, rec Record) error {
	if err := b.client.PostJSON(ctx, conversationPath(id, "/save-message"), kindQuery(kind), rec, nil); err != nil {
		return fmt.Errorf("save message to %s: %w", id, err)
	}
	return nil
}

func (b *BackendHTTP) Rename(ctx context.Context, id string, kind Kind, title string) error {
	q := kindQuery(kind)
	q.Set("title", title)
	if err := b.client.Post(ctx, conversationPath(id, "/rename"), q, nil); err != nil {
		return fmt.Errorf("rename conversation %s: %w", id, err)
	}
	return nil
}

func (b *BackendHTTP) Delete(ctx context.Context, id string, kind Kind) error {
	if err := b.client.Delete(ctx, conversationPath(id, ""), kindQuery(kind), nil); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (b *BackendHTTP) PatientData(ctx context.Context, id string) (*patient.Patient, error) {
	var out struct {
		PatientData json.RawMessage `json:"patient_data"`
	}
	if err := b.client.GetJSON(ctx, conversationPath(id, "/patient-data"), kindQuery(KindDocument), &out); err != nil {
		return nil, fmt.Errorf("load patient for %s: %w", id, err)
	}
	if len(out.PatientData) == 0 || string(out.PatientData) == "null" {
		return nil, nil
	}
	var p patient.Patient
	if err := json.Unmarshal(out.PatientData, &p); err != nil {
		return nil, fmt.Errorf("decode patient for %s: %w", id, err)
	}
	return &p, nil
}

// SavePatient stores p as the conversation's patient. A nil p clears it.
func (b *BackendHTTP) SavePatient(ctx context.Context, id string, p *patient.Patient) error {
	if err := b.client.PostJSON(ctx, conversationPath(id, "/save-patient"), kindQuery(KindDocument), p, nil); err != nil {
		return fmt.Errorf("save patient for %s: %w", id, err)
	}
	return nil
}
