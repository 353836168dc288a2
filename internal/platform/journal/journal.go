// Package journal records workflow transitions and conversation actions so a
// session can be reconstructed after the fact. Recording is best effort.
package journal

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the journal schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

// Entry is one recorded action.
type Entry struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"`
	Action         string    `json:"action"`
	FromStep       string    `json:"from_step,omitempty"`
	ToStep         string    `json:"to_step,omitempty"`
	Outcome        string    `json:"outcome"`
	Error          string    `json:"error,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, conversationID string, limit int) ([]*Entry, error)
}

func prepare(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}
}

// Nop discards everything. It is used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

func (Nop) List(context.Context, string, int) ([]*Entry, error) { return nil, nil }

// MemoryRecorder keeps entries in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, e *Entry) error {
	prepare(e)
	cp := *e
	m.mu.Lock()
	m.entries = append(m.entries, &cp)
	m.mu.Unlock()
	return nil
}

// List returns the entries of conversationID, newest first. An empty id
// lists every entry; a non-positive limit means no limit.
func (m *MemoryRecorder) List(_ context.Context, conversationID string, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if conversationID != "" && e.ConversationID != conversationID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Actions returns the recorded action names in recording order.
func (m *MemoryRecorder) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Action
	}
	return out
}
