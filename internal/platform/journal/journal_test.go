package journal

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

func TestMemoryRecorder_RecordFillsDefaults(t *testing.T) {
	rec := NewMemoryRecorder()
	e := &Entry{ConversationID: "c1", Kind: "document", Action: "search"}
	if err := rec.Record(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if e.RecordedAt.IsZero() {
		t.Error("expected recorded_at to be set")
	}
	if e.Outcome != OutcomeOK {
		t.Errorf("expected default outcome ok, got %q", e.Outcome)
	}
}

func TestMemoryRecorder_ListFiltersNewestFirst(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rec.Record(ctx, &Entry{ConversationID: "c1", Action: "search", RecordedAt: base})
	rec.Record(ctx, &Entry{ConversationID: "c2", Action: "search", RecordedAt: base.Add(time.Second)})
	rec.Record(ctx, &Entry{ConversationID: "c1", Action: "select", RecordedAt: base.Add(2 * time.Second)})

	got, _ := rec.List(ctx, "c1", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != "select" || got[1].Action != "search" {
		t.Errorf("expected newest first, got %s then %s", got[0].Action, got[1].Action)
	}

	all, _ := rec.List(ctx, "", 1)
	if len(all) != 1 {
		t.Errorf("expected limit applied, got %d", len(all))
	}

	if acts := rec.Actions(); len(acts) != 3 || acts[0] != "search" {
		t.Errorf("unexpected actions %v", acts)
	}
}

func TestMigrations_ContainsJournalSchema(t *testing.T) {
	data, err := fs.ReadFile(Migrations(), "001_journal.sql")
	if err != nil {
		t.Fatalf("expected embedded migration: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected migration content")
	}
}

func TestHandler_List(t *testing.T) {
	rec := NewMemoryRecorder()
	rec.Record(context.Background(), &Entry{ConversationID: "c1", Action: "search"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/journal?conversation_id=c1", nil)
	w := httptest.NewRecorder()
	c := e.NewContext(req, w)

	if err := NewHandler(rec).List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []Entry
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Action != "search" {
		t.Errorf("unexpected entries %+v", got)
	}
}

func TestHandler_ListBadLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/journal?limit=zero", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := NewHandler(Nop{}).List(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

// TestPGRecorder_RoundTrip needs a migrated database in DATABASE_URL.
func TestPGRecorder_RoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	rec := NewPGRecorder(pool)
	convID := "test-" + uuid.NewString()
	if err := rec.Record(ctx, &Entry{ConversationID: convID, Kind: "document", Action: "search", ToStep: "patient_selection"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := rec.List(ctx, convID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ToStep != "patient_selection" {
		t.Errorf("unexpected entries %+v", got)
	}
}
