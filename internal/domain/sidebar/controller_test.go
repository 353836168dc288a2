package sidebar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/conversation/conversationtest"
)

type fakeWorkspace struct {
	mu      sync.Mutex
	store   *conversation.Store
	opened  []string
	closed  []string
	openErr error
}

func (w *fakeWorkspace) Open(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opened = append(w.opened, id)
	return w.openErr
}

func (w *fakeWorkspace) Begin(ctx context.Context) (string, error) {
	return w.store.Create(ctx)
}

func (w *fakeWorkspace) Close(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = append(w.closed, id)
}

func newTestController(interval, settle time.Duration) (*Controller, *conversationtest.Backend, *fakeWorkspace) {
	be := conversationtest.NewBackend()
	store := conversation.NewStore(conversation.KindDocument, be, zerolog.Nop())
	ws := &fakeWorkspace{store: store}
	return NewController(store, ws, interval, settle, zerolog.Nop()), be, ws
}

func ids(list []conversation.Summary) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ConversationID
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func countOp(calls []string, op string) int {
	n := 0
	for _, c := range calls {
		if c == op {
			n++
		}
	}
	return n
}

func TestController_RefreshKeepsKindsApart(t *testing.T) {
	ctrl, be, _ := newTestController(time.Hour, time.Hour)
	doc := be.Seed(conversation.KindDocument, "Doc", nil, "")
	be.Seed(conversation.KindMedical, "Chat", nil, "")

	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ids(ctrl.Items())
	if len(got) != 1 || got[0] != doc {
		t.Errorf("expected only the document conversation, got %v", got)
	}
}

func TestController_RefreshFailureKeepsList(t *testing.T) {
	ctrl, be, _ := newTestController(time.Hour, time.Hour)
	be.Seed(conversation.KindDocument, "Doc", nil, "")
	ctrl.Refresh(context.Background())

	be.FailOn("list", errors.New("backend down"))
	if err := ctrl.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(ctrl.Items()) != 1 {
		t.Error("expected previous list kept")
	}
}

func TestController_PollsUntilStopped(t *testing.T) {
	ctrl, be, _ := newTestController(10*time.Millisecond, time.Hour)
	ctrl.Start(context.Background())

	id := be.Seed(conversation.KindDocument, "Later", nil, "")
	waitFor(t, func() bool {
		got := ids(ctrl.Items())
		return len(got) == 1 && got[0] == id
	})

	ctrl.Stop()
	before := countOp(be.Calls(), "list")
	time.Sleep(40 * time.Millisecond)
	if after := countOp(be.Calls(), "list"); after != before {
		t.Errorf("expected no polls after Stop, got %d more", after-before)
	}
}

func TestController_CreateActivatesAndSettles(t *testing.T) {
	ctrl, _, _ := newTestController(time.Hour, 5*time.Millisecond)
	defer ctrl.Stop()

	id, err := ctrl.Create(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Active() != id {
		t.Errorf("expected %s active, got %s", id, ctrl.Active())
	}
	waitFor(t, func() bool { return len(ctrl.Items()) == 1 })
}

func TestController_SelectOpensWorkspace(t *testing.T) {
	ctrl, be, ws := newTestController(time.Hour, time.Hour)
	id := be.Seed(conversation.KindDocument, "Doc", nil, "")

	if err := ctrl.Select(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Active() != id || len(ws.opened) != 1 || ws.opened[0] != id {
		t.Errorf("expected %s opened and active", id)
	}

	ws.openErr = errors.New("backend down")
	if err := ctrl.Select(context.Background(), id); err == nil {
		t.Error("expected open error surfaced")
	}
}

func TestController_RenameUpdatesTitle(t *testing.T) {
	ctrl, be, _ := newTestController(time.Hour, time.Hour)
	defer ctrl.Stop()
	id := be.Seed(conversation.KindDocument, "Old", nil, "")
	ctrl.Refresh(context.Background())

	if err := ctrl.Rename(context.Background(), id, "  Jane Doe follow-up "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ctrl.Items()[0].Title; got != "Jane Doe follow-up" {
		t.Errorf("expected trimmed title, got %q", got)
	}

	calls := len(be.Calls())
	if err := ctrl.Rename(context.Background(), id, "   "); !errors.Is(err, conversation.ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	if len(be.Calls()) != calls {
		t.Error("expected no backend call for an empty title")
	}
}

func TestController_DeleteActiveClosesWorkspace(t *testing.T) {
	ctrl, be, ws := newTestController(time.Hour, time.Hour)
	defer ctrl.Stop()
	ctx := context.Background()
	keep := be.Seed(conversation.KindDocument, "Keep", nil, "")
	gone := be.Seed(conversation.KindDocument, "Gone", nil, "")
	ctrl.Refresh(ctx)
	ctrl.Select(ctx, gone)

	if err := ctrl.Delete(ctx, gone); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Active() != "" {
		t.Error("expected no active conversation")
	}
	if len(ws.closed) != 1 || ws.closed[0] != gone {
		t.Errorf("expected workspace closed for %s, got %v", gone, ws.closed)
	}
	if got := ids(ctrl.Items()); len(got) != 1 || got[0] != keep {
		t.Errorf("expected only %s listed, got %v", keep, got)
	}
}

func TestController_DeleteInactiveLeavesWorkspace(t *testing.T) {
	ctrl, be, ws := newTestController(time.Hour, time.Hour)
	defer ctrl.Stop()
	ctx := context.Background()
	active := be.Seed(conversation.KindDocument, "Active", nil, "")
	other := be.Seed(conversation.KindDocument, "Other", nil, "")
	ctrl.Select(ctx, active)

	if err := ctrl.Delete(ctx, other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Active() != active || len(ws.closed) != 0 {
		t.Error("expected active conversation untouched")
	}
}

func TestController_StopCancelsSettleRefresh(t *testing.T) {
	ctrl, be, _ := newTestController(time.Hour, 20*time.Millisecond)
	ctrl.RefreshSoon()
	ctrl.Stop()

	time.Sleep(60 * time.Millisecond)
	if n := countOp(be.Calls(), "list"); n != 0 {
		t.Errorf("expected settle refresh cancelled, got %d lists", n)
	}
}

// gatedLister blocks the i-th List call until a result is sent on gates[i].
type gatedLister struct {
	mu      sync.Mutex
	n       int
	gates   []chan []conversation.Summary
	entered chan int
}

func newGatedLister(calls int) *gatedLister {
	g := &gatedLister{entered: make(chan int, calls)}
	for i := 0; i < calls; i++ {
		g.gates = append(g.gates, make(chan []conversation.Summary, 1))
	}
	return g
}

func (g *gatedLister) Kind() conversation.Kind { return conversation.KindDocument }

func (g *gatedLister) List(context.Context) ([]conversation.Summary, error) {
	g.mu.Lock()
	i := g.n
	g.n++
	g.mu.Unlock()
	g.entered <- i
	return <-g.gates[i], nil
}

func (g *gatedLister) Rename(context.Context, string, string) error { return nil }

func (g *gatedLister) Delete(context.Context, string) error { return nil }

func summaries(ids ...string) []conversation.Summary {
	out := make([]conversation.Summary, len(ids))
	for i, id := range ids {
		out[i] = conversation.Summary{ConversationID: id, Title: id}
	}
	return out
}

func TestController_IgnoresOutOfOrderResult(t *testing.T) {
	g := newGatedLister(2)
	ctrl := NewController(g, &fakeWorkspace{}, time.Hour, time.Hour, zerolog.Nop())
	ctx := context.Background()

	doneOld := make(chan struct{})
	go func() { ctrl.Refresh(ctx); close(doneOld) }()
	<-g.entered

	doneNew := make(chan struct{})
	go func() { ctrl.Refresh(ctx); close(doneNew) }()
	<-g.entered

	g.gates[1] <- summaries("c2")
	<-doneNew
	g.gates[0] <- summaries("c1", "c2")
	<-doneOld

	if got := ids(ctrl.Items()); len(got) != 1 || got[0] != "c2" {
		t.Errorf("expected the newer result kept, got %v", got)
	}
}

func TestController_DeletedEntryNotResurrected(t *testing.T) {
	g := newGatedLister(2)
	ctrl := NewController(g, &fakeWorkspace{}, time.Hour, time.Hour, zerolog.Nop())
	defer ctrl.Stop()
	ctx := context.Background()

	done := make(chan struct{})
	go func() { ctrl.Refresh(ctx); close(done) }()
	<-g.entered

	if err := ctrl.Delete(ctx, "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.gates[0] <- summaries("c1", "c2")
	<-done

	if got := ids(ctrl.Items()); len(got) != 1 || got[0] != "c2" {
		t.Errorf("expected deleted entry hidden from an earlier poll, got %v", got)
	}

	go ctrl.Refresh(ctx)
	<-g.entered
	g.gates[1] <- summaries("c2")
	waitFor(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return len(ctrl.tomb) == 0
	})
}
