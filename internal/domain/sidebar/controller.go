// Package sidebar keeps the conversation list of one kind in sync with the
// backend and tracks which conversation is active.
package sidebar

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/conversation"
)

// Lister is the part of a conversation store the sidebar drives.
type Lister interface {
	Kind() conversation.Kind
	List(ctx context.Context) ([]conversation.Summary, error)
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
}

// Workspace is the view showing the active conversation.
type Workspace interface {
	Open(ctx context.Context, id string) error
	Begin(ctx context.Context) (string, error)
	Close(id string)
}

const refreshTimeout = 10 * time.Second

// Controller polls the backend for summaries and applies create, rename,
// delete and select.
//
// Every refresh is numbered when issued. A result older than the last applied
// one is dropped, and a deleted id stays hidden from results issued before
// the delete, so a late poll cannot bring it back.
type Controller struct {
	store    Lister
	ws       Workspace
	logger   zerolog.Logger
	interval time.Duration
	settle   time.Duration

	mu      sync.Mutex
	items   []conversation.Summary
	active  string
	issued  uint64
	applied uint64
	tomb    map[string]uint64
	base    context.Context
	cancel  context.CancelFunc
	reset   chan struct{}
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewController(store Lister, ws Workspace, interval, settle time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		ws:       ws,
		logger:   logger.With().Str("component", "sidebar").Str("kind", string(store.Kind())).Logger(),
		interval: interval,
		settle:   settle,
		tomb:     make(map[string]uint64),
		base:     context.Background(),
		reset:    make(chan struct{}, 1),
	}
}

func (c *Controller) Kind() conversation.Kind {
	return c.store.Kind()
}

// Start begins polling. It refreshes immediately and then every interval
// until Stop is called or ctx is cancelled.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.base = ctx
	c.cancel = cancel
	c.stopped = false
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(ctx)
}

func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()
	c.poll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.reset:
			ticker.Reset(c.interval)
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Controller) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	c.Refresh(ctx)
}

// Stop ends polling and cancels any pending settle refresh.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// Refresh fetches the list once. Failures are logged and the previous list
// kept.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	list, err := c.store.List(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("list conversations failed")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.applied {
		return nil
	}
	c.applied = seq

	out := make([]conversation.Summary, 0, len(list))
	for _, s := range list {
		if at, ok := c.tomb[s.ConversationID]; ok && seq <= at {
			continue
		}
		out = append(out, s)
	}
	for id, at := range c.tomb {
		if seq > at {
			delete(c.tomb, id)
		}
	}
	c.items = out
	return nil
}

// RefreshSoon schedules a refresh after the settle delay. Repeated calls
// within the delay collapse into one refresh.
func (c *Controller) RefreshSoon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Reset(c.settle)
		return
	}
	c.timer = time.AfterFunc(c.settle, func() {
		c.mu.Lock()
		c.timer = nil
		base := c.base
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, refreshTimeout)
		defer cancel()
		c.Refresh(ctx)
	})
}

// Items returns the current list.
func (c *Controller) Items() []conversation.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]conversation.Summary(nil), c.items...)
}

// Active returns the id of the active conversation, or "".
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Create starts a new conversation in the workspace and makes it active.
func (c *Controller) Create(ctx context.Context) (string, error) {
	id, err := c.ws.Begin(ctx)
	if id != "" {
		c.setActive(id)
		c.RefreshSoon()
	}
	if err != nil {
		c.logger.Error().Err(err).Msg("create conversation failed")
		return id, err
	}
	return id, nil
}

// Select makes id active and reloads it in the workspace. The poll interval
// restarts from now.
func (c *Controller) Select(ctx context.Context, id string) error {
	c.setActive(id)
	select {
	case c.reset <- struct{}{}:
	default:
	}
	if err := c.ws.Open(ctx, id); err != nil {
		c.logger.Warn().Err(err).Str("conversation_id", id).Msg("open conversation failed")
		return err
	}
	return nil
}

// Tracked marks id active without reloading, for conversations the workspace
// created on its own.
func (c *Controller) Tracked(id string) {
	c.setActive(id)
	c.RefreshSoon()
}

func (c *Controller) setActive(id string) {
	c.mu.Lock()
	c.active = id
	c.mu.Unlock()
}

// Rename updates the title locally once the backend accepted it.
func (c *Controller) Rename(ctx context.Context, id, title string) error {
	if err := c.store.Rename(ctx, id, title); err != nil {
		c.logger.Error().Err(err).Str("conversation_id", id).Msg("rename conversation failed")
		return err
	}
	title = strings.TrimSpace(title)
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ConversationID == id {
			c.items[i].Title = title
		}
	}
	c.mu.Unlock()
	c.RefreshSoon()
	return nil
}

// Delete removes id. Deleting the active conversation resets the workspace.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		c.logger.Error().Err(err).Str("conversation_id", id).Msg("delete conversation failed")
		return err
	}

	c.mu.Lock()
	c.tomb[id] = c.issued
	out := c.items[:0]
	for _, s := range c.items {
		if s.ConversationID != id {
			out = append(out, s)
		}
	}
	c.items = out
	wasActive := c.active == id
	if wasActive {
		c.active = ""
	}
	c.mu.Unlock()

	if wasActive {
		c.ws.Close(id)
	}
	c.RefreshSoon()
	return nil
}
