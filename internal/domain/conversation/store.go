package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/patient"
)

var (
	// ErrStale means the conversation a request was issued for is no longer
	// active; its result must be discarded.
	ErrStale = errors.New("conversation is no longer active")

	ErrEmptyTitle = errors.New("title is required")
)

// Ticket identifies one activation of a conversation. Every switch issues a
// new ticket, so results tagged with an old one can be recognized as stale
// even when the same conversation is re-selected.
type Ticket struct {
	ConversationID string
	gen            uint64
}

// Active reports whether the ticket refers to a backend conversation.
func (t Ticket) Active() bool {
	return t.ConversationID != ""
}

// Store holds the transcript of the active conversation of one kind and
// mediates history and persistence calls against the backend.
type Store struct {
	kind    Kind
	backend Backend
	logger  zerolog.Logger
	now     func() time.Time

	// persistMu is held from in-memory append through persistence so saves
	// reach the backend in append order.
	persistMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	active   string
	messages []Message
}

func NewStore(kind Kind, backend Backend, logger zerolog.Logger) *Store {
	return &Store{
		kind:    kind,
		backend: backend,
		logger:  logger.With().Str("kind", string(kind)).Logger(),
		now:     time.Now,
	}
}

func (s *Store) Kind() Kind {
	return s.kind
}

// Current returns the ticket of the active conversation.
func (s *Store) Current() Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Ticket{ConversationID: s.active, gen: s.gen}
}

// IsCurrent reports whether t is still the active ticket.
func (s *Store) IsCurrent(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.gen == s.gen && t.ConversationID == s.active
}

// Activate makes id the active conversation with msgs as its transcript. An
// empty id leaves no conversation active.
func (s *Store) Activate(id string, msgs []Message) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.active = id
	s.messages = append([]Message(nil), msgs...)
	return Ticket{ConversationID: id, gen: s.gen}
}

// Reset replaces the transcript of the conversation t refers to while keeping
// it active.
func (s *Store) Reset(t Ticket, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.gen != s.gen || t.ConversationID != s.active {
		return ErrStale
	}
	s.messages = append([]Message(nil), msgs...)
	return nil
}

// Messages returns a copy of the active transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Append adds msgs to the transcript and persists each, in order, to the
// conversation t refers to. Persistence failures are logged and do not undo
// the in-memory append. A stale ticket appends nothing.
func (s *Store) Append(ctx context.Context, t Ticket, msgs ...Message) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.Record(t, msgs...); err != nil {
		return err
	}
	if !t.Active() {
		return nil
	}
	for _, m := range msgs {
		if err := s.backend.SaveMessage(ctx, t.ConversationID, s.kind, ToRecord(m, s.now())); err != nil {
			s.logger.Warn().Err(err).
				Str("conversation_id", t.ConversationID).
				Str("type", string(m.Type())).
				Msg("persist message failed")
		}
	}
	return nil
}

// Record adds msgs to the in-memory transcript only. It is used where the
// backend stores the turn itself.
func (s *Store) Record(t Ticket, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.gen != s.gen || t.ConversationID != s.active {
		return ErrStale
	}
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *Store) Create(ctx context.Context) (string, error) {
	id, err := s.backend.Create(ctx, s.kind)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("conversation_id", id).Msg("conversation created")
	return id, nil
}

func (s *Store) List(ctx context.Context) ([]Summary, error) {
	return s.backend.List(ctx, s.kind)
}

// LoadHistory fetches and translates the stored transcript of id.
func (s *Store) LoadHistory(ctx context.Context, id string) (*History, error) {
	rec, err := s.backend.Messages(ctx, id, s.kind)
	if err != nil {
		return nil, err
	}
	h := &History{PatientContext: rec.PatientContext}
	for _, r := range rec.Messages {
		if m, ok := FromRecord(r); ok {
			h.Messages = append(h.Messages, m)
		}
	}
	return h, nil
}

func (s *Store) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	return s.backend.Rename(ctx, id, s.kind, title)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, id, s.kind); err != nil {
		return err
	}
	s.logger.Info().Str("conversation_id", id).Msg("conversation deleted")
	return nil
}

func (s *Store) PatientData(ctx context.Context, id string) (*patient.Patient, error) {
	if s.kind != KindDocument {
		return nil, fmt.Errorf("%s conversations carry no patient", s.kind)
	}
	return s.backend.PatientData(ctx, id)
}

// SavePatient persists p (or clears the association when p is nil).
func (s *Store) SavePatient(ctx context.Context, id string, p *patient.Patient) error {
	if s.kind != KindDocument {
		return fmt.Errorf("%s conversations carry no patient", s.kind)
	}
	return s.backend.SavePatient(ctx, id, p)
}
