// Package chat is the medical chat: free-form questions answered by the
// backend, with optional speech synthesis of the last reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/conversation"
)

const ErrorText = "Sorry, I encountered an error. Please try again."

var (
	ErrEmptyInput = errors.New("input is required")
	ErrNoReply    = errors.New("no reply to speak")
)

// Service runs the medical chat over a medical conversation store. The
// backend stores chat turns itself, so messages are recorded in memory only.
type Service struct {
	store      *conversation.Store
	responder  Responder
	logger     zerolog.Logger
	onCreated  func(id string)
	onDetached func()

	opMu sync.Mutex

	// switchMu makes the current-ticket check and activation atomic.
	switchMu sync.Mutex

	mu   sync.Mutex
	last string
}

func NewService(store *conversation.Store, responder Responder, logger zerolog.Logger) *Service {
	store.Activate("", nil)
	return &Service{
		store:     store,
		responder: responder,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// OnCreated registers fn to be called with every conversation Send creates.
func (s *Service) OnCreated(fn func(id string)) {
	s.onCreated = fn
}

// OnDetached registers fn to be called after Detach.
func (s *Service) OnDetached(fn func()) {
	s.onDetached = fn
}

// Reply is the outcome of one Send.
type Reply struct {
	ConversationID string                 `json:"conversation_id"`
	Appended       []conversation.Message `json:"appended"`
}

// Send records text, asks the backend and records the cleaned reply. A
// backend failure records the error fallback and is returned with the reply.
func (s *Service) Send(ctx context.Context, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	t, err := s.ensureConversation(ctx)
	if err != nil {
		return nil, err
	}
	user := conversation.UserText(text)
	if err := s.store.Record(t, user); err != nil {
		return nil, err
	}

	answer, err := s.responder.Reply(ctx, text, t.ConversationID)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", t.ConversationID).Msg("chat reply failed")
		bot := conversation.BotText(ErrorText)
		if rerr := s.store.Record(t, bot); rerr != nil {
			return nil, rerr
		}
		return &Reply{ConversationID: t.ConversationID, Appended: []conversation.Message{user, bot}}, err
	}

	bot := conversation.BotText(conversation.CleanText(answer))
	if err := s.store.Record(t, bot); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = bot.Text
	s.mu.Unlock()
	return &Reply{ConversationID: t.ConversationID, Appended: []conversation.Message{user, bot}}, nil
}

func (s *Service) ensureConversation(ctx context.Context) (conversation.Ticket, error) {
	t := s.store.Current()
	if t.Active() {
		return t, nil
	}
	id, err := s.store.Create(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("create conversation failed")
		return conversation.Ticket{}, fmt.Errorf("create conversation: %w", err)
	}
	s.switchMu.Lock()
	if !s.store.IsCurrent(t) {
		s.switchMu.Unlock()
		return conversation.Ticket{}, conversation.ErrStale
	}
	t = s.store.Activate(id, s.store.Messages())
	s.switchMu.Unlock()
	if s.onCreated != nil {
		s.onCreated(id)
	}
	return t, nil
}

// Voice synthesizes text, or the last reply when text is empty.
func (s *Service) Voice(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.mu.Lock()
		text = s.last
		s.mu.Unlock()
	}
	if text == "" {
		return nil, ErrNoReply
	}
	audio, err := s.responder.Speak(ctx, text)
	if err != nil {
		s.logger.Error().Err(err).Msg("voice-over failed")
		return nil, err
	}
	return audio, nil
}

// Messages returns the active transcript.
func (s *Service) Messages() []conversation.Message {
	return s.store.Messages()
}

// ConversationID returns the active conversation, or "".
func (s *Service) ConversationID() string {
	return s.store.Current().ConversationID
}

// Detach leaves no conversation active with an empty transcript.
func (s *Service) Detach() {
	s.activate("", nil)
	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()

	if s.onDetached != nil {
		s.onDetached()
	}
}

func (s *Service) activate(id string, msgs []conversation.Message) conversation.Ticket {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	return s.store.Activate(id, msgs)
}

// Begin creates and activates an empty conversation.
func (s *Service) Begin(ctx context.Context) (string, error) {
	id, err := s.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	s.activate(id, nil)
	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()
	return id, nil
}

// Open activates id and loads its history. On failure the transcript stays
// empty.
func (s *Service) Open(ctx context.Context, id string) error {
	t := s.activate(id, nil)
	h, err := s.store.LoadHistory(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", id).Msg("load history failed")
		return fmt.Errorf("load history: %w", err)
	}
	if err := s.store.Reset(t, h.Messages); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = ""
	for i := len(h.Messages) - 1; i >= 0; i-- {
		if h.Messages[i].Sender == conversation.SenderBot {
			s.last = h.Messages[i].Text
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// Close empties the transcript if id was active.
func (s *Service) Close(id string) {
	s.switchMu.Lock()
	if s.store.Current().ConversationID != id {
		s.switchMu.Unlock()
		return
	}
	s.store.Activate("", nil)
	s.switchMu.Unlock()

	s.mu.Lock()
	s.last = ""
	s.mu.Unlock()
}
