package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/journal"
	"github.com/medassist/medassist/internal/platform/upload"
)

// PatientSearcher is the part of the patient directory the machine needs.
type PatientSearcher interface {
	Search(ctx context.Context, query string) ([]*patient.Patient, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithJournal records every transition attempt.
func WithJournal(r journal.Recorder) Option {
	return func(m *Machine) { m.journal = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// OnCreated is called with the id of every conversation the machine creates.
func OnCreated(fn func(id string)) Option {
	return func(m *Machine) { m.onCreated = fn }
}

// OnDetached is called after Detach leaves no conversation active.
func OnDetached(fn func()) Option {
	return func(m *Machine) { m.onDetached = fn }
}

// Machine drives the document assistant: patient search, patient selection
// and document analysis over one document conversation store.
//
// Inputs are serialized. Activating another conversation does not wait for an
// in-flight input; its result is discarded with conversation.ErrStale when it
// resolves.
type Machine struct {
	store      *conversation.Store
	patients   PatientSearcher
	analyzer   Analyzer
	journal    journal.Recorder
	logger     zerolog.Logger
	now        func() time.Time
	onCreated  func(id string)
	onDetached func()

	// opMu serializes inputs.
	opMu sync.Mutex

	// mu guards session and makes store activation plus session replacement
	// atomic.
	mu      sync.Mutex
	session Session
}

func NewMachine(store *conversation.Store, patients PatientSearcher, analyzer Analyzer, logger zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{
		store:    store,
		patients: patients,
		analyzer: analyzer,
		journal:  journal.Nop{},
		logger:   logger.With().Str("component", "workflow").Logger(),
		now:      time.Now,
		session:  newSession(),
	}
	for _, o := range opts {
		o(m)
	}
	store.Activate("", welcome())
	return m
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.session
	s.Candidates = append([]*patient.Patient(nil), s.Candidates...)
	return s
}

// State returns a snapshot for rendering.
func (m *Machine) State() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &State{
		ConversationID: m.store.Current().ConversationID,
		Step:           m.session.Step,
		Patient:        m.session.Patient,
		Messages:       m.store.Messages(),
	}
	if m.session.File != nil {
		st.PendingFile = m.session.File.Name
	}
	return st
}

// Handle interprets input against the current step. Backend failures append
// the error fallback, keep the step, and are returned together with the
// result.
func (m *Machine) Handle(ctx context.Context, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	t, sess, err := m.ensureConversation(ctx)
	if err != nil {
		return nil, err
	}
	user := conversation.UserText(input)
	if err := m.store.Append(ctx, t, user); err != nil {
		return nil, err
	}

	var res *Result
	switch sess.Step {
	case StepPatientSelection:
		res, err = m.selectPatient(ctx, t, sess, input)
	case StepDocumentAnalysis:
		res, err = m.analyze(ctx, t, sess, input)
	default:
		res, err = m.search(ctx, t, sess, input)
	}
	if res != nil {
		res.Appended = append([]conversation.Message{user}, res.Appended...)
	}
	return res, err
}

func (m *Machine) search(ctx context.Context, t conversation.Ticket, sess Session, query string) (*Result, error) {
	matches, err := m.patients.Search(ctx, query)
	if err != nil {
		return m.fail(ctx, t, "search", sess.Step, err)
	}

	if len(matches) == 0 {
		bot := conversation.BotText(NotFoundText)
		if err := m.commit(ctx, t, bot, nil); err != nil {
			return m.discard(ctx, t, "search", sess.Step, err)
		}
		m.record(ctx, t, "search", sess.Step, sess.Step, nil)
		return &Result{Step: sess.Step, Appended: []conversation.Message{bot}}, nil
	}

	bot := conversation.Message{
		Text:    SearchListing(matches),
		Sender:  conversation.SenderBot,
		Payload: conversation.PatientSearch{Matches: matches},
	}
	err = m.commit(ctx, t, bot, func(s *Session) {
		s.Step = StepPatientSelection
		s.Candidates = matches
	})
	if err != nil {
		return m.discard(ctx, t, "search", sess.Step, err)
	}
	m.record(ctx, t, "search", sess.Step, StepPatientSelection, nil)
	return &Result{Step: StepPatientSelection, Appended: []conversation.Message{bot}}, nil
}

func (m *Machine) selectPatient(ctx context.Context, t conversation.Ticket, sess Session, input string) (*Result, error) {
	chosen := patient.MatchExact(sess.Candidates, input)
	if chosen == nil {
		bot := conversation.BotText(NoMatchText)
		if err := m.commit(ctx, t, bot, nil); err != nil {
			return m.discard(ctx, t, "select", sess.Step, err)
		}
		m.record(ctx, t, "select", sess.Step, sess.Step, nil)
		return &Result{Step: sess.Step, Appended: []conversation.Message{bot}}, nil
	}

	p := *chosen
	if err := m.store.SavePatient(ctx, t.ConversationID, &p); err != nil {
		return m.fail(ctx, t, "select", sess.Step, fmt.Errorf("save patient: %w", err))
	}

	bot := conversation.Message{
		Text:    SelectionText(&p),
		Sender:  conversation.SenderBot,
		Payload: conversation.PatientSelection{Patient: &p},
	}
	err := m.commit(ctx, t, bot, func(s *Session) {
		s.Step = StepDocumentAnalysis
		s.Patient = &p
		s.Candidates = nil
	})
	if err != nil {
		return m.discard(ctx, t, "select", sess.Step, err)
	}
	m.record(ctx, t, "select", sess.Step, StepDocumentAnalysis, nil)
	return &Result{Step: StepDocumentAnalysis, Appended: []conversation.Message{bot}}, nil
}

func (m *Machine) analyze(ctx context.Context, t conversation.Ticket, sess Session, query string) (*Result, error) {
	resp, err := m.analyzer.Analyze(ctx, &AnalysisRequest{
		File:               sess.File,
		PatientInformation: PatientContext(sess.Patient),
		Query:              query,
		ConversationID:     t.ConversationID,
	})
	if err != nil {
		return m.fail(ctx, t, "analyze", sess.Step, err)
	}

	bot := conversation.Message{
		Text:    conversation.CleanText(resp.Response),
		Sender:  conversation.SenderBot,
		Payload: conversation.Analysis{},
	}
	err = m.commit(ctx, t, bot, func(s *Session) {
		s.File = nil
	})
	if err != nil {
		return m.discard(ctx, t, "analyze", sess.Step, err)
	}
	m.record(ctx, t, "analyze", sess.Step, sess.Step, nil)
	return &Result{Step: sess.Step, Appended: []conversation.Message{bot}}, nil
}

// commit applies update to the session if t is still current and appends
// bot. A nil update only appends.
func (m *Machine) commit(ctx context.Context, t conversation.Ticket, bot conversation.Message, update func(*Session)) error {
	m.mu.Lock()
	if !m.store.IsCurrent(t) {
		m.mu.Unlock()
		return conversation.ErrStale
	}
	if update != nil {
		update(&m.session)
	}
	m.mu.Unlock()
	return m.store.Append(ctx, t, bot)
}

// fail appends the error fallback without touching the step.
func (m *Machine) fail(ctx context.Context, t conversation.Ticket, action string, step Step, cause error) (*Result, error) {
	m.logger.Error().Err(cause).
		Str("conversation_id", t.ConversationID).
		Str("step", string(step)).
		Str("action", action).
		Msg("workflow step failed")

	bot := conversation.BotText(ErrorText)
	if err := m.commit(ctx, t, bot, nil); err != nil {
		return m.discard(ctx, t, action, step, err)
	}
	m.record(ctx, t, action, step, step, cause)
	return &Result{Step: step, Appended: []conversation.Message{bot}}, cause
}

func (m *Machine) discard(ctx context.Context, t conversation.Ticket, action string, step Step, err error) (*Result, error) {
	if errors.Is(err, conversation.ErrStale) {
		m.logger.Debug().Str("conversation_id", t.ConversationID).Str("action", action).Msg("discarding stale result")
	}
	m.record(ctx, t, action, step, step, err)
	return nil, err
}

// ensureConversation returns the active ticket, creating a conversation when
// none is active. The in-memory transcript carries over.
func (m *Machine) ensureConversation(ctx context.Context) (conversation.Ticket, Session, error) {
	m.mu.Lock()
	t := m.store.Current()
	sess := m.session
	m.mu.Unlock()
	if t.Active() {
		return t, sess, nil
	}

	id, err := m.store.Create(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("create conversation failed")
		return conversation.Ticket{}, Session{}, fmt.Errorf("create conversation: %w", err)
	}

	m.mu.Lock()
	if !m.store.IsCurrent(t) {
		m.mu.Unlock()
		return conversation.Ticket{}, Session{}, conversation.ErrStale
	}
	t = m.store.Activate(id, m.store.Messages())
	sess = m.session
	m.mu.Unlock()

	m.created(id)
	m.record(ctx, t, "create", "", sess.Step, nil)
	return t, sess, nil
}

func (m *Machine) created(id string) {
	if m.onCreated != nil {
		m.onCreated(id)
	}
}

// AttachFile holds f for the next analysis. Unsupported types are rejected
// before anything is appended or sent. With no active conversation one is
// created first so the attachment turn is persisted.
func (m *Machine) AttachFile(ctx context.Context, f upload.File) (*Result, error) {
	if err := upload.ValidateDocument(f.Name); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	user := conversation.Message{
		Text:    "I've uploaded: " + f.Name,
		Sender:  conversation.SenderUser,
		Payload: conversation.File{Name: f.Name},
	}
	guidance := conversation.BotText(UploadGuidanceText)

	t, _, err := m.ensureConversation(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if !m.store.IsCurrent(t) {
		m.mu.Unlock()
		return nil, conversation.ErrStale
	}
	m.session.File = &f
	step := m.session.Step
	m.mu.Unlock()

	if err := m.store.Append(ctx, t, user, guidance); err != nil {
		return nil, err
	}
	m.record(ctx, t, "attach", step, step, nil)
	return &Result{Step: step, Appended: []conversation.Message{user, guidance}}, nil
}

// Reset clears the current patient, returns to patient search and replaces
// the transcript with the reset prompt. If clearing the stored patient fails
// nothing changes and the error is returned.
func (m *Machine) Reset(ctx context.Context) (*Result, error) {
	return m.clearPatient(ctx, "reset", ResetText, true)
}

// ChangePatient is Reset but keeps the transcript and appends the change
// prompt.
func (m *Machine) ChangePatient(ctx context.Context) (*Result, error) {
	return m.clearPatient(ctx, "change_patient", ChangePatientText, false)
}

func (m *Machine) clearPatient(ctx context.Context, action, text string, replace bool) (*Result, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	t := m.store.Current()
	sess := m.session
	m.mu.Unlock()

	if t.Active() && sess.Patient != nil {
		if err := m.store.SavePatient(ctx, t.ConversationID, nil); err != nil {
			m.logger.Error().Err(err).Str("conversation_id", t.ConversationID).Str("action", action).Msg("clear patient failed")
			m.record(ctx, t, action, sess.Step, sess.Step, err)
			return nil, fmt.Errorf("clear patient: %w", err)
		}
	}

	m.mu.Lock()
	if !m.store.IsCurrent(t) {
		m.mu.Unlock()
		return m.discard(ctx, t, action, sess.Step, conversation.ErrStale)
	}
	m.session = newSession()
	if replace {
		m.store.Reset(t, nil)
	}
	m.mu.Unlock()

	bot := conversation.BotText(text)
	if err := m.store.Append(ctx, t, bot); err != nil {
		return m.discard(ctx, t, action, sess.Step, err)
	}
	m.record(ctx, t, action, sess.Step, StepPatientSearch, nil)
	return &Result{Step: StepPatientSearch, Appended: []conversation.Message{bot}}, nil
}

// Detach leaves no conversation active and shows the welcome message. The
// next input creates a new conversation.
func (m *Machine) Detach() {
	m.mu.Lock()
	m.store.Activate("", welcome())
	m.session = newSession()
	m.mu.Unlock()

	if m.onDetached != nil {
		m.onDetached()
	}
}

// Begin creates a conversation, makes it active and persists the welcome
// message to it.
func (m *Machine) Begin(ctx context.Context) (string, error) {
	id, err := m.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	m.mu.Lock()
	t := m.store.Activate(id, nil)
	m.session = newSession()
	m.mu.Unlock()

	if err := m.store.Append(ctx, t, welcome()...); err != nil {
		return id, err
	}
	m.created(id)
	m.record(ctx, t, "begin", "", StepPatientSearch, nil)
	return id, nil
}

// Open activates id, reloads its transcript and restores the step and patient
// from persisted state. An explicitly stored patient wins over the legacy
// context string. If the history cannot be loaded the welcome message is
// shown and the error returned.
func (m *Machine) Open(ctx context.Context, id string) error {
	m.mu.Lock()
	t := m.store.Activate(id, nil)
	m.session = newSession()
	m.mu.Unlock()

	h, err := m.store.LoadHistory(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("conversation_id", id).Msg("load history failed")
		m.mu.Lock()
		if m.store.IsCurrent(t) {
			m.store.Reset(t, welcome())
		}
		m.mu.Unlock()
		m.record(ctx, t, "open", "", StepPatientSearch, err)
		return fmt.Errorf("load history: %w", err)
	}

	p, err := m.store.PatientData(ctx, id)
	if err != nil {
		m.logger.Warn().Err(err).Str("conversation_id", id).Msg("load patient data failed")
		p = nil
	}
	if p == nil && h.PatientContext != "" {
		p = ParsePatientContext(h.PatientContext, m.now())
	}

	m.mu.Lock()
	if !m.store.IsCurrent(t) {
		m.mu.Unlock()
		return conversation.ErrStale
	}
	m.store.Reset(t, h.Messages)
	if p != nil {
		m.session = Session{Step: StepDocumentAnalysis, Patient: p}
	}
	step := m.session.Step
	m.mu.Unlock()

	m.record(ctx, t, "open", "", step, nil)
	return nil
}

// Close is called after conversation id was deleted. If it was active, the
// workspace returns to the welcome state without persisting anything.
func (m *Machine) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store.Current().ConversationID != id {
		return
	}
	m.store.Activate("", welcome())
	m.session = newSession()
}

// Export returns the analysis messages of the transcript as a text file.
func (m *Machine) Export() (filename, content string, ok bool) {
	return Export(m.store.Messages(), m.now())
}

func (m *Machine) record(ctx context.Context, t conversation.Ticket, action string, from, to Step, cause error) {
	e := &journal.Entry{
		ConversationID: t.ConversationID,
		Kind:           string(m.store.Kind()),
		Action:         action,
		FromStep:       string(from),
		ToStep:         string(to),
		Outcome:        journal.OutcomeOK,
	}
	if cause != nil {
		e.Outcome = journal.OutcomeFailed
		if errors.Is(cause, conversation.ErrStale) {
			e.Outcome = journal.OutcomeStale
		}
		e.Error = cause.Error()
	}
	if err := m.journal.Record(ctx, e); err != nil {
		m.logger.Warn().Err(err).Str("action", action).Msg("journal record failed")
	}
}
