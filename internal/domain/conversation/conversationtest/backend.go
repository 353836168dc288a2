// Package conversationtest provides an in-memory conversation backend for
// tests.
package conversationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/patient"
)

// Backend is a thread-safe, in-memory conversation.Backend. It keeps the
// kinds apart exactly as the real service does.
type Backend struct {
	mu    sync.Mutex
	convs map[string]*entry
	order []string
	fail  map[string]error
	calls []string
}

type entry struct {
	kind    conversation.Kind
	summary conversation.Summary
	records []conversation.Record
	patient *patient.Patient
	context string
}

var _ conversation.Backend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{
		convs: make(map[string]*entry),
		fail:  make(map[string]error),
	}
}

// FailOn makes every subsequent call of op ("create", "list", "messages",
// "save-message", "rename", "delete", "patient-data", "save-patient") return
// err. A nil err clears the failure.
func (m *Backend) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

// Calls returns the operations invoked so far, oldest first.
func (m *Backend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Records returns the stored messages of id.
func (m *Backend) Records(id string) []conversation.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		return append([]conversation.Record(nil), c.records...)
	}
	return nil
}

// StoredPatient returns the patient associated with id.
func (m *Backend) StoredPatient(id string) *patient.Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		return c.patient
	}
	return nil
}

// Seed inserts a conversation with pre-existing records and legacy patient
// context, returning its id.
func (m *Backend) Seed(kind conversation.Kind, title string, records []conversation.Record, patientContext string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.insert(kind)
	c := m.convs[id]
	c.summary.Title = title
	c.records = append(c.records, records...)
	c.summary.MessageCount = len(c.records)
	c.context = patientContext
	return id
}

func (m *Backend) enter(op string) error {
	m.calls = append(m.calls, op)
	return m.fail[op]
}

func (m *Backend) insert(kind conversation.Kind) string {
	id := uuid.New().String()
	m.convs[id] = &entry{
		kind: kind,
		summary: conversation.Summary{
			ConversationID: id,
			Title:          "New Conversation",
			CreatedAt:      float64(time.Now().Unix()),
		},
	}
	m.order = append(m.order, id)
	return id
}

func (m *Backend) get(id string, kind conversation.Kind) (*entry, error) {
	c, ok := m.convs[id]
	if !ok || c.kind != kind {
		return nil, fmt.Errorf("%s conversation %s not found", kind, id)
	}
	return c, nil
}

func (m *Backend) Create(_ context.Context, kind conversation.Kind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("create"); err != nil {
		return "", err
	}
	return m.insert(kind), nil
}

func (m *Backend) List(_ context.Context, kind conversation.Kind) ([]conversation.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("list"); err != nil {
		return nil, err
	}
	var out []conversation.Summary
	for _, id := range m.order {
		if c, ok := m.convs[id]; ok && c.kind == kind {
			out = append(out, c.summary)
		}
	}
	return out, nil
}

func (m *Backend) Messages(_ context.Context, id string, kind conversation.Kind) (*conversation.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("messages"); err != nil {
		return nil, err
	}
	c, err := m.get(id, kind)
	if err != nil {
		return nil, err
	}
	return &conversation.HistoryRecord{
		Messages:       append([]conversation.Record(nil), c.records...),
		PatientContext: c.context,
	}, nil
}

func (m *Backend) SaveMessage(_ context.Context, id string, kind conversation.Kind, rec conversation.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("save-message"); err != nil {
		return err
	}
	c, err := m.get(id, kind)
	if err != nil {
		return err
	}
	c.records = append(c.records, rec)
	c.summary.MessageCount = len(c.records)
	if rec.Sender == string(conversation.SenderUser) {
		c.summary.LastQuery = rec.Content
	}
	return nil
}

func (m *Backend) Rename(_ context.Context, id string, kind conversation.Kind, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("rename"); err != nil {
		return err
	}
	c, err := m.get(id, kind)
	if err != nil {
		return err
	}
	c.summary.Title = title
	return nil
}

func (m *Backend) Delete(_ context.Context, id string, kind conversation.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("delete"); err != nil {
		return err
	}
	if _, err := m.get(id, kind); err != nil {
		return err
	}
	delete(m.convs, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Backend) PatientData(_ context.Context, id string) (*patient.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("patient-data"); err != nil {
		return nil, err
	}
	c, err := m.get(id, conversation.KindDocument)
	if err != nil {
		return nil, err
	}
	return c.patient, nil
}

func (m *Backend) SavePatient(_ context.Context, id string, p *patient.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("save-patient"); err != nil {
		return err
	}
	c, err := m.get(id, conversation.KindDocument)
	if err != nil {
		return err
	}
	if p != nil {
		cp := *p
		p = &cp
	}
	c.patient = p
	return nil
}
