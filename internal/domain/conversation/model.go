package conversation

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/medassist/medassist/internal/domain/patient"
)

// Kind separates the medical chat and document assistant namespaces. Lists
// and histories of different kinds are never mixed.
type Kind string

const (
	KindMedical  Kind = "medical"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	return k == KindMedical || k == KindDocument
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type MessageType string

const (
	TypeText             MessageType = "text"
	TypeFile             MessageType = "file"
	TypeAnalysis         MessageType = "analysis"
	TypePatientSearch    MessageType = "patient_search"
	TypePatientSelection MessageType = "patient_selection"
)

// ParseType maps a stored type label to a MessageType.
func ParseType(s string) (MessageType, bool) {
	switch t := MessageType(s); t {
	case TypeText, TypeFile, TypeAnalysis, TypePatientSearch, TypePatientSelection:
		return t, true
	}
	return TypeText, false
}

// Payload is the type-specific part of a Message. The set of implementations
// is closed: Text, File, Analysis, PatientSearch and PatientSelection.
type Payload interface {
	Type() MessageType
	isPayload()
}

type Text struct{}

type File struct {
	Name string
}

type Analysis struct{}

// PatientSearch lists the candidates a search returned. Matches is empty for
// messages reloaded from history.
type PatientSearch struct {
	Matches []*patient.Patient
}

// PatientSelection embeds the chosen patient. Patient is nil for messages
// reloaded from history.
type PatientSelection struct {
	Patient *patient.Patient
}

func (Text) Type() MessageType             { return TypeText }
func (File) Type() MessageType             { return TypeFile }
func (Analysis) Type() MessageType         { return TypeAnalysis }
func (PatientSearch) Type() MessageType    { return TypePatientSearch }
func (PatientSelection) Type() MessageType { return TypePatientSelection }

func (Text) isPayload()             {}
func (File) isPayload()             {}
func (Analysis) isPayload()         {}
func (PatientSearch) isPayload()    {}
func (PatientSelection) isPayload() {}

// Message is one entry of a transcript. Messages are immutable once appended.
type Message struct {
	Text    string
	Sender  Sender
	Payload Payload
}

func (m Message) Type() MessageType {
	if m.Payload == nil {
		return TypeText
	}
	return m.Payload.Type()
}

func UserText(text string) Message {
	return Message{Text: text, Sender: SenderUser, Payload: Text{}}
}

func BotText(text string) Message {
	return Message{Text: text, Sender: SenderBot, Payload: Text{}}
}

type messageJSON struct {
	Text        string             `json:"text"`
	Sender      Sender             `json:"sender"`
	Type        MessageType        `json:"type"`
	FileName    string             `json:"fileName,omitempty"`
	PatientData *patient.Patient   `json:"patientData,omitempty"`
	Matches     []*patient.Patient `json:"matches,omitempty"`
}

// MarshalJSON renders the flat shape browsers expect.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{Text: m.Text, Sender: m.Sender, Type: m.Type()}
	switch p := m.Payload.(type) {
	case File:
		out.FileName = p.Name
	case PatientSearch:
		out.Matches = p.Matches
	case PatientSelection:
		out.PatientData = p.Patient
	}
	return json.Marshal(out)
}

// Summary is a sidebar entry produced by the backend.
type Summary struct {
	ConversationID string  `json:"conversation_id"`
	Title          string  `json:"title"`
	LastQuery      string  `json:"last_query"`
	CreatedAt      float64 `json:"created_at"`
	MessageCount   int     `json:"message_count,omitempty"`
}

// Created converts the epoch-seconds timestamp.
func (s Summary) Created() time.Time {
	sec, frac := math.Modf(s.CreatedAt)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Record is the wire shape of a stored message.
type Record struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// HistoryRecord is the raw /messages response.
type HistoryRecord struct {
	Messages       []Record `json:"messages"`
	PatientContext string   `json:"patient_context,omitempty"`
}

// History is a translated transcript plus the legacy patient context string.
type History struct {
	Messages       []Message
	PatientContext string
}

// ToRecord encodes m for the save-message endpoint. The timestamp is in
// milliseconds.
func ToRecord(m Message, at time.Time) Record {
	return Record{
		Sender:    string(m.Sender),
		Content:   m.Text,
		Type:      string(m.Type()),
		Timestamp: at.UnixMilli(),
	}
}

// FromRecord translates a stored record. Senders "user", "assistant" and
// "bot" are recognized; "assistant" becomes a bot text message and an
// unrecognized bot type falls back to text. Other senders are dropped.
func FromRecord(r Record) (Message, bool) {
	switch r.Sender {
	case "user":
		return UserText(r.Content), true
	case "assistant":
		return BotText(r.Content), true
	case "bot":
		t, _ := ParseType(r.Type)
		return Message{Text: r.Content, Sender: SenderBot, Payload: emptyPayload(t)}, true
	}
	return Message{}, false
}

func emptyPayload(t MessageType) Payload {
	switch t {
	case TypeFile:
		return File{}
	case TypeAnalysis:
		return Analysis{}
	case TypePatientSearch:
		return PatientSearch{}
	case TypePatientSelection:
		return PatientSelection{}
	}
	return Text{}
}

var unescaper = strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\'`, `'`)

// CleanText unescapes the literal \n, \" and \' sequences backend replies
// carry.
func CleanText(s string) string {
	return unescaper.Replace(s)
}
