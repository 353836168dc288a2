package workflow

import (
	"errors"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/upload"
)

// Step is the position of a document conversation in the patient
// identification flow.
type Step string

const (
	StepPatientSearch    Step = "patient_search"
	StepPatientSelection Step = "patient_selection"
	StepDocumentAnalysis Step = "document_analysis"
)

func (s Step) Valid() bool {
	switch s {
	case StepPatientSearch, StepPatientSelection, StepDocumentAnalysis:
		return true
	}
	return false
}

const (
	WelcomeText = "Hello! I'm your medical document assistant. To get started, I need to identify the patient. " +
		"Please provide the patient's name, date of birth, or medical record number."
	ResetText          = "Patient reset. Please provide the patient's name, date of birth, or medical record number."
	ChangePatientText  = "Please provide the patient's name, date of birth, or medical record number to change to a different patient."
	NotFoundText       = "I couldn't find any patients matching your search. Please try a different name or medical record number."
	NoMatchText        = "I couldn't find that exact patient. Please try selecting from the list I provided earlier."
	ErrorText          = "I'm sorry, I encountered an error while processing your request. Please try again."
	UploadGuidanceText = "Great! I can see you've uploaded a document. What specific information would you like me to extract or analyze from this document? For example:\n\n" +
		"• Patient allergies and medical history\n" +
		"• Surgical procedures and interventions\n" +
		"• Treatment recommendations\n" +
		"• Specific medical conditions\n\n" +
		"Just let me know what you're looking for!"
)

var ErrEmptyInput = errors.New("input is required")

// Session is the per-conversation context the machine interprets input
// against. It is replaced wholesale whenever another conversation becomes
// active.
type Session struct {
	Step Step
	// Patient is the current patient. It always equals what was last saved
	// to the active conversation.
	Patient *patient.Patient
	// Candidates are the matches of the most recent successful search.
	Candidates []*patient.Patient
	// File is attached to the next analysis request.
	File *upload.File
}

func newSession() Session {
	return Session{Step: StepPatientSearch}
}

// Result describes what one input did.
type Result struct {
	Step     Step                   `json:"step"`
	Appended []conversation.Message `json:"appended"`
}

// State is a snapshot of the workspace for rendering.
type State struct {
	ConversationID string                 `json:"conversation_id,omitempty"`
	Step           Step                   `json:"step"`
	Patient        *patient.Patient       `json:"patient,omitempty"`
	PendingFile    string                 `json:"pending_file,omitempty"`
	Messages       []conversation.Message `json:"messages"`
}

func welcome() []conversation.Message {
	return []conversation.Message{conversation.BotText(WelcomeText)}
}
