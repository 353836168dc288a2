package workflow

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/patient"
)

// PatientContext serializes p into the patient_information text the
// analysis endpoint expects. A nil patient yields "".
func PatientContext(p *patient.Patient) string {
	if p == nil {
		return ""
	}
	pcp := p.PrimaryCarePhysician
	if pcp == "" {
		pcp = "Not specified"
	}
	return fmt.Sprintf("Patient: %s (MRN: %s, DOB: %s)\n"+
		"Allergies: %s\n"+
		"Current Medications: %s\n"+
		"Medical Conditions: %s\n"+
		"Primary Care Physician: %s",
		p.Name, p.MedicalRecordNumber, p.DateOfBirth,
		listOrNone(p.Allergies),
		listOrNone(p.Medications),
		listOrNone(p.Conditions),
		pcp,
	)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "None documented"
	}
	return strings.Join(items, ", ")
}

var (
	headerRe      = regexp.MustCompile(`Patient: (.+?) \(MRN: (.+?), DOB: (.+?)\)`)
	allergiesRe   = regexp.MustCompile(`Allergies: (.+?)(?:\r?\n|$)`)
	medicationsRe = regexp.MustCompile(`Current Medications: (.+?)(?:\r?\n|$)`)
	conditionsRe  = regexp.MustCompile(`Medical Conditions: (.+?)(?:\r?\n|$)`)
)

// ParsePatientContext recovers a patient from a context string stored by
// older conversations. The MRN doubles as id and today is used as the last
// visit. It returns nil when the header line is missing.
func ParsePatientContext(s string, today time.Time) *patient.Patient {
	m := headerRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return &patient.Patient{
		ID:                  m[2],
		Name:                m[1],
		DateOfBirth:         m[3],
		MedicalRecordNumber: m[2],
		LastVisit:           today.UTC().Format("2006-01-02"),
		Allergies:           parseList(allergiesRe, s),
		Medications:         parseList(medicationsRe, s),
		Conditions:          parseList(conditionsRe, s),
	}
}

func parseList(re *regexp.Regexp, s string) []string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return []string{}
	}
	v := strings.TrimSpace(m[1])
	if v == "None" || v == "None documented" {
		return []string{}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// SearchListing renders the bot reply for a successful search.
func SearchListing(matches []*patient.Patient) string {
	lines := make([]string, len(matches))
	for i, p := range matches {
		lines[i] = fmt.Sprintf("• **%s** (DOB: %s, MRN: %s, Last Visit: %s)",
			p.Name, p.DateOfBirth, p.MedicalRecordNumber, p.LastVisit)
	}
	return fmt.Sprintf("I found %d matching patient(s):\n\n%s\n\nPlease select a patient by typing their name or MRN number.",
		len(matches), strings.Join(lines, "\n"))
}

// SelectionText renders the confirmation after a patient is chosen.
func SelectionText(p *patient.Patient) string {
	return fmt.Sprintf("Perfect! I've selected **%s** (MRN: %s).\n\n"+
		"Now I have access to the patient's medical history and can help you analyze documents or answer questions about their care. You can:\n\n"+
		"• Upload a new document for analysis\n"+
		"• Ask questions about the patient's medical history\n"+
		"• Request specific information extraction\n\n"+
		"What would you like to do?", p.Name, p.MedicalRecordNumber)
}

// Export joins the analysis messages of msgs with a blank line. ok is false
// when there is nothing to export.
func Export(msgs []conversation.Message, at time.Time) (filename, content string, ok bool) {
	var parts []string
	for _, m := range msgs {
		if m.Type() == conversation.TypeAnalysis {
			parts = append(parts, m.Text)
		}
	}
	if len(parts) == 0 {
		return "", "", false
	}
	return "medical_analysis_" + at.UTC().Format("2006-01-02") + ".txt", strings.Join(parts, "\n\n"), true
}
