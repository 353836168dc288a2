package patient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound = errors.New("patient not found")
	ErrInvalid  = errors.New("invalid patient")
)

// Patient is a record of the external patient directory. Conversations only
// reference patients; they never own them.
type Patient struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	DateOfBirth          string   `json:"dateOfBirth"`
	MedicalRecordNumber  string   `json:"medicalRecordNumber"`
	LastVisit            string   `json:"lastVisit"`
	Email                string   `json:"email,omitempty"`
	Phone                string   `json:"phone,omitempty"`
	Address              string   `json:"address,omitempty"`
	EmergencyContact     string   `json:"emergencyContact,omitempty"`
	InsuranceProvider    string   `json:"insuranceProvider,omitempty"`
	InsuranceNumber      string   `json:"insuranceNumber,omitempty"`
	PrimaryCarePhysician string   `json:"primaryCarePhysician,omitempty"`
	Allergies            []string `json:"allergies,omitempty"`
	Medications          []string `json:"medications,omitempty"`
	Conditions           []string `json:"conditions,omitempty"`
}

// Input is the create/update payload of the patient form.
type Input struct {
	Name                 string   `json:"name" validate:"required"`
	DateOfBirth          string   `json:"dateOfBirth" validate:"required"`
	MedicalRecordNumber  string   `json:"medicalRecordNumber" validate:"required"`
	LastVisit            string   `json:"lastVisit" validate:"required"`
	Email                string   `json:"email" validate:"omitempty,email"`
	Phone                string   `json:"phone"`
	Address              string   `json:"address"`
	EmergencyContact     string   `json:"emergencyContact"`
	InsuranceProvider    string   `json:"insuranceProvider"`
	InsuranceNumber      string   `json:"insuranceNumber"`
	PrimaryCarePhysician string   `json:"primaryCarePhysician"`
	Allergies            []string `json:"allergies"`
	Medications          []string `json:"medications"`
	Conditions           []string `json:"conditions"`
}

// InputFrom copies an existing record into a form payload for editing.
func InputFrom(p *Patient) *Input {
	return &Input{
		Name:                 p.Name,
		DateOfBirth:          p.DateOfBirth,
		MedicalRecordNumber:  p.MedicalRecordNumber,
		LastVisit:            p.LastVisit,
		Email:                p.Email,
		Phone:                p.Phone,
		Address:              p.Address,
		EmergencyContact:     p.EmergencyContact,
		InsuranceProvider:    p.InsuranceProvider,
		InsuranceNumber:      p.InsuranceNumber,
		PrimaryCarePhysician: p.PrimaryCarePhysician,
		Allergies:            append([]string(nil), p.Allergies...),
		Medications:          append([]string(nil), p.Medications...),
		Conditions:           append([]string(nil), p.Conditions...),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate trims list entries, drops blanks and checks required fields.
func (in *Input) Validate() error {
	in.Allergies = compact(in.Allergies)
	in.Medications = compact(in.Medications)
	in.Conditions = compact(in.Conditions)
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
