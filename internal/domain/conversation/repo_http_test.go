package conversation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/backend"
)

func newHTTPBackend(t *testing.T, h http.HandlerFunc) *BackendHTTP {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := backend.New(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewBackendHTTP(c)
}

func TestBackendHTTP_Create(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/new-document-conversation" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"conversation_id":"abc"}`))
	})
	id, err := be.Create(context.Background(), KindDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "abc" {
		t.Errorf("expected abc, got %s", id)
	}
}

func TestBackendHTTP_ListByKind(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/medical-conversations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"conversation_id":"c1","title":"Cough","last_query":"dry cough","created_at":1700000000.25,"message_count":4}]`))
	})
	list, err := be.List(context.Background(), KindMedical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Cough" || list[0].MessageCount != 4 {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestBackendHTTP_Messages(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversation/c1/messages" || r.URL.Query().Get("conversation_type") != "document" {
			t.Errorf("unexpected %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"messages":[{"sender":"user","content":"hi"},{"sender":"bot","content":"x","type":"analysis"}],"patient_context":"Patient: Jane Doe (MRN: MRN1, DOB: 1980-01-01)"}`))
	})
	h, err := be.Messages(context.Background(), "c1", KindDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.Messages) != 2 || h.Messages[1].Type != "analysis" || h.PatientContext == "" {
		t.Errorf("unexpected history %+v", h)
	}
}

func TestBackendHTTP_SaveMessage(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversation/c1/save-message" || r.URL.Query().Get("conversation_type") != "medical" {
			t.Errorf("unexpected %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		var rec Record
		json.NewDecoder(r.Body).Decode(&rec)
		if rec.Sender != "user" || rec.Content != "hello" || rec.Type != "text" || rec.Timestamp == 0 {
			t.Errorf("unexpected record %+v", rec)
		}
	})
	err := be.SaveMessage(context.Background(), "c1", KindMedical, Record{Sender: "user", Content: "hello", Type: "text", Timestamp: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackendHTTP_Rename(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/conversation/c1/rename" || q.Get("title") != "Knee & hip" || q.Get("conversation_type") != "document" {
			t.Errorf("unexpected %s?%s", r.URL.Path, r.URL.RawQuery)
		}
	})
	if err := be.Rename(context.Background(), "c1", KindDocument, "Knee & hip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackendHTTP_Delete(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/conversation/c1" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	if err := be.Delete(context.Background(), "c1", KindDocument); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackendHTTP_PatientData(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/conversation/empty/patient-data" {
			w.Write([]byte(`{"patient_data":null}`))
			return
		}
		w.Write([]byte(`{"patient_data":{"id":"1","name":"Jane Doe","medicalRecordNumber":"MRN1"}}`))
	})
	p, err := be.PatientData(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Name != "Jane Doe" {
		t.Errorf("unexpected patient %v", p)
	}

	p, err = be.PatientData(context.Background(), "empty")
	if err != nil || p != nil {
		t.Errorf("expected nil patient, got %v, %v", p, err)
	}
}

func TestBackendHTTP_SavePatientNull(t *testing.T) {
	be := newHTTPBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "null" {
			t.Errorf("expected null body, got %s", body)
		}
	})
	var p *patient.Patient
	if err := be.SavePatient(context.Background(), "c1", p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
