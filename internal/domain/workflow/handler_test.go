package workflow

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func postJSON(t *testing.T, h echo.HandlerFunc, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestHandler_Send(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.m)

	rec, err := postJSON(t, h.Send, `{"text":"Jane Doe"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Step     Step `json:"step"`
		Appended []struct {
			Type    string `json:"type"`
			Matches []struct {
				Name string `json:"name"`
			} `json:"matches"`
		} `json:"appended"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Step != StepPatientSelection {
		t.Errorf("expected patient_selection, got %s", body.Step)
	}
	if len(body.Appended) != 2 || body.Appended[1].Type != "patient_search" || body.Appended[1].Matches[0].Name != "Jane Doe" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_SendEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := postJSON(t, NewHandler(f.m).Send, `{"text":""}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_AttachRejectsImage(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, _ := w.CreateFormFile("file", "scan.png")
	fw.Write([]byte("png"))
	w.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/document/files", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	c := e.NewContext(req, httptest.NewRecorder())

	err := NewHandler(f.m).Attach(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %v", err)
	}
	if len(f.be.Calls()) != 0 {
		t.Error("expected no backend calls")
	}
}

func TestHandler_ExportEmpty(t *testing.T) {
	f := newFixture(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/document/export", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := NewHandler(f.m).Export(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
