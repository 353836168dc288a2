package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/medassist/medassist/internal/platform/backend"
)

// Responder produces chat replies and speech.
type Responder interface {
	Reply(ctx context.Context, request, conversationID string) (string, error)
	Speak(ctx context.Context, text string) ([]byte, error)
}

type responderHTTP struct {
	client *backend.Client
}

// NewResponderHTTP talks to /chat-response and /voice-over.
func NewResponderHTTP(client *backend.Client) Responder {
	return &responderHTTP{client: client}
}

func (r *responderHTTP) Reply(ctx context.Context, request, conversationID string) (string, error) {
	form := url.Values{"request": {request}}
	if conversationID != "" {
		form.Set("conversation_id", conversationID)
	}
	var raw json.RawMessage
	if err := r.client.PostForm(ctx, "/chat-response", form, &raw); err != nil {
		return "", err
	}
	return decodeReply(raw)
}

// decodeReply accepts a bare JSON string or {"response": "..."}.
func decodeReply(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var obj struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode chat reply: %w", err)
	}
	if obj.Response == nil {
		return "", errors.New("chat reply has no response field")
	}
	return *obj.Response, nil
}

func (r *responderHTTP) Speak(ctx context.Context, text string) ([]byte, error) {
	var raw json.RawMessage
	if err := r.client.PostForm(ctx, "/voice-over", url.Values{"voice_data": {text}}, &raw); err != nil {
		return nil, err
	}
	return decodeAudio(raw)
}

// decodeAudio accepts the base64 payload as a JSON string or as raw text,
// optionally prefixed with a data: URI header.
func decodeAudio(raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	audio, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return audio, nil
}
