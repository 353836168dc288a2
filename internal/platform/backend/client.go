// Package backend is the HTTP transport to the external medical-assistant API.
// It knows how to encode JSON, urlencoded and multipart requests and how to
// turn non-2xx responses into an APIError carrying the backend's detail text.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CorrelationHeader is sent with every request so backend logs can be joined
// with ours.
const CorrelationHeader = "X-Request-ID"

type correlationKey struct{}

// WithCorrelationID makes requests issued with ctx carry id instead of a
// fresh one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// StatusCode extracts the HTTP status from an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Detail returns the backend's detail message when err is an APIError with
// one, and err.Error() otherwise.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return err.Error()
}

// FilePart is a binary field of a multipart request. ContentType defaults to
// application/octet-stream.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxResponseSize caps response bodies at n bytes. n <= 0 keeps
// DefaultMaxResponseSize.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResponse = n
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// DefaultMaxResponseSize is the response body cap when none is configured.
const DefaultMaxResponseSize int64 = 32 << 20

// ErrResponseTooLarge is returned when a response body exceeds the cap.
var ErrResponseTooLarge = errors.New("backend response too large")

// Client issues requests relative to a base URL.
type Client struct {
	base        *url.URL
	httpClient  *http.Client
	logger      zerolog.Logger
	maxResponse int64
}

// New creates a Client for baseURL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must use http or https, got %q", u.Scheme)
	}
	c := &Client{
		base:        u,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      zerolog.Nop(),
		maxResponse: DefaultMaxResponseSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL resolves path and query against the base URL. Path segments are
// escaped by the caller (see PathEscape).
func (c *Client) URL(path string, query url.Values) string {
	s := c.base.String() + path
	if len(query) > 0 {
		s += "?" + query.Encode()
	}
	return s
}

// PathEscape escapes a single path segment such as a conversation id.
func PathEscape(segment string) string {
	return url.PathEscape(segment)
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

// PostJSON sends in as a JSON body. A nil in sends the JSON literal null.
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, query, body, "application/json", out)
}

// PutJSON sends in as a JSON body with PUT.
func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, nil, body, "application/json", out)
}

// Post issues a POST without a body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, query, nil, "", out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodDelete, path, query, nil, "", out)
}

// PostForm sends fields as application/x-www-form-urlencoded.
func (c *Client) PostForm(ctx context.Context, path string, fields url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, []byte(fields.Encode()), "application/x-www-form-urlencoded", out)
}

// PostMultipart sends fields and files as multipart/form-data. Field order
// follows the order of keys in fieldOrder so requests are reproducible.
func (c *Client) PostMultipart(ctx context.Context, path string, fieldOrder []string, fields map[string]string, files []FilePart, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := createFilePart(w, f)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", f.Field, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("write form file %s: %w", f.Field, err)
		}
	}
	for _, k := range fieldOrder {
		if err := w.WriteField(k, fields[k]); err != nil {
			return fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, buf.Bytes(), w.FormDataContentType(), out)
}

func createFilePart(w *multipart.Writer, f FilePart) (io.Writer, error) {
	if f.ContentType == "" {
		return w.CreateFormFile(f.Field, f.FileName)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
	h.Set("Content-Type", f.ContentType)
	return w.CreatePart(h)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	rid := correlationID(ctx)
	req.Header.Set(CorrelationHeader, rid)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", rid).Str("method", method).Str("path", path).Msg("backend request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxResponse {
		c.logger.Warn().Str("request_id", rid).Str("method", method).Str("path", path).Int64("limit", c.maxResponse).Msg("backend response exceeds limit")
		return fmt.Errorf("%s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, c.maxResponse)
	}

	c.logger.Debug().
		Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Detail: parseDetail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// parseDetail extracts FastAPI's {"detail": ...}. Structured details are
// re-encoded as JSON so nothing is lost.
func parseDetail(data []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return strings.TrimSpace(string(data))
	}
	if len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		return string(envelope.Detail)
	}
	return envelope.Error
}
