// Package integration provides a reusable test harness for end-to-end
// testing of the redline negotiation server. It starts a full HTTP server
// over the in-memory store with a capturing notifier, so tests exercise the
// same wiring as production minus the database.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/notify"
	"github.com/redlinehq/redline/internal/render"
	"github.com/redlinehq/redline/internal/revision"
	"github.com/redlinehq/redline/internal/store"
	"github.com/redlinehq/redline/internal/token"
	"github.com/redlinehq/redline/internal/transport"
	"github.com/redlinehq/redline/internal/workflow"
	"github.com/redlinehq/redline/model"
)

var harnessSecret = []byte("integration-test-secret")

// CapturedNotifier records every outbound notification so tests can follow
// the links a real counterpart would receive.
type CapturedNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	fail     bool
}

// Notify implements notify.Notifier.
func (n *CapturedNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	if n.fail {
		return model.NewDeliveryError("capture sink set to fail")
	}
	return nil
}

// Fail makes subsequent deliveries report failure.
func (n *CapturedNotifier) Fail(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

// ByEvent returns all captured messages for one event type.
func (n *CapturedNotifier) ByEvent(event string) []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Message
	for _, m := range n.messages {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// TestHarness encapsulates a fully wired server instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	cfg    *config.Config

	Store    *store.MemoryStore
	Notifier *CapturedNotifier
	Gate     *token.Gate
	Engine   *workflow.Engine
}

// HarnessOption configures the test harness.
type HarnessOption func(*config.Config)

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.Server.HandlerTimeout = d
	}
}

// WithSignTTL sets the lifetime of SIGN tokens.
func WithSignTTL(d time.Duration) HarnessOption {
	return func(c *config.Config) {
		c.Tokens.SignTTL = d
	}
}

// NewTestHarness creates and starts a full server instance. The server is
// cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = 10 * time.Second
	cfg.Observability.Metrics.Enabled = false
	for _, opt := range opts {
		opt(cfg)
	}

	logger := zap.NewNop()
	st := store.NewMemoryStore()
	gate := token.NewGate(st)
	revisions := revision.NewService(st)
	notifier := &CapturedNotifier{}

	engine := workflow.NewEngine(
		st, gate, revisions,
		render.NewPDF(cfg.Render.VerificationBaseURL),
		notifier,
		logger, nil,
		cfg.Tokens, cfg.Server.PublicBaseURL,
	)

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Engine:       engine,
		Gate:         gate,
		Revisions:    revisions,
		Authenticate: transport.SessionAuthenticator(harnessSecret, cfg.Identity),
	})

	h := &TestHarness{
		t:        t,
		server:   httptest.NewServer(router),
		cfg:      cfg,
		Store:    st,
		Notifier: notifier,
		Gate:     gate,
		Engine:   engine,
	}
	t.Cleanup(h.server.Close)
	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// Session mints a valid owner session token.
func (h *TestHarness) Session(subjectID, email string) string {
	h.t.Helper()
	tok, err := transport.MintSessionToken(harnessSecret, h.cfg.Identity, subjectID, email)
	if err != nil {
		h.t.Fatalf("mint session: %v", err)
	}
	return tok
}

// ExpiredSession mints a session token that is already past its expiry.
func (h *TestHarness) ExpiredSession(subjectID string) string {
	h.t.Helper()
	cfg := h.cfg.Identity
	cfg.SessionTTL = -2 * time.Hour
	tok, err := transport.MintSessionToken(harnessSecret, cfg, subjectID, "")
	if err != nil {
		h.t.Fatalf("mint expired session: %v", err)
	}
	return tok
}

// ShareToken extracts the opaque token from a share or sign link.
func (h *TestHarness) ShareToken(link string) string {
	h.t.Helper()
	i := strings.LastIndex(link, "/")
	if i < 0 || i == len(link)-1 {
		h.t.Fatalf("malformed link %q", link)
	}
	return link[i+1:]
}

// --- HTTP client helpers ---

// GET performs a GET request, authenticated when token is non-empty.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token)
}

// POST performs a POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token)
}

// PATCH performs a PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("PATCH", path, body, token)
}

func (h *TestHarness) doRequest(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code and
// drains the body on mismatch so the failure message shows it.
func (h *TestHarness) AssertStatus(resp *http.Response, expected int) {
	h.t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		h.t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, body)
	}
}

// ErrorCode parses an error response and returns its code.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var envelope struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &envelope)
	return envelope.Error.Code
}
