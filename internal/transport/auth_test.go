package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/model"
)

var testSecret = []byte("test-session-secret")

func testIdentity() config.IdentityConfig {
	return config.IdentityConfig{
		Issuer:     "redline",
		Audience:   "redline",
		SessionTTL: time.Hour,
	}
}

func authedRequest(t *testing.T, token string) *http.Request {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	return resp.Error.Message
}

func TestSessionAuthenticator_validToken(t *testing.T) {
	cfg := testIdentity()
	tok, err := MintSessionToken(testSecret, cfg, "owner-1", "owner@example.com")
	if err != nil {
		t.Fatalf("MintSessionToken() error = %v", err)
	}

	var got *model.ActorContext
	handler := SessionAuthenticator(testSecret, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = model.ActorFrom(r.Context())
		w.WriteHeader(200)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got == nil {
		t.Fatal("ActorContext should be in context")
	}
	if got.SubjectID != "owner-1" {
		t.Errorf("SubjectID = %q, want owner-1", got.SubjectID)
	}
	if got.Email != "owner@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if got.Role != model.RolePartyA {
		t.Errorf("Role = %q, want %q", got.Role, model.RolePartyA)
	}
}

func TestSessionAuthenticator_missingHeader(t *testing.T) {
	handler := SessionAuthenticator(testSecret, testIdentity())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without authorization")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, ""))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSessionAuthenticator_wrongScheme(t *testing.T) {
	handler := SessionAuthenticator(testSecret, testIdentity())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSessionAuthenticator_wrongSecret(t *testing.T) {
	cfg := testIdentity()
	tok, _ := MintSessionToken([]byte("another-secret"), cfg, "owner-1", "")

	handler := SessionAuthenticator(testSecret, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := errorMessage(t, w); got != "Invalid token signature" {
		t.Errorf("message = %q, want Invalid token signature", got)
	}
}

func TestSessionAuthenticator_expiredToken(t *testing.T) {
	cfg := testIdentity()
	cfg.SessionTTL = -2 * time.Hour
	tok, _ := MintSessionToken(testSecret, cfg, "owner-1", "")

	handler := SessionAuthenticator(testSecret, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := errorMessage(t, w); got != "Token expired" {
		t.Errorf("message = %q, want Token expired", got)
	}
}

func TestSessionAuthenticator_wrongIssuer(t *testing.T) {
	minting := testIdentity()
	minting.Issuer = "someone-else"
	tok, _ := MintSessionToken(testSecret, minting, "owner-1", "")

	handler := SessionAuthenticator(testSecret, testIdentity())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := errorMessage(t, w); got != "Invalid token issuer" {
		t.Errorf("message = %q, want Invalid token issuer", got)
	}
}

func TestSessionAuthenticator_missingSubject(t *testing.T) {
	cfg := testIdentity()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)

	handler := SessionAuthenticator(testSecret, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSessionAuthenticator_disallowedAlgorithm(t *testing.T) {
	cfg := testIdentity()
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": cfg.Issuer,
		"aud": cfg.Audience,
		"sub": "owner-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)

	handler := SessionAuthenticator(testSecret, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest(t, tok))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if got := errorMessage(t, w); got != "Disallowed signing algorithm" {
		t.Errorf("message = %q, want Disallowed signing algorithm", got)
	}
}
