package integration

import (
	"testing"
	"time"

	"github.com/redlinehq/redline/internal/workflow"
	"github.com/redlinehq/redline/model"
)

func TestOwnerRoutesRejectAnonymous(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, "")
	h.AssertStatus(resp, 401)
}

func TestOwnerRoutesRejectExpiredSession(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, h.ExpiredSession("owner-1"))
	h.AssertStatus(resp, 401)
}

func TestStrangerCannotSeeDocument(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.Session("owner-1", "alice@example.com")

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, owner)
	h.AssertStatus(resp, 201)
	var doc model.Document
	h.ParseJSON(resp, &doc)

	// Another authenticated user gets a 404, not a 403: document existence
	// is not disclosed.
	stranger := h.Session("stranger-9", "eve@example.com")
	resp = h.GET("/api/documents/"+doc.ID, stranger)
	h.AssertStatus(resp, 404)
}

func TestShareLinkDenialsAreUniform(t *testing.T) {
	h := NewTestHarness(t, WithSignTTL(time.Nanosecond))
	owner := h.Session("owner-1", "alice@example.com")

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, owner)
	var doc model.Document
	h.ParseJSON(resp, &doc)
	resp = h.POST("/api/documents/"+doc.ID+"/share", map[string]any{"email": "bob@example.com"}, owner)
	h.AssertStatus(resp, 200)
	var share workflow.ShareResult
	h.ParseJSON(resp, &share)

	// Unknown, expired, and consumed tokens all answer 401 with the same
	// message, distinguishable only by internal code.
	resp = h.GET("/api/shared/no-such-token", "")
	if resp.StatusCode != 401 {
		t.Errorf("unknown token status = %d, want 401", resp.StatusCode)
	}
	var unknown struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &unknown)

	// Drive the document to signing so SIGN tokens (with the nanosecond
	// TTL) exist and are already expired.
	resp = h.POST("/api/shared/"+h.ShareToken(share.Link)+"/submit", map[string]any{
		"suggested_changes": map[string]any{"term_months": "24"},
	}, "")
	h.AssertStatus(resp, 201)
	resp = h.POST("/api/documents/"+doc.ID+"/approve", nil, owner)
	h.AssertStatus(resp, 200)

	invites := h.Notifier.ByEvent("ready_to_sign")
	if len(invites) != 2 {
		t.Fatalf("invites = %d, want 2", len(invites))
	}
	link, _ := invites[0].Payload["link"].(string)
	resp = h.POST("/api/shared/"+h.ShareToken(link)+"/sign", map[string]any{"name": "Bob"}, "")
	if resp.StatusCode != 401 {
		t.Errorf("expired token status = %d, want 401", resp.StatusCode)
	}
	var expired struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &expired)

	if unknown.Error.Message != expired.Error.Message {
		t.Errorf("denial messages differ: %q vs %q", unknown.Error.Message, expired.Error.Message)
	}
	if unknown.Error.Code == expired.Error.Code {
		t.Errorf("denial codes should differ internally, both %q", unknown.Error.Code)
	}
}

func TestReviewTokenCannotSign(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.Session("owner-1", "alice@example.com")

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, owner)
	var doc model.Document
	h.ParseJSON(resp, &doc)
	resp = h.POST("/api/documents/"+doc.ID+"/share", map[string]any{"email": "bob@example.com"}, owner)
	var share workflow.ShareResult
	h.ParseJSON(resp, &share)

	resp = h.POST("/api/shared/"+h.ShareToken(share.Link)+"/sign", map[string]any{"name": "Bob"}, "")
	h.AssertStatus(resp, 403)
}

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET("/health", "")
	h.AssertStatus(resp, 200)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := resp.Header.Get("X-Correlation-Id"); got == "" {
		t.Error("every response should carry a correlation ID")
	}
}

func TestSignTokensAreSingleUse(t *testing.T) {
	h := NewTestHarness(t)
	owner := h.Session("owner-1", "alice@example.com")

	resp := h.POST("/api/documents", map[string]any{"title": "NDA"}, owner)
	var doc model.Document
	h.ParseJSON(resp, &doc)
	resp = h.POST("/api/documents/"+doc.ID+"/share", map[string]any{"email": "bob@example.com"}, owner)
	var share workflow.ShareResult
	h.ParseJSON(resp, &share)

	resp = h.POST("/api/shared/"+h.ShareToken(share.Link)+"/submit", map[string]any{
		"suggested_changes": map[string]any{"term_months": "24"},
	}, "")
	h.AssertStatus(resp, 201)
	resp = h.POST("/api/documents/"+doc.ID+"/approve", nil, owner)
	h.AssertStatus(resp, 200)

	invites := h.Notifier.ByEvent("ready_to_sign")
	link, _ := invites[0].Payload["link"].(string)
	signTok := h.ShareToken(link)

	resp = h.POST("/api/shared/"+signTok+"/sign", map[string]any{"name": "Bob"}, "")
	h.AssertStatus(resp, 200)

	// Replay is rejected and records nothing further.
	resp = h.POST("/api/shared/"+signTok+"/sign", map[string]any{"name": "Bob Again"}, "")
	if resp.StatusCode != 401 {
		t.Errorf("replay status = %d, want 401", resp.StatusCode)
	}
	if got := h.ErrorCode(resp); got != model.ErrTokenConsumed {
		t.Errorf("replay code = %q, want %q", got, model.ErrTokenConsumed)
	}
}
