// Package token implements the access token gate: minting opaque share
// tokens, resolving them to capability grants, and consuming single-use
// tokens. All denial paths surface the same generic message; only the error
// code (kept for logs and metrics) distinguishes invalid, expired, and
// consumed.
package token

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/store"
	"github.com/redlinehq/redline/model"
)

// scopeCapabilities maps each token scope to the exact capability set it
// grants. Scopes are not ordered tiers: REVIEW grants suggest but not sign,
// SIGN grants sign but not suggest.
var scopeCapabilities = map[string]model.CapabilitySet{
	model.ScopeView:   {model.CapView: true},
	model.ScopeEdit:   {model.CapView: true, model.CapEdit: true},
	model.ScopeReview: {model.CapView: true, model.CapEdit: true, model.CapSuggest: true},
	model.ScopeSign:   {model.CapView: true, model.CapEdit: true, model.CapSign: true},
}

// Grant is the result of resolving a valid token: the token itself, the
// document it unlocks, and the capabilities the bearer now holds.
type Grant struct {
	Token        model.AccessToken
	Document     model.Document
	Capabilities model.CapabilitySet
}

// Actor builds the ActorContext for the grant's bearer.
func (g *Grant) Actor() *model.ActorContext {
	return &model.ActorContext{
		SubjectID: g.Token.Token,
		Role:      g.Token.ActorRole,
	}
}

// Gate mints and resolves access tokens against the store.
type Gate struct {
	store store.Store
	now   func() time.Time
}

// NewGate creates a token gate.
func NewGate(st store.Store) *Gate {
	return &Gate{store: st, now: time.Now}
}

// Issue mints a new opaque token for one document. ttl of zero means the
// token never expires. signerID is set only for SIGN tokens.
func (g *Gate) Issue(ctx context.Context, documentID, scope, actorRole, signerID string, ttl time.Duration) (model.AccessToken, error) {
	if _, ok := scopeCapabilities[scope]; !ok {
		return model.AccessToken{}, model.NewBadRequestError("unknown token scope " + scope)
	}
	now := g.now().UTC()
	tok := model.AccessToken{
		Token:      uuid.NewString(),
		DocumentID: documentID,
		SignerID:   signerID,
		Scope:      scope,
		ActorRole:  actorRole,
		CreatedAt:  now,
	}
	if ttl > 0 {
		tok.ExpiresAt = now.Add(ttl)
	}
	if err := g.store.CreateToken(ctx, tok); err != nil {
		return model.AccessToken{}, err
	}
	return tok, nil
}

// Mint builds a SIGN token for a signer without persisting it, for use
// inside a store transaction that creates signers and tokens together.
func Mint(documentID, scope, actorRole, signerID string, ttl time.Duration, now time.Time) model.AccessToken {
	tok := model.AccessToken{
		Token:      uuid.NewString(),
		DocumentID: documentID,
		SignerID:   signerID,
		Scope:      scope,
		ActorRole:  actorRole,
		CreatedAt:  now,
	}
	if ttl > 0 {
		tok.ExpiresAt = now.Add(ttl)
	}
	return tok
}

// Resolve validates a bearer token and returns its grant. Checks run in a
// fixed order so the reported code is deterministic: existence, expiry,
// consumption. Resolving never consumes; single-use semantics live in the
// terminal action that the token gates.
func (g *Gate) Resolve(ctx context.Context, token string) (*Grant, error) {
	if token == "" {
		return nil, model.NewTokenInvalidError()
	}
	tok, err := g.store.GetToken(ctx, token)
	if err != nil {
		if model.IsCode(err, model.ErrNotFound) {
			return nil, model.NewTokenInvalidError()
		}
		return nil, err
	}
	if tok.Expired(g.now()) {
		return nil, model.NewTokenExpiredError()
	}
	if tok.Consumed() {
		return nil, model.NewTokenConsumedError()
	}

	doc, err := g.store.GetDocument(ctx, tok.DocumentID)
	if err != nil {
		return nil, err
	}
	return &Grant{
		Token:        tok,
		Document:     doc,
		Capabilities: scopeCapabilities[tok.Scope],
	}, nil
}

// Consume marks a token used. The store makes the check-and-set atomic, so
// concurrent consumers see exactly one success.
func (g *Gate) Consume(ctx context.Context, token string) error {
	return g.store.ConsumeToken(ctx, token, g.now().UTC())
}
