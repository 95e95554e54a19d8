package model

import "time"

// Access token scopes. Scopes are not a linear hierarchy; each grants a
// distinct capability set (see the token gate's scope table).
const (
	ScopeView   = "VIEW"
	ScopeEdit   = "EDIT"
	ScopeReview = "REVIEW"
	ScopeSign   = "SIGN"
)

// AccessToken is an opaque, expiring credential granting a bounded
// capability set against one document. SignerID binds SIGN tokens to the
// signer they were minted for. ConsumedAt is set exactly once, by the
// terminal action the token gates; a consumed or expired token grants
// nothing regardless of scope.
type AccessToken struct {
	Token      string     `json:"token"`
	DocumentID string     `json:"document_id"`
	SignerID   string     `json:"signer_id,omitempty"`
	Scope      string     `json:"scope"`
	ActorRole  string     `json:"actor_role"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Consumed reports whether the token's terminal capability has been used.
func (t *AccessToken) Consumed() bool {
	return t.ConsumedAt != nil
}
