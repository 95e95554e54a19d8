package model

import "time"

// Signer status constants.
const (
	SignerPending = "PENDING"
	SignerSigned  = "SIGNED"
)

// Signer is a party identity bound to a pending or completed signature act
// on one document. Status moves to SIGNED exactly once.
type Signer struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Role       string     `json:"role"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
}
