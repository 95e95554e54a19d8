// Package notify delivers negotiation events to the other party. Delivery
// runs after the owning transition has committed; a failed delivery is
// logged and counted but never rolls the transition back.
package notify

import "context"

// Event names emitted by the workflow engine.
const (
	EventInviteSent       = "invite_sent"
	EventChangesSubmitted = "changes_submitted"
	EventChangesRequested = "changes_requested"
	EventReadyToSign      = "ready_to_sign"
	EventSigned           = "signed"
	EventCompleted        = "completed"
	EventVoided           = "voided"
)

// Message is one outbound notification.
type Message struct {
	Recipient  string         `json:"recipient"`
	Event      string         `json:"event"`
	DocumentID string         `json:"document_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Notifier delivers a message to its recipient.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
