package model

import "time"

// Suggestion response decisions.
const (
	ResponseAccepted  = "accepted"
	ResponseRejected  = "rejected"
	ResponseCountered = "countered"
)

// FieldDelta records the before/after values of a single field within a
// revision diff.
type FieldDelta struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// Comment is a free-text remark attached to one field path of one revision.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// SuggestionResponse records one party's decision on an incoming suggestion.
// CounterValue is set only when Decision is ResponseCountered.
type SuggestionResponse struct {
	Decision     string `json:"decision"`
	CounterValue any    `json:"counter_value,omitempty"`
}

// Revision is an immutable, numbered record of one negotiation submission.
// Number is contiguous per document starting at 1 and assigned by the store.
// Diff holds exactly what was proposed, independent of what was ultimately
// merged. SuggestedChanges are the subset still awaiting the counterpart's
// response; counter-offers reappear here under the countering party's role.
// Comments may be appended after the fact; nothing else ever mutates.
type Revision struct {
	ID               string                        `json:"id"`
	DocumentID       string                        `json:"document_id"`
	Number           int                           `json:"number"`
	ActorRole        string                        `json:"actor_role"`
	Message          string                        `json:"message,omitempty"`
	Diff             map[string]FieldDelta         `json:"diff"`
	SuggestedChanges map[string]any                `json:"suggested_changes,omitempty"`
	Responses        map[string]SuggestionResponse `json:"responses,omitempty"`
	Comments         map[string][]Comment          `json:"comments,omitempty"`
	CreatedAt        time.Time                     `json:"created_at"`
}

// Suggestion is a proposed value for a field, derived from the latest
// revision. It is incoming to a viewer whose role differs from SuggestedBy.
type Suggestion struct {
	Field       string `json:"field"`
	OldValue    any    `json:"old_value"`
	NewValue    any    `json:"new_value"`
	SuggestedBy string `json:"suggested_by"`
}
