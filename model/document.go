package model

import "time"

// Document workflow state constants.
const (
	StateDraft             = "DRAFT"
	StateAwaitingInput     = "AWAITING_INPUT"
	StateReviewingChanges  = "REVIEWING_CHANGES"
	StateReadyToSign       = "READY_TO_SIGN"
	StateSigningInProgress = "SIGNING_IN_PROGRESS"
	StateSigningComplete   = "SIGNING_COMPLETE"
	StateVoided            = "VOIDED"
)

// Actor role constants. PARTY_A is the disclosing party that drafts and owns
// the document; PARTY_B is the receiving counterpart acting through a share
// link.
const (
	RolePartyA = "PARTY_A"
	RolePartyB = "PARTY_B"
)

// Per-field presentation states shown to the current viewer.
const (
	FieldStateEditable          = "editable"
	FieldStatePendingSuggestion = "pending_suggestion"
	FieldStateReadonly          = "readonly"
)

// Document is an agreement draft under negotiation. Data maps field names to
// scalar values (string or bool). FieldOrder tracks insertion order of Data
// so change lists render stably. Version is the optimistic-locking counter;
// every successful update increments it.
type Document struct {
	ID                 string            `json:"id"`
	OwnerID            string            `json:"owner_id"`
	Title              string            `json:"title"`
	TemplateID         string            `json:"template_id"`
	Data               map[string]any    `json:"data"`
	FieldOrder         []string          `json:"field_order,omitempty"`
	PendingInputFields []string          `json:"pending_input_fields,omitempty"`
	WorkflowState      string            `json:"workflow_state"`
	CounterpartEmail   string            `json:"counterpart_email,omitempty"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Terminal reports whether no further mutation of the document is legal.
func (d *Document) Terminal() bool {
	return d.WorkflowState == StateSigningComplete || d.WorkflowState == StateVoided
}

// HasPendingInput reports whether field is one of the fields the current
// holder must fill before submitting.
func (d *Document) HasPendingInput(field string) bool {
	for _, f := range d.PendingInputFields {
		if f == field {
			return true
		}
	}
	return false
}

// SetField writes a field value and records first-seen insertion order.
func (d *Document) SetField(field string, value any) {
	if d.Data == nil {
		d.Data = make(map[string]any)
	}
	if _, exists := d.Data[field]; !exists {
		d.FieldOrder = append(d.FieldOrder, field)
	}
	d.Data[field] = value
}

// CounterpartRole returns the opposing role for the given actor role.
func CounterpartRole(role string) string {
	if role == RolePartyA {
		return RolePartyB
	}
	return RolePartyA
}
