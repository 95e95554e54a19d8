// Package negotiation implements the suggestion protocol: assembling one
// party's review session into a single pending transaction, validating it
// atomically, and folding it into a revision diff. Intermediate client-side
// state is never trusted or persisted; everything is re-derived here at
// submission time.
package negotiation

import (
	"fmt"
	"strings"

	"github.com/redlinehq/redline/model"
)

// Submission is the pending transaction one party sends back at the end of
// a review session: values for the fields they were asked to fill, new
// suggestions on fields they may not edit directly, and decisions on the
// suggestions that came in with the latest revision.
type Submission struct {
	FilledFields     map[string]any                      `json:"filled_fields,omitempty"`
	SuggestedChanges map[string]any                      `json:"suggested_changes,omitempty"`
	Responses        map[string]model.SuggestionResponse `json:"responses,omitempty"`
	Message          string                              `json:"message,omitempty"`
}

// Empty reports whether the submission carries nothing to send back.
func (s *Submission) Empty() bool {
	return len(s.FilledFields) == 0 && len(s.SuggestedChanges) == 0 && len(s.Responses) == 0
}

// Validate checks a submission against the document and the incoming
// suggestions the responder is answering. It rejects synchronously with a
// VALIDATION_ERROR naming every offending field; nothing is partially
// applied.
func Validate(doc *model.Document, incoming map[string]model.Suggestion, sub *Submission) error {
	var details []model.FieldError

	if sub.Empty() {
		return model.NewBadRequestError("nothing to submit: no filled fields, suggestions, or responses")
	}

	pending := make(map[string]bool, len(doc.PendingInputFields))
	for _, field := range doc.PendingInputFields {
		pending[field] = true
	}

	// Direct fills are limited to the fields the sharer opened for input;
	// everything else goes through the suggestion protocol.
	for field, value := range sub.FilledFields {
		if !pending[field] {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "not_requested",
				Message: "this field is not open for direct input; suggest a change instead",
			})
			continue
		}
		if !isScalar(value) {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "invalid_type",
				Message: "field values must be strings or booleans",
			})
		}
	}

	// Every pending-input field must hold a non-blank value, either already
	// on the document or supplied now.
	for _, field := range doc.PendingInputFields {
		value, supplied := sub.FilledFields[field]
		if !supplied {
			value = doc.Data[field]
		}
		if isBlank(value) {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "required",
				Message: "a value is required before submitting",
			})
		}
	}

	// Suggestions must carry scalar values and must not double up on a
	// field already filled in the same submission.
	for field, value := range sub.SuggestedChanges {
		if _, dup := sub.FilledFields[field]; dup {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "ambiguous",
				Message: "a field cannot be both filled and suggested in one submission",
			})
			continue
		}
		if !isScalar(value) {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "invalid_type",
				Message: "field values must be strings or booleans",
			})
			continue
		}
		if isBlank(value) {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "empty_suggestion",
				Message: "a suggested change needs a value",
			})
		}
	}

	// Responses must answer an actual incoming suggestion, must not target
	// a field already written elsewhere in the submission, and counters
	// must carry a counter value.
	for field, resp := range sub.Responses {
		if _, dup := sub.FilledFields[field]; dup {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "ambiguous",
				Message: "a field cannot be both filled and responded to in one submission",
			})
			continue
		}
		if _, dup := sub.SuggestedChanges[field]; dup {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "ambiguous",
				Message: "a field cannot be both suggested and responded to in one submission",
			})
			continue
		}
		if _, ok := incoming[field]; !ok {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "no_incoming_suggestion",
				Message: "there is no suggestion on this field to respond to",
			})
			continue
		}
		switch resp.Decision {
		case model.ResponseAccepted, model.ResponseRejected:
		case model.ResponseCountered:
			if !isScalar(resp.CounterValue) {
				details = append(details, model.FieldError{
					Field:   field,
					Code:    "invalid_type",
					Message: "field values must be strings or booleans",
				})
			} else if isBlank(resp.CounterValue) {
				details = append(details, model.FieldError{
					Field:   field,
					Code:    "counter_value_required",
					Message: "a counter-offer needs a value",
				})
			}
		default:
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "unknown_decision",
				Message: fmt.Sprintf("unknown decision %q", resp.Decision),
			})
		}
	}

	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

// Fold turns a validated submission into the revision diff and the data
// mutations it implies.
//
// The returned diff records exactly what was proposed: filled fields,
// suggested changes, accepted values, and counter-offers. suggested holds
// the entries still awaiting the counterpart (new suggestions plus counter
// values), which the field-state resolver will surface as incoming on the
// other side. applied holds the values that take effect immediately: filled
// pending-input fields and accepted incoming suggestions. Rejections record
// a response and change nothing.
func Fold(doc *model.Document, incoming map[string]model.Suggestion, sub *Submission) (
	diff map[string]model.FieldDelta,
	suggested map[string]any,
	applied map[string]any,
) {
	diff = make(map[string]model.FieldDelta)
	suggested = make(map[string]any)
	applied = make(map[string]any)

	for field, value := range sub.FilledFields {
		diff[field] = model.FieldDelta{Before: doc.Data[field], After: value}
		applied[field] = value
	}

	for field, value := range sub.SuggestedChanges {
		diff[field] = model.FieldDelta{Before: doc.Data[field], After: value}
		suggested[field] = value
	}

	for field, resp := range sub.Responses {
		in := incoming[field]
		switch resp.Decision {
		case model.ResponseAccepted:
			diff[field] = model.FieldDelta{Before: doc.Data[field], After: in.NewValue}
			applied[field] = in.NewValue
		case model.ResponseCountered:
			// A counter leaves live data alone and becomes a new outgoing
			// suggestion from the responder.
			diff[field] = model.FieldDelta{Before: in.NewValue, After: resp.CounterValue}
			suggested[field] = resp.CounterValue
		case model.ResponseRejected:
			// Recorded on the revision only.
		}
	}

	return diff, suggested, applied
}

// CheckFieldValues validates direct field writes when a draft is created or
// edited. Document data is flat: every value is a string or a boolean.
func CheckFieldValues(fields map[string]any) error {
	var details []model.FieldError
	for field, value := range fields {
		if !isScalar(value) {
			details = append(details, model.FieldError{
				Field:   field,
				Code:    "invalid_type",
				Message: "field values must be strings or booleans",
			})
		}
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool:
		return true
	}
	return false
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
