// Package fieldstate computes the per-field interaction mode shown to the
// current viewer: editable, pending-suggestion, or readonly. Every front end
// consumes this one resolver instead of re-deriving field states per screen.
package fieldstate

import (
	"github.com/redlinehq/redline/model"
)

// Resolve returns the presentation state for every field the viewer can see:
// the union of the document's data fields, its pending-input fields, and the
// fields with incoming suggestions.
//
// Precedence per field, first match wins:
//  1. incoming suggestion → pending_suggestion
//  2. listed in pendingInput → editable
//  3. otherwise → readonly
//
// An incoming suggestion outranks a fill prompt: resolving a conflict is a
// higher-priority action than first-time entry. A readonly field with no
// value and no pending input is inert; callers must tolerate it, it is not
// an error.
func Resolve(
	data map[string]any,
	pendingInput []string,
	incoming map[string]model.Suggestion,
) map[string]string {
	states := make(map[string]string, len(data)+len(pendingInput)+len(incoming))

	for field := range data {
		states[field] = model.FieldStateReadonly
	}
	for _, field := range pendingInput {
		states[field] = model.FieldStateEditable
	}
	for field := range incoming {
		states[field] = model.FieldStatePendingSuggestion
	}
	return states
}

// Incoming derives the suggestions awaiting the viewer's response from the
// latest revision. Only the newest revision is consulted; older unresolved
// rounds are historical. A suggestion is incoming if and only if its author
// role differs from the viewer's role. A nil revision yields no suggestions.
func Incoming(latest *model.Revision, viewerRole string) map[string]model.Suggestion {
	if latest == nil || latest.ActorRole == viewerRole {
		return nil
	}
	if len(latest.SuggestedChanges) == 0 {
		return nil
	}

	incoming := make(map[string]model.Suggestion, len(latest.SuggestedChanges))
	for field, value := range latest.SuggestedChanges {
		var oldValue any
		if delta, ok := latest.Diff[field]; ok {
			oldValue = delta.Before
		}
		incoming[field] = model.Suggestion{
			Field:       field,
			OldValue:    oldValue,
			NewValue:    value,
			SuggestedBy: latest.ActorRole,
		}
	}
	return incoming
}
