package negotiation

import (
	"testing"

	"github.com/redlinehq/redline/model"
)

func testDoc() *model.Document {
	return &model.Document{
		ID:                 "doc-1",
		Data:               map[string]any{"party_a_name": "Initech", "governing_law": "Delaware"},
		PendingInputFields: []string{"party_b_name", "party_b_email"},
		WorkflowState:      model.StateAwaitingInput,
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	sub := &Submission{
		FilledFields: map[string]any{"party_b_name": "Acme"},
	}

	err := Validate(testDoc(), nil, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	if len(ee.Details) != 1 || ee.Details[0].Field != "party_b_email" {
		t.Errorf("details = %v, want exactly party_b_email", ee.Details)
	}
}

func TestValidate_BlankValueCountsAsMissing(t *testing.T) {
	sub := &Submission{
		FilledFields: map[string]any{"party_b_name": "Acme", "party_b_email": "   "},
	}

	err := Validate(testDoc(), nil, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
}

func TestValidate_FillLimitedToPendingInputFields(t *testing.T) {
	sub := &Submission{
		FilledFields: map[string]any{
			"party_b_name":  "Acme",
			"party_b_email": "legal@acme.test",
			"governing_law": "Texas",
		},
	}

	err := Validate(testDoc(), nil, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	if len(ee.Details) != 1 || ee.Details[0].Field != "governing_law" || ee.Details[0].Code != "not_requested" {
		t.Errorf("details = %+v, want governing_law/not_requested", ee.Details)
	}
}

func TestValidate_FilledAndSuggestedOverlapRejected(t *testing.T) {
	sub := &Submission{
		FilledFields:     map[string]any{"party_b_name": "Acme", "party_b_email": "legal@acme.test"},
		SuggestedChanges: map[string]any{"party_b_name": "Acme Corp"},
	}

	err := Validate(testDoc(), nil, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	if len(ee.Details) != 1 || ee.Details[0].Field != "party_b_name" || ee.Details[0].Code != "ambiguous" {
		t.Errorf("details = %+v, want party_b_name/ambiguous", ee.Details)
	}
}

func TestValidate_SuggestedAndRespondedOverlapRejected(t *testing.T) {
	doc := testDoc()
	doc.PendingInputFields = nil
	incoming := map[string]model.Suggestion{
		"governing_law": {Field: "governing_law", NewValue: "California", SuggestedBy: model.RolePartyB},
	}
	sub := &Submission{
		SuggestedChanges: map[string]any{"governing_law": "Texas"},
		Responses: map[string]model.SuggestionResponse{
			"governing_law": {Decision: model.ResponseCountered, CounterValue: "New York"},
		},
	}

	err := Validate(doc, incoming, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	found := false
	for _, d := range ee.Details {
		if d.Field == "governing_law" && d.Code == "ambiguous" {
			found = true
		}
	}
	if !found {
		t.Errorf("details = %+v, want governing_law/ambiguous", ee.Details)
	}
}

func TestValidate_NonScalarValuesRejected(t *testing.T) {
	sub := &Submission{
		FilledFields: map[string]any{
			"party_b_name":  map[string]any{"legal": "Acme"},
			"party_b_email": "legal@acme.test",
		},
		SuggestedChanges: map[string]any{"governing_law": []any{"Texas", "Delaware"}},
	}

	err := Validate(testDoc(), nil, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	codes := make(map[string]string)
	for _, d := range ee.Details {
		codes[d.Field] = d.Code
	}
	if codes["party_b_name"] != "invalid_type" || codes["governing_law"] != "invalid_type" {
		t.Errorf("details = %+v, want invalid_type on both composite values", ee.Details)
	}
}

func TestCheckFieldValues(t *testing.T) {
	ok := map[string]any{"party_a_name": "Initech", "mutual": true, "purpose": nil}
	if err := CheckFieldValues(ok); err != nil {
		t.Errorf("CheckFieldValues(scalars) = %v, want nil", err)
	}

	err := CheckFieldValues(map[string]any{"party_a_address": map[string]any{"city": "Austin"}})
	ee, okType := err.(*model.ErrorEnvelope)
	if !okType || ee.Code != model.ErrValidationError {
		t.Fatalf("CheckFieldValues(composite) = %v, want VALIDATION_ERROR", err)
	}
	if len(ee.Details) != 1 || ee.Details[0].Field != "party_a_address" {
		t.Errorf("details = %+v, want party_a_address named", ee.Details)
	}
}

func TestValidate_EmptySubmissionRejected(t *testing.T) {
	err := Validate(testDoc(), nil, &Submission{})
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("Validate(empty) = %v, want BAD_REQUEST", err)
	}
}

func TestValidate_CounterWithoutValue(t *testing.T) {
	doc := testDoc()
	doc.PendingInputFields = nil
	incoming := map[string]model.Suggestion{
		"governing_law": {Field: "governing_law", NewValue: "California", SuggestedBy: model.RolePartyB},
	}
	sub := &Submission{
		Responses: map[string]model.SuggestionResponse{
			"governing_law": {Decision: model.ResponseCountered},
		},
	}

	err := Validate(doc, incoming, sub)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("Validate() = %v, want VALIDATION_ERROR", err)
	}
	if ee.Details[0].Code != "counter_value_required" {
		t.Errorf("detail code = %q, want counter_value_required", ee.Details[0].Code)
	}
}

func TestValidate_ResponseWithoutIncomingSuggestion(t *testing.T) {
	doc := testDoc()
	doc.PendingInputFields = nil
	sub := &Submission{
		Responses: map[string]model.SuggestionResponse{
			"governing_law": {Decision: model.ResponseAccepted},
		},
	}

	err := Validate(doc, nil, sub)
	if !model.IsCode(err, model.ErrValidationError) {
		t.Errorf("Validate() = %v, want VALIDATION_ERROR", err)
	}
}

func TestFold_FilledAndSuggested(t *testing.T) {
	doc := testDoc()
	sub := &Submission{
		FilledFields:     map[string]any{"party_b_name": "Acme"},
		SuggestedChanges: map[string]any{"governing_law": "California"},
	}

	diff, suggested, applied := Fold(doc, nil, sub)

	if d := diff["party_b_name"]; d.Before != nil || d.After != "Acme" {
		t.Errorf("filled delta = %+v", d)
	}
	if d := diff["governing_law"]; d.Before != "Delaware" || d.After != "California" {
		t.Errorf("suggested delta = %+v", d)
	}
	if applied["party_b_name"] != "Acme" {
		t.Error("filled field should apply immediately")
	}
	if _, ok := applied["governing_law"]; ok {
		t.Error("a suggestion must not change live data")
	}
	if suggested["governing_law"] != "California" {
		t.Error("suggestion should await the counterpart")
	}
}

func TestFold_AcceptAppliesRejectDoesNot(t *testing.T) {
	doc := testDoc()
	incoming := map[string]model.Suggestion{
		"governing_law": {Field: "governing_law", OldValue: "Delaware", NewValue: "California", SuggestedBy: model.RolePartyB},
		"party_a_name":  {Field: "party_a_name", OldValue: "Initech", NewValue: "Initech LLC", SuggestedBy: model.RolePartyB},
	}
	sub := &Submission{
		Responses: map[string]model.SuggestionResponse{
			"governing_law": {Decision: model.ResponseAccepted},
			"party_a_name":  {Decision: model.ResponseRejected},
		},
	}

	_, suggested, applied := Fold(doc, incoming, sub)

	if applied["governing_law"] != "California" {
		t.Error("accepted suggestion should overwrite the live value")
	}
	if _, ok := applied["party_a_name"]; ok {
		t.Error("rejected suggestion must leave live data unchanged")
	}
	if len(suggested) != 0 {
		t.Errorf("suggested = %v, want none", suggested)
	}
}

func TestFold_CounterBecomesOutgoingSuggestion(t *testing.T) {
	doc := testDoc()
	incoming := map[string]model.Suggestion{
		"governing_law": {Field: "governing_law", OldValue: "Delaware", NewValue: "California", SuggestedBy: model.RolePartyB},
	}
	sub := &Submission{
		Responses: map[string]model.SuggestionResponse{
			"governing_law": {Decision: model.ResponseCountered, CounterValue: "New York"},
		},
	}

	diff, suggested, applied := Fold(doc, incoming, sub)

	if len(applied) != 0 {
		t.Error("a counter alone must not change live data")
	}
	if suggested["governing_law"] != "New York" {
		t.Errorf("suggested = %v, want counter value as new outgoing suggestion", suggested)
	}
	if d := diff["governing_law"]; d.Before != "California" || d.After != "New York" {
		t.Errorf("counter delta = %+v", d)
	}
}
