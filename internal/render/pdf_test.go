package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redlinehq/redline/model"
)

func sampleDocument(state string) model.Document {
	return model.Document{
		ID:    "doc-1",
		Title: "Mutual NDA",
		Data: map[string]any{
			"party_a_name":  "Initech",
			"party_b_name":  "Acme",
			"governing_law": "Delaware",
			"non_solicit":   true,
		},
		FieldOrder:    []string{"party_a_name", "party_b_name", "governing_law", "non_solicit"},
		WorkflowState: state,
	}
}

func TestRender_ProducesPDF(t *testing.T) {
	r := NewPDF("https://redline.example.com")

	out, err := r.Render(context.Background(), sampleDocument(model.StateReadyToSign), nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Errorf("output does not start with a PDF header")
	}
}

func TestRender_SignedDocumentCarriesCertificate(t *testing.T) {
	r := NewPDF("https://redline.example.com")
	signedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signers := []model.Signer{
		{ID: "sg-a", Role: model.RolePartyA, Email: "a@initech.test", Name: "Alice Pine", Status: model.SignerSigned, SignedAt: &signedAt},
		{ID: "sg-b", Role: model.RolePartyB, Email: "b@acme.test", Status: model.SignerPending},
	}

	plain, err := r.Render(context.Background(), sampleDocument(model.StateReadyToSign), nil)
	if err != nil {
		t.Fatalf("Render(unsigned) error = %v", err)
	}
	signed, err := r.Render(context.Background(), sampleDocument(model.StateSigningInProgress), signers)
	if err != nil {
		t.Fatalf("Render(signed) error = %v", err)
	}
	if len(signed) <= len(plain) {
		t.Error("certificate block should add content to the rendered document")
	}
}

func TestOrderedFields_InsertionOrderThenSorted(t *testing.T) {
	doc := model.Document{
		Data:       map[string]any{"b": "2", "a": "1", "z": "3"},
		FieldOrder: []string{"z", "b"},
	}
	got := orderedFields(doc)
	want := []string{"z", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("orderedFields() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("orderedFields()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
