package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/negotiation"
	"github.com/redlinehq/redline/model"
)

// sharedView shows the document to the link bearer, with field states and
// incoming suggestions resolved for their role.
func (h *handler) sharedView(w http.ResponseWriter, r *http.Request) {
	grant, err := h.gate.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !grant.Capabilities.Has(model.CapView) {
		WriteError(w, r, model.NewForbiddenError("this link does not permit viewing"))
		return
	}

	view, err := h.engine.ViewFor(r.Context(), grant.Document, grant.Token.ActorRole)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// sharedSubmit records the link bearer's negotiation turn.
func (h *handler) sharedSubmit(w http.ResponseWriter, r *http.Request) {
	grant, err := h.gate.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !grant.Capabilities.Has(model.CapEdit) {
		WriteError(w, r, model.NewForbiddenError("this link does not permit editing"))
		return
	}

	var req struct {
		negotiation.Submission
		ExpectedVersion int `json:"expected_version,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	if len(req.SuggestedChanges) > 0 && !grant.Capabilities.Has(model.CapSuggest) {
		WriteError(w, r, model.NewForbiddenError("this link does not permit suggesting changes"))
		return
	}

	rev, doc, err := h.engine.Submit(r.Context(), grant.Actor(), grant.Document.ID, &req.Submission, req.ExpectedVersion)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"revision": rev,
		"document": doc,
	})
}

// sharedSign records a signature through a single-use SIGN link. The engine
// resolves the token itself so consumption and the signature share one
// transaction.
func (h *handler) sharedSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	signer, doc, err := h.engine.Sign(r.Context(), chi.URLParam(r, "token"), req.Name)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"signer":   signer,
		"document": doc,
	})
}
