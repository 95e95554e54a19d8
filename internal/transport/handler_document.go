package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/redlinehq/redline/internal/negotiation"
	"github.com/redlinehq/redline/internal/revision"
	"github.com/redlinehq/redline/internal/token"
	"github.com/redlinehq/redline/internal/workflow"
	"github.com/redlinehq/redline/model"
)

// handler holds the services behind the API routes.
type handler struct {
	engine    *workflow.Engine
	gate      *token.Gate
	revisions *revision.Service
}

func (h *handler) createDraft(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	if actor == nil {
		WriteError(w, r, model.NewUnauthorizedError("no authenticated session"))
		return
	}

	var req workflow.CreateDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	doc, err := h.engine.CreateDraft(r.Context(), actor, req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, doc)
}

func (h *handler) getDocument(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	doc, err := h.engine.OwnedDocument(r.Context(), actor, chi.URLParam(r, "documentId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	view, err := h.engine.ViewFor(r.Context(), doc, actor.Role)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (h *handler) editDraft(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())

	var req struct {
		Fields          map[string]any `json:"fields"`
		ExpectedVersion int            `json:"expected_version,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	doc, err := h.engine.EditDraft(r.Context(), actor, chi.URLParam(r, "documentId"), req.Fields, req.ExpectedVersion)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (h *handler) share(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())

	var req workflow.ShareRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	result, err := h.engine.Share(r.Context(), actor, chi.URLParam(r, "documentId"), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// ownerSubmit records the owner's counter turn while the document is under
// review. Ownership is checked first so strangers see a 404, not a turn
// violation.
func (h *handler) ownerSubmit(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	doc, err := h.engine.OwnedDocument(r.Context(), actor, chi.URLParam(r, "documentId"))
	if err != nil {
		WriteError(w, r, err)
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

	rev, updated, err := h.engine.Submit(r.Context(), actor, doc.ID, &req.Submission, req.ExpectedVersion)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"revision": rev,
		"document": updated,
	})
}

func (h *handler) requestChanges(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())

	var req struct {
		Message string   `json:"message,omitempty"`
		Fields  []string `json:"fields,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	doc, err := h.engine.RequestChanges(r.Context(), actor, chi.URLParam(r, "documentId"), req.Message, req.Fields)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (h *handler) approve(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	doc, err := h.engine.Approve(r.Context(), actor, chi.URLParam(r, "documentId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (h *handler) void(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	// An empty body is a valid void request.
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
	}

	doc, err := h.engine.Void(r.Context(), actor, chi.URLParam(r, "documentId"), req.Reason)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (h *handler) listRevisions(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	doc, err := h.engine.OwnedDocument(r.Context(), actor, chi.URLParam(r, "documentId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	revs, err := h.revisions.List(r.Context(), doc.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

func (h *handler) renderDocument(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())
	doc, err := h.engine.OwnedDocument(r.Context(), actor, chi.URLParam(r, "documentId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	out, err := h.engine.Render(r.Context(), doc)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (h *handler) addComment(w http.ResponseWriter, r *http.Request) {
	actor := model.ActorFrom(r.Context())

	var req struct {
		DocumentID string `json:"document_id"`
		Path       string `json:"path"`
		Text       string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	// Ownership of the revision's document gates the comment.
	doc, err := h.engine.OwnedDocument(r.Context(), actor, req.DocumentID)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	author := actor.Email
	if author == "" {
		author = actor.SubjectID
	}
	comments, err := h.revisions.AddComment(r.Context(), doc.ID, chi.URLParam(r, "revisionId"), req.Path, author, req.Text)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"comments": comments})
}
