// Package revision maintains the append-only negotiation history of a
// document: numbered revisions, their rendered change lists, and the
// per-field comment threads attached to them.
package revision

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redlinehq/redline/internal/diff"
	"github.com/redlinehq/redline/internal/store"
	"github.com/redlinehq/redline/model"
)

const maxCommentLength = 2000

// Service reads and annotates the revision history. Appending happens
// through the store's SubmitRevision so the document update and the history
// entry share one transaction; Build prepares the record for it.
type Service struct {
	store store.Store
}

// NewService creates a revision service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Build assembles an unsaved revision record for one submission. The store
// assigns the number when the revision is committed.
func (s *Service) Build(
	documentID, actorRole, message string,
	delta map[string]model.FieldDelta,
	suggested map[string]any,
	responses map[string]model.SuggestionResponse,
) model.Revision {
	return model.Revision{
		ID:               uuid.NewString(),
		DocumentID:       documentID,
		ActorRole:        actorRole,
		Message:          strings.TrimSpace(message),
		Diff:             delta,
		SuggestedChanges: suggested,
		Responses:        responses,
		CreatedAt:        time.Now().UTC(),
	}
}

// List returns the document's full history ordered by revision number.
func (s *Service) List(ctx context.Context, documentID string) ([]model.Revision, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, documentID)
}

// Get returns one revision, checked against the document it must belong to.
func (s *Service) Get(ctx context.Context, documentID, revisionID string) (model.Revision, error) {
	rev, err := s.store.GetRevision(ctx, revisionID)
	if err != nil {
		return model.Revision{}, err
	}
	if rev.DocumentID != documentID {
		return model.Revision{}, model.NewNotFoundError("revision not found for this document")
	}
	return rev, nil
}

// Changes renders a revision's diff as a displayable change list, ordered by
// the given field order with leftovers sorted by name. Deltas whose before
// and after are equal are omitted.
func Changes(rev model.Revision, fieldOrder []string) []diff.Change {
	before := make(map[string]any, len(rev.Diff))
	after := make(map[string]any, len(rev.Diff))
	for f, d := range rev.Diff {
		before[f] = d.Before
		after[f] = d.After
	}
	return diff.Compute(before, after, fieldOrder)
}

// AddComment attaches a comment to one field path of one revision. Comments
// never alter the revision's diff or the document; they are annotation only.
func (s *Service) AddComment(ctx context.Context, documentID, revisionID, path, author, text string) ([]model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, model.NewValidationError([]model.FieldError{{
			Field: "text", Code: "required", Message: "a comment needs text",
		}})
	}
	if len(text) > maxCommentLength {
		return nil, model.NewValidationError([]model.FieldError{{
			Field: "text", Code: "too_long", Message: "comment exceeds the maximum length",
		}})
	}
	if path == "" {
		return nil, model.NewValidationError([]model.FieldError{{
			Field: "path", Code: "required", Message: "a comment needs a field path",
		}})
	}

	if _, err := s.Get(ctx, documentID, revisionID); err != nil {
		return nil, err
	}
	return s.store.AddComment(ctx, revisionID, path, model.Comment{
		Author:    author,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})
}
