// Package store persists documents, revisions, access tokens, and signers.
// Two implementations exist: an in-memory store for tests and single-node
// development, and a PostgreSQL store for production.
package store

import (
	"context"
	"time"

	"github.com/redlinehq/redline/model"
)

// Store is the transactional persistence boundary for the negotiation core.
//
// Document updates use optimistic locking: the Version on the passed
// document must match the stored version or the call returns CONFLICT, and
// the caller must re-fetch before retrying. Revision numbers are assigned by
// the store, serialized per document, contiguous from 1.
//
// SubmitRevision, ApproveDocument, and RecordSignature are composite
// operations because the workflow's consistency rules make their parts one
// transaction boundary: a revision must never be recorded without its
// document update (or vice versa), and a token must never be consumed
// separately from the signature it gates.
type Store interface {
	// CreateDocument persists a new document.
	CreateDocument(ctx context.Context, doc model.Document) error

	// GetDocument retrieves a document by ID. Returns NOT_FOUND if absent.
	GetDocument(ctx context.Context, id string) (model.Document, error)

	// UpdateDocument persists an updated document with optimistic locking
	// and increments its version. Returns CONFLICT on version mismatch.
	UpdateDocument(ctx context.Context, doc model.Document) error

	// SubmitRevision atomically updates the document (optimistic) and
	// appends the revision with the next sequential number for that
	// document. Returns the stored revision with its number assigned.
	SubmitRevision(ctx context.Context, doc model.Document, rev model.Revision) (model.Revision, error)

	// ApproveDocument atomically updates the document (optimistic) and
	// creates the signers and sign tokens for the signature round.
	ApproveDocument(ctx context.Context, doc model.Document, signers []model.Signer, tokens []model.AccessToken) error

	// GetRevision retrieves a revision by ID.
	GetRevision(ctx context.Context, id string) (model.Revision, error)

	// LatestRevision returns the highest-numbered revision for a document,
	// or nil if the document has none.
	LatestRevision(ctx context.Context, documentID string) (*model.Revision, error)

	// ListRevisions returns all revisions for a document ordered by number.
	ListRevisions(ctx context.Context, documentID string) ([]model.Revision, error)

	// AddComment appends a comment to one field path of one revision and
	// returns the updated comment list for that path.
	AddComment(ctx context.Context, revisionID, path string, c model.Comment) ([]model.Comment, error)

	// CreateToken persists a new access token.
	CreateToken(ctx context.Context, tok model.AccessToken) error

	// GetToken retrieves a token by its opaque string. Returns NOT_FOUND
	// if absent.
	GetToken(ctx context.Context, token string) (model.AccessToken, error)

	// ConsumeToken marks a token consumed. The check and the write are one
	// atomic step; a token that is already consumed returns TOKEN_CONSUMED
	// with no side effect.
	ConsumeToken(ctx context.Context, token string, at time.Time) error

	// RecordSignature consumes the sign token, marks its signer signed,
	// and moves the document to SIGNING_IN_PROGRESS or SIGNING_COMPLETE
	// depending on remaining pending signers — all in one transaction.
	// Returns CONFLICT if the signer has already signed and TOKEN_CONSUMED
	// if the token was already used; neither leaves side effects.
	RecordSignature(ctx context.Context, token, signerName string, at time.Time) (model.Signer, model.Document, error)

	// ListSigners returns the signers for a document.
	ListSigners(ctx context.Context, documentID string) ([]model.Signer, error)
}
