package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redlinehq/redline/model"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// One mutex serializes all writes, which also serializes revision-number
// assignment per document.
type MemoryStore struct {
	mu        sync.RWMutex
	documents map[string]model.Document
	revisions map[string][]model.Revision // key: document ID, ordered by number
	tokens    map[string]model.AccessToken
	signers   map[string]model.Signer
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]model.Document),
		revisions: make(map[string][]model.Revision),
		tokens:    make(map[string]model.AccessToken),
		signers:   make(map[string]model.Signer),
	}
}

// CreateDocument persists a new document.
func (s *MemoryStore) CreateDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("document %q already exists", doc.ID))
	}
	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

// GetDocument retrieves a document by ID.
func (s *MemoryStore) GetDocument(_ context.Context, id string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.documents[id]
	if !exists {
		return model.Document{}, model.NewNotFoundError(fmt.Sprintf("document %q not found", id))
	}
	return copyDocument(doc), nil
}

// UpdateDocument persists an updated document with optimistic locking.
func (s *MemoryStore) UpdateDocument(_ context.Context, doc model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDocumentLocked(doc)
}

func (s *MemoryStore) updateDocumentLocked(doc model.Document) error {
	existing, exists := s.documents[doc.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("document %q not found", doc.ID))
	}
	if existing.Version != doc.Version {
		return model.NewConflictError(fmt.Sprintf(
			"document %q version conflict (expected %d, got %d)", doc.ID, doc.Version, existing.Version,
		))
	}
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

// SubmitRevision atomically updates the document and appends the revision
// with the next sequential number.
func (s *MemoryStore) SubmitRevision(_ context.Context, doc model.Document, rev model.Revision) (model.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateDocumentLocked(doc); err != nil {
		return model.Revision{}, err
	}
	rev.Number = len(s.revisions[doc.ID]) + 1
	s.revisions[doc.ID] = append(s.revisions[doc.ID], copyRevision(rev))
	return rev, nil
}

// ApproveDocument atomically updates the document and creates the signature
// round's signers and tokens.
func (s *MemoryStore) ApproveDocument(_ context.Context, doc model.Document, signers []model.Signer, tokens []model.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateDocumentLocked(doc); err != nil {
		return err
	}
	for _, sg := range signers {
		s.signers[sg.ID] = sg
	}
	for _, tok := range tokens {
		s.tokens[tok.Token] = tok
	}
	return nil
}

// GetRevision retrieves a revision by ID.
func (s *MemoryStore) GetRevision(_ context.Context, id string) (model.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, revs := range s.revisions {
		for _, rev := range revs {
			if rev.ID == id {
				return copyRevision(rev), nil
			}
		}
	}
	return model.Revision{}, model.NewNotFoundError(fmt.Sprintf("revision %q not found", id))
}

// LatestRevision returns the highest-numbered revision, or nil if none.
func (s *MemoryStore) LatestRevision(_ context.Context, documentID string) (*model.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.revisions[documentID]
	if len(revs) == 0 {
		return nil, nil
	}
	latest := copyRevision(revs[len(revs)-1])
	return &latest, nil
}

// ListRevisions returns all revisions for a document ordered by number.
func (s *MemoryStore) ListRevisions(_ context.Context, documentID string) ([]model.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.revisions[documentID]
	result := make([]model.Revision, len(revs))
	for i, rev := range revs {
		result[i] = copyRevision(rev)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

// AddComment appends a comment to one field path of one revision.
func (s *MemoryStore) AddComment(_ context.Context, revisionID, path string, c model.Comment) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for docID, revs := range s.revisions {
		for i, rev := range revs {
			if rev.ID != revisionID {
				continue
			}
			if rev.Comments == nil {
				rev.Comments = make(map[string][]model.Comment)
			}
			rev.Comments[path] = append(rev.Comments[path], c)
			s.revisions[docID][i] = rev
			comments := make([]model.Comment, len(rev.Comments[path]))
			copy(comments, rev.Comments[path])
			return comments, nil
		}
	}
	return nil, model.NewNotFoundError(fmt.Sprintf("revision %q not found", revisionID))
}

// CreateToken persists a new access token.
func (s *MemoryStore) CreateToken(_ context.Context, tok model.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[tok.Token]; exists {
		return model.NewConflictError("token already exists")
	}
	s.tokens[tok.Token] = tok
	return nil
}

// GetToken retrieves a token by its opaque string.
func (s *MemoryStore) GetToken(_ context.Context, token string) (model.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, exists := s.tokens[token]
	if !exists {
		return model.AccessToken{}, model.NewNotFoundError("token not found")
	}
	return tok, nil
}

// ConsumeToken marks a token consumed, atomically with the check.
func (s *MemoryStore) ConsumeToken(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeTokenLocked(token, at)
}

func (s *MemoryStore) consumeTokenLocked(token string, at time.Time) error {
	tok, exists := s.tokens[token]
	if !exists {
		return model.NewTokenInvalidError()
	}
	if tok.ConsumedAt != nil {
		return model.NewTokenConsumedError()
	}
	tok.ConsumedAt = &at
	s.tokens[token] = tok
	return nil
}

// RecordSignature consumes the token, marks the signer signed, and advances
// the document, all under one lock hold.
func (s *MemoryStore) RecordSignature(_ context.Context, token, signerName string, at time.Time) (model.Signer, model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, exists := s.tokens[token]
	if !exists {
		return model.Signer{}, model.Document{}, model.NewTokenInvalidError()
	}
	signer, exists := s.signers[tok.SignerID]
	if !exists {
		return model.Signer{}, model.Document{}, model.NewNotFoundError(fmt.Sprintf("signer %q not found", tok.SignerID))
	}
	if signer.Status == model.SignerSigned {
		return model.Signer{}, model.Document{}, model.NewConflictError(
			fmt.Sprintf("signer %q has already signed", signer.ID),
		)
	}
	if err := s.consumeTokenLocked(token, at); err != nil {
		return model.Signer{}, model.Document{}, err
	}

	signer.Status = model.SignerSigned
	signer.SignedAt = &at
	if signerName != "" {
		signer.Name = signerName
	}
	s.signers[signer.ID] = signer

	doc := s.documents[signer.DocumentID]
	doc.WorkflowState = model.StateSigningComplete
	for _, sg := range s.signers {
		if sg.DocumentID == signer.DocumentID && sg.Status == model.SignerPending {
			doc.WorkflowState = model.StateSigningInProgress
			break
		}
	}
	doc.Version++
	doc.UpdatedAt = at
	s.documents[doc.ID] = doc

	return signer, copyDocument(doc), nil
}

// ListSigners returns the signers for a document, stable by email.
func (s *MemoryStore) ListSigners(_ context.Context, documentID string) ([]model.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Signer
	for _, sg := range s.signers {
		if sg.DocumentID == documentID {
			result = append(result, sg)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

// copyDocument clones a document so callers never share live map state with
// the store; without this a caller mutating Data before Update would bypass
// the version check.
func copyDocument(doc model.Document) model.Document {
	if doc.Data != nil {
		data := make(map[string]any, len(doc.Data))
		for k, v := range doc.Data {
			data[k] = v
		}
		doc.Data = data
	}
	doc.FieldOrder = append([]string(nil), doc.FieldOrder...)
	doc.PendingInputFields = append([]string(nil), doc.PendingInputFields...)
	return doc
}

func copyRevision(rev model.Revision) model.Revision {
	if rev.Diff != nil {
		d := make(map[string]model.FieldDelta, len(rev.Diff))
		for k, v := range rev.Diff {
			d[k] = v
		}
		rev.Diff = d
	}
	if rev.SuggestedChanges != nil {
		sc := make(map[string]any, len(rev.SuggestedChanges))
		for k, v := range rev.SuggestedChanges {
			sc[k] = v
		}
		rev.SuggestedChanges = sc
	}
	if rev.Responses != nil {
		r := make(map[string]model.SuggestionResponse, len(rev.Responses))
		for k, v := range rev.Responses {
			r[k] = v
		}
		rev.Responses = r
	}
	if rev.Comments != nil {
		c := make(map[string][]model.Comment, len(rev.Comments))
		for k, v := range rev.Comments {
			c[k] = append([]model.Comment(nil), v...)
		}
		rev.Comments = c
	}
	return rev
}
