package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redlinehq/redline/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
//
// Expected tables: documents (version column for optimistic locking),
// revisions (unique index on document_id+number), access_tokens (primary
// key on the opaque token string), signers. JSON columns hold the data,
// diff, suggestion, and comment maps.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// HealthCheck pings the database. Used by the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateDocument inserts a new document.
func (s *PgStore) CreateDocument(ctx context.Context, doc model.Document) error {
	dataJSON, orderJSON, pendingJSON, err := marshalDocumentJSON(doc)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (
			id, owner_id, title, template_id, data, field_order,
			pending_input_fields, workflow_state, counterpart_email,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		doc.ID, doc.OwnerID, doc.Title, doc.TemplateID, dataJSON, orderJSON,
		pendingJSON, doc.WorkflowState, doc.CounterpartEmail,
		doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewConflictError(fmt.Sprintf("document %q already exists", doc.ID))
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *PgStore) GetDocument(ctx context.Context, id string) (model.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, template_id, data, field_order,
		       pending_input_fields, workflow_state, counterpart_email,
		       version, created_at, updated_at
		FROM documents WHERE id = $1`, id), id)
}

// UpdateDocument persists an updated document with optimistic locking.
func (s *PgStore) UpdateDocument(ctx context.Context, doc model.Document) error {
	tag, err := s.execDocumentUpdate(ctx, s.pool, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf(
			"document %q version conflict (expected %d)", doc.ID, doc.Version,
		))
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PgStore) execDocumentUpdate(ctx context.Context, ex execer, doc model.Document) (pgconn.CommandTag, error) {
	dataJSON, orderJSON, pendingJSON, err := marshalDocumentJSON(doc)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	tag, err := ex.Exec(ctx, `
		UPDATE documents SET
			title = $1, data = $2, field_order = $3,
			pending_input_fields = $4, workflow_state = $5,
			counterpart_email = $6, version = $7, updated_at = $8
		WHERE id = $9 AND version = $10`,
		doc.Title, dataJSON, orderJSON,
		pendingJSON, doc.WorkflowState,
		doc.CounterpartEmail, doc.Version+1, time.Now().UTC(),
		doc.ID, doc.Version,
	)
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("update document: %w", err)
	}
	return tag, nil
}

// SubmitRevision atomically updates the document and appends the revision
// with the next sequential number. The unique index on (document_id, number)
// turns a lost revision-number race into a CONFLICT for the loser.
func (s *PgStore) SubmitRevision(ctx context.Context, doc model.Document, rev model.Revision) (model.Revision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Revision{}, fmt.Errorf("begin submit: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := s.execDocumentUpdate(ctx, tx, doc)
	if err != nil {
		return model.Revision{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Revision{}, model.NewConflictError(fmt.Sprintf(
			"document %q version conflict (expected %d)", doc.ID, doc.Version,
		))
	}

	diffJSON, suggestedJSON, responsesJSON, commentsJSON, err := marshalRevisionJSON(rev)
	if err != nil {
		return model.Revision{}, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO revisions (
			id, document_id, number, actor_role, message,
			diff, suggested_changes, responses, comments, created_at
		)
		SELECT $1, $2, COALESCE(MAX(number), 0) + 1, $3, $4, $5, $6, $7, $8, $9
		FROM revisions WHERE document_id = $2
		RETURNING number`,
		rev.ID, rev.DocumentID, rev.ActorRole, rev.Message,
		diffJSON, suggestedJSON, responsesJSON, commentsJSON, rev.CreatedAt,
	).Scan(&rev.Number)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Revision{}, model.NewConflictError(fmt.Sprintf(
				"document %q received a concurrent submission", doc.ID,
			))
		}
		return model.Revision{}, fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Revision{}, fmt.Errorf("commit submit: %w", err)
	}
	return rev, nil
}

// ApproveDocument atomically updates the document and creates the signature
// round's signers and sign tokens.
func (s *PgStore) ApproveDocument(ctx context.Context, doc model.Document, signers []model.Signer, tokens []model.AccessToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := s.execDocumentUpdate(ctx, tx, doc)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(fmt.Sprintf(
			"document %q version conflict (expected %d)", doc.ID, doc.Version,
		))
	}

	for _, sg := range signers {
		_, err = tx.Exec(ctx, `
			INSERT INTO signers (id, document_id, role, email, name, status, signed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sg.ID, sg.DocumentID, sg.Role, sg.Email, sg.Name, sg.Status, sg.SignedAt,
		)
		if err != nil {
			return fmt.Errorf("insert signer: %w", err)
		}
	}
	for _, tok := range tokens {
		if err := insertToken(ctx, tx, tok); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

// GetRevision retrieves a revision by ID.
func (s *PgStore) GetRevision(ctx context.Context, id string) (model.Revision, error) {
	rev, err := scanRevision(s.pool.QueryRow(ctx, revisionSelect+` WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return model.Revision{}, model.NewNotFoundError(fmt.Sprintf("revision %q not found", id))
	}
	return rev, err
}

// LatestRevision returns the highest-numbered revision, or nil if none.
func (s *PgStore) LatestRevision(ctx context.Context, documentID string) (*model.Revision, error) {
	rev, err := scanRevision(s.pool.QueryRow(ctx,
		revisionSelect+` WHERE document_id = $1 ORDER BY number DESC LIMIT 1`, documentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// ListRevisions returns all revisions for a document ordered by number.
func (s *PgStore) ListRevisions(ctx context.Context, documentID string) ([]model.Revision, error) {
	rows, err := s.pool.Query(ctx,
		revisionSelect+` WHERE document_id = $1 ORDER BY number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	var result []model.Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	return result, rows.Err()
}

// AddComment appends a comment to one field path of one revision. The
// revision row is locked for the read-modify-write of the comments column.
func (s *PgStore) AddComment(ctx context.Context, revisionID, path string, c model.Comment) ([]model.Comment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin comment: %w", err)
	}
	defer tx.Rollback(ctx)

	var commentsJSON []byte
	err = tx.QueryRow(ctx,
		`SELECT comments FROM revisions WHERE id = $1 FOR UPDATE`, revisionID,
	).Scan(&commentsJSON)
	if err == pgx.ErrNoRows {
		return nil, model.NewNotFoundError(fmt.Sprintf("revision %q not found", revisionID))
	}
	if err != nil {
		return nil, fmt.Errorf("lock revision: %w", err)
	}

	comments := make(map[string][]model.Comment)
	if len(commentsJSON) > 0 {
		if err := json.Unmarshal(commentsJSON, &comments); err != nil {
			return nil, fmt.Errorf("unmarshal comments: %w", err)
		}
	}
	comments[path] = append(comments[path], c)

	updated, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("marshal comments: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE revisions SET comments = $1 WHERE id = $2`, updated, revisionID,
	); err != nil {
		return nil, fmt.Errorf("update comments: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit comment: %w", err)
	}
	return comments[path], nil
}

// CreateToken persists a new access token.
func (s *PgStore) CreateToken(ctx context.Context, tok model.AccessToken) error {
	return insertToken(ctx, s.pool, tok)
}

func insertToken(ctx context.Context, ex execer, tok model.AccessToken) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO access_tokens (
			token, document_id, signer_id, scope, actor_role,
			expires_at, consumed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tok.Token, tok.DocumentID, tok.SignerID, tok.Scope, tok.ActorRole,
		tok.ExpiresAt, tok.ConsumedAt, tok.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewConflictError("token already exists")
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken retrieves a token by its opaque string.
func (s *PgStore) GetToken(ctx context.Context, token string) (model.AccessToken, error) {
	var tok model.AccessToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, document_id, signer_id, scope, actor_role,
		       expires_at, consumed_at, created_at
		FROM access_tokens WHERE token = $1`, token,
	).Scan(
		&tok.Token, &tok.DocumentID, &tok.SignerID, &tok.Scope, &tok.ActorRole,
		&tok.ExpiresAt, &tok.ConsumedAt, &tok.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.AccessToken{}, model.NewNotFoundError("token not found")
	}
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("query token: %w", err)
	}
	return tok, nil
}

// ConsumeToken marks a token consumed. The WHERE clause makes the check and
// the write a single atomic statement.
func (s *PgStore) ConsumeToken(ctx context.Context, token string, at time.Time) error {
	return consumeToken(ctx, s.pool, token, at)
}

func consumeToken(ctx context.Context, ex execer, token string, at time.Time) error {
	tag, err := ex.Exec(ctx,
		`UPDATE access_tokens SET consumed_at = $1 WHERE token = $2 AND consumed_at IS NULL`,
		at, token,
	)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish unknown from already-used for logs; both fail closed.
		var exists bool
		if err := ex.(interface {
			QueryRow(context.Context, string, ...any) pgx.Row
		}).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM access_tokens WHERE token = $1)`, token,
		).Scan(&exists); err == nil && !exists {
			return model.NewTokenInvalidError()
		}
		return model.NewTokenConsumedError()
	}
	return nil
}

// RecordSignature consumes the sign token, marks its signer signed, and
// advances the document state, all in one transaction.
func (s *PgStore) RecordSignature(ctx context.Context, token, signerName string, at time.Time) (model.Signer, model.Document, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("begin sign: %w", err)
	}
	defer tx.Rollback(ctx)

	var signerID string
	err = tx.QueryRow(ctx,
		`SELECT signer_id FROM access_tokens WHERE token = $1 FOR UPDATE`, token,
	).Scan(&signerID)
	if err == pgx.ErrNoRows {
		return model.Signer{}, model.Document{}, model.NewTokenInvalidError()
	}
	if err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("lock token: %w", err)
	}

	var signer model.Signer
	err = tx.QueryRow(ctx, `
		SELECT id, document_id, role, email, name, status, signed_at
		FROM signers WHERE id = $1 FOR UPDATE`, signerID,
	).Scan(&signer.ID, &signer.DocumentID, &signer.Role, &signer.Email,
		&signer.Name, &signer.Status, &signer.SignedAt)
	if err == pgx.ErrNoRows {
		return model.Signer{}, model.Document{}, model.NewNotFoundError(fmt.Sprintf("signer %q not found", signerID))
	}
	if err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("lock signer: %w", err)
	}
	if signer.Status == model.SignerSigned {
		return model.Signer{}, model.Document{}, model.NewConflictError(
			fmt.Sprintf("signer %q has already signed", signer.ID),
		)
	}

	if err := consumeToken(ctx, tx, token, at); err != nil {
		return model.Signer{}, model.Document{}, err
	}

	signer.Status = model.SignerSigned
	signer.SignedAt = &at
	if signerName != "" {
		signer.Name = signerName
	}
	if _, err := tx.Exec(ctx,
		`UPDATE signers SET status = $1, name = $2, signed_at = $3 WHERE id = $4`,
		signer.Status, signer.Name, signer.SignedAt, signer.ID,
	); err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("update signer: %w", err)
	}

	var pending int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM signers WHERE document_id = $1 AND status = $2`,
		signer.DocumentID, model.SignerPending,
	).Scan(&pending); err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("count pending signers: %w", err)
	}

	state := model.StateSigningComplete
	if pending > 0 {
		state = model.StateSigningInProgress
	}
	if _, err := tx.Exec(ctx, `
		UPDATE documents SET workflow_state = $1, version = version + 1, updated_at = $2
		WHERE id = $3`,
		state, at, signer.DocumentID,
	); err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("update document state: %w", err)
	}

	doc, err := scanDocument(tx.QueryRow(ctx, `
		SELECT id, owner_id, title, template_id, data, field_order,
		       pending_input_fields, workflow_state, counterpart_email,
		       version, created_at, updated_at
		FROM documents WHERE id = $1`, signer.DocumentID), signer.DocumentID)
	if err != nil {
		return model.Signer{}, model.Document{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Signer{}, model.Document{}, fmt.Errorf("commit sign: %w", err)
	}
	return signer, doc, nil
}

// ListSigners returns the signers for a document.
func (s *PgStore) ListSigners(ctx context.Context, documentID string) ([]model.Signer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, role, email, name, status, signed_at
		FROM signers WHERE document_id = $1 ORDER BY email`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query signers: %w", err)
	}
	defer rows.Close()

	var result []model.Signer
	for rows.Next() {
		var sg model.Signer
		if err := rows.Scan(&sg.ID, &sg.DocumentID, &sg.Role, &sg.Email,
			&sg.Name, &sg.Status, &sg.SignedAt); err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		result = append(result, sg)
	}
	return result, rows.Err()
}

// --- row scanning helpers ---

const revisionSelect = `
	SELECT id, document_id, number, actor_role, message,
	       diff, suggested_changes, responses, comments, created_at
	FROM revisions`

func scanDocument(row pgx.Row, id string) (model.Document, error) {
	var doc model.Document
	var dataJSON, orderJSON, pendingJSON []byte

	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Title, &doc.TemplateID, &dataJSON, &orderJSON,
		&pendingJSON, &doc.WorkflowState, &doc.CounterpartEmail,
		&doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return model.Document{}, model.NewNotFoundError(fmt.Sprintf("document %q not found", id))
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("query document: %w", err)
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &doc.Data); err != nil {
			return model.Document{}, fmt.Errorf("unmarshal document data: %w", err)
		}
	}
	if len(orderJSON) > 0 {
		if err := json.Unmarshal(orderJSON, &doc.FieldOrder); err != nil {
			return model.Document{}, fmt.Errorf("unmarshal field order: %w", err)
		}
	}
	if len(pendingJSON) > 0 {
		if err := json.Unmarshal(pendingJSON, &doc.PendingInputFields); err != nil {
			return model.Document{}, fmt.Errorf("unmarshal pending fields: %w", err)
		}
	}
	return doc, nil
}

func scanRevision(row pgx.Row) (model.Revision, error) {
	var rev model.Revision
	var diffJSON, suggestedJSON, responsesJSON, commentsJSON []byte

	err := row.Scan(
		&rev.ID, &rev.DocumentID, &rev.Number, &rev.ActorRole, &rev.Message,
		&diffJSON, &suggestedJSON, &responsesJSON, &commentsJSON, &rev.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Revision{}, err
		}
		return model.Revision{}, fmt.Errorf("scan revision: %w", err)
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{diffJSON, &rev.Diff},
		{suggestedJSON, &rev.SuggestedChanges},
		{responsesJSON, &rev.Responses},
		{commentsJSON, &rev.Comments},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return model.Revision{}, fmt.Errorf("unmarshal revision field: %w", err)
		}
	}
	return rev, nil
}

func marshalDocumentJSON(doc model.Document) (data, order, pending []byte, err error) {
	if data, err = json.Marshal(doc.Data); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal document data: %w", err)
	}
	if order, err = json.Marshal(doc.FieldOrder); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal field order: %w", err)
	}
	if pending, err = json.Marshal(doc.PendingInputFields); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal pending fields: %w", err)
	}
	return data, order, pending, nil
}

func marshalRevisionJSON(rev model.Revision) (diff, suggested, responses, comments []byte, err error) {
	if diff, err = json.Marshal(rev.Diff); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal diff: %w", err)
	}
	if suggested, err = json.Marshal(rev.SuggestedChanges); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal suggested changes: %w", err)
	}
	if responses, err = json.Marshal(rev.Responses); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal responses: %w", err)
	}
	if comments, err = json.Marshal(rev.Comments); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal comments: %w", err)
	}
	return diff, suggested, responses, comments, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
