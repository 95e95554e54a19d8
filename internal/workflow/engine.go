// Package workflow implements the negotiation state machine. Every
// operation follows the same shape: authorize the actor, check the source
// state, delegate field logic to the negotiation packages, persist through
// the store with optimistic locking, then fire side effects that never roll
// the transition back.
package workflow

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redlinehq/redline/internal/config"
	"github.com/redlinehq/redline/internal/diff"
	"github.com/redlinehq/redline/internal/fieldstate"
	"github.com/redlinehq/redline/internal/negotiation"
	"github.com/redlinehq/redline/internal/notify"
	"github.com/redlinehq/redline/internal/observability"
	"github.com/redlinehq/redline/internal/render"
	"github.com/redlinehq/redline/internal/revision"
	"github.com/redlinehq/redline/internal/store"
	"github.com/redlinehq/redline/internal/token"
	"github.com/redlinehq/redline/model"
)

// Engine drives documents through the negotiation lifecycle.
type Engine struct {
	store     store.Store
	gate      *token.Gate
	revisions *revision.Service
	renderer  render.Renderer
	notifier  notify.Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	tokens    config.TokensConfig
	baseURL   string
}

// NewEngine creates a workflow engine.
func NewEngine(
	st store.Store,
	gate *token.Gate,
	revisions *revision.Service,
	renderer render.Renderer,
	notifier notify.Notifier,
	logger *zap.Logger,
	metrics *observability.Metrics,
	tokens config.TokensConfig,
	publicBaseURL string,
) *Engine {
	return &Engine{
		store:     st,
		gate:      gate,
		revisions: revisions,
		renderer:  renderer,
		notifier:  notifier,
		logger:    logger,
		metrics:   metrics,
		tokens:    tokens,
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
	}
}

// CreateDraftRequest carries the inputs for a new draft.
type CreateDraftRequest struct {
	Title      string         `json:"title"`
	TemplateID string         `json:"template_id,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// ShareRequest carries the inputs for sharing a document with the
// counterpart.
type ShareRequest struct {
	Email              string   `json:"email"`
	Scope              string   `json:"scope,omitempty"`
	PendingInputFields []string `json:"pending_input_fields,omitempty"`
	Message            string   `json:"message,omitempty"`
}

// ShareResult is the outcome of a share: the minted token, the link the
// counterpart opens, and whether the invite was delivered.
type ShareResult struct {
	Token    model.AccessToken `json:"token"`
	Link     string            `json:"link"`
	Delivery string            `json:"delivery"` // sent | failed
}

// DocumentView is what one viewer sees: the document plus per-field states,
// the suggestions awaiting their response, and the latest change list.
type DocumentView struct {
	Document      model.Document              `json:"document"`
	FieldStates   map[string]string           `json:"field_states"`
	Incoming      map[string]model.Suggestion `json:"incoming_suggestions,omitempty"`
	LatestChanges []diff.Change               `json:"latest_changes,omitempty"`
	Signers       []model.Signer              `json:"signers,omitempty"`
}

// CreateDraft creates a new document in DRAFT owned by the acting party.
func (e *Engine) CreateDraft(ctx context.Context, actor *model.ActorContext, req CreateDraftRequest) (model.Document, error) {
	if actor.Role != model.RolePartyA {
		return model.Document{}, model.NewForbiddenError("only the disclosing party creates drafts")
	}
	if strings.TrimSpace(req.Title) == "" {
		return model.Document{}, model.NewValidationError([]model.FieldError{{
			Field: "title", Code: "required", Message: "a title is required",
		}})
	}

	if err := negotiation.CheckFieldValues(req.Fields); err != nil {
		return model.Document{}, err
	}

	now := time.Now().UTC()
	doc := model.Document{
		ID:            uuid.NewString(),
		OwnerID:       actor.SubjectID,
		Title:         strings.TrimSpace(req.Title),
		TemplateID:    req.TemplateID,
		WorkflowState: model.StateDraft,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, field := range sortedKeys(req.Fields) {
		doc.SetField(field, req.Fields[field])
	}

	if err := e.store.CreateDocument(ctx, doc); err != nil {
		return model.Document{}, err
	}
	e.metrics.RecordTransition("", model.StateDraft)
	observability.RequestLogger(ctx, e.logger).Info("draft created",
		zap.String("document_id", doc.ID),
		zap.String("title", doc.Title),
	)
	return doc, nil
}

// EditDraft updates draft fields before the document has been shared.
func (e *Engine) EditDraft(ctx context.Context, actor *model.ActorContext, documentID string, fields map[string]any, expectedVersion int) (model.Document, error) {
	doc, err := e.ownedDocument(ctx, actor, documentID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.WorkflowState != model.StateDraft {
		return model.Document{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"document is %s; drafts can only be edited in %s", doc.WorkflowState, model.StateDraft,
		))
	}
	if expectedVersion > 0 && expectedVersion != doc.Version {
		return model.Document{}, model.NewConflictError("the document changed; reload and retry")
	}
	if err := negotiation.CheckFieldValues(fields); err != nil {
		return model.Document{}, err
	}

	for _, field := range sortedKeys(fields) {
		doc.SetField(field, fields[field])
	}
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return model.Document{}, err
	}
	return e.store.GetDocument(ctx, documentID)
}

// Share moves the document to AWAITING_INPUT, mints a counterpart token, and
// sends the invite. Sharing again re-invites with a fresh token.
func (e *Engine) Share(ctx context.Context, actor *model.ActorContext, documentID string, req ShareRequest) (ShareResult, error) {
	doc, err := e.ownedDocument(ctx, actor, documentID)
	if err != nil {
		return ShareResult{}, err
	}
	switch doc.WorkflowState {
	case model.StateDraft, model.StateAwaitingInput, model.StateReviewingChanges:
	default:
		return ShareResult{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"document is %s and can no longer be shared", doc.WorkflowState,
		))
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return ShareResult{}, model.NewValidationError([]model.FieldError{{
			Field: "email", Code: "invalid", Message: "a valid counterpart email is required",
		}})
	}
	scope := req.Scope
	if scope == "" {
		scope = model.ScopeReview
	}
	if scope == model.ScopeSign {
		return ShareResult{}, model.NewBadRequestError("sign tokens are minted at approval, not by sharing")
	}

	from := doc.WorkflowState
	doc.CounterpartEmail = addr.Address
	if len(req.PendingInputFields) > 0 {
		doc.PendingInputFields = req.PendingInputFields
	}
	doc.WorkflowState = model.StateAwaitingInput
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return ShareResult{}, err
	}

	tok, err := e.gate.Issue(ctx, doc.ID, scope, model.RolePartyB, "", e.tokens.TTLForScope(scope))
	if err != nil {
		return ShareResult{}, err
	}
	e.metrics.RecordTokenIssued(scope)
	e.metrics.RecordTransition(from, model.StateAwaitingInput)

	result := ShareResult{
		Token:    tok,
		Link:     fmt.Sprintf("%s/api/shared/%s", e.baseURL, tok.Token),
		Delivery: "sent",
	}
	if !e.deliver(ctx, notify.Message{
		Recipient:  addr.Address,
		Event:      notify.EventInviteSent,
		DocumentID: doc.ID,
		Payload:    map[string]any{"link": result.Link, "message": req.Message, "title": doc.Title},
	}) {
		result.Delivery = "failed"
	}
	observability.RequestLogger(ctx, e.logger).Info("document shared",
		zap.String("document_id", doc.ID),
		zap.String("scope", scope),
		zap.String("delivery", result.Delivery),
	)
	return result, nil
}

// ViewFor assembles the document view for one viewer role. It never mutates.
func (e *Engine) ViewFor(ctx context.Context, doc model.Document, viewerRole string) (DocumentView, error) {
	latest, err := e.store.LatestRevision(ctx, doc.ID)
	if err != nil {
		return DocumentView{}, err
	}

	incoming := fieldstate.Incoming(latest, viewerRole)
	var pending []string
	if viewerRole == model.RolePartyB {
		pending = doc.PendingInputFields
	}

	view := DocumentView{
		Document:    doc,
		FieldStates: fieldstate.Resolve(doc.Data, pending, incoming),
		Incoming:    incoming,
	}
	if latest != nil {
		view.LatestChanges = revision.Changes(*latest, doc.FieldOrder)
	}
	if doc.WorkflowState == model.StateReadyToSign ||
		doc.WorkflowState == model.StateSigningInProgress ||
		doc.WorkflowState == model.StateSigningComplete {
		view.Signers, err = e.store.ListSigners(ctx, doc.ID)
		if err != nil {
			return DocumentView{}, err
		}
	}
	return view, nil
}

// Submit records one party's negotiation turn as a single revision and hands
// the turn to the counterpart.
func (e *Engine) Submit(ctx context.Context, actor *model.ActorContext, documentID string, sub *negotiation.Submission, expectedVersion int) (model.Revision, model.Document, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return model.Revision{}, model.Document{}, err
	}
	if err := e.checkTurn(doc, actor.Role); err != nil {
		return model.Revision{}, model.Document{}, err
	}
	if expectedVersion > 0 && expectedVersion != doc.Version {
		return model.Revision{}, model.Document{}, model.NewConflictError("the document changed; reload and retry")
	}

	latest, err := e.store.LatestRevision(ctx, doc.ID)
	if err != nil {
		return model.Revision{}, model.Document{}, err
	}
	incoming := fieldstate.Incoming(latest, actor.Role)

	if err := negotiation.Validate(&doc, incoming, sub); err != nil {
		e.metrics.RecordValidationFailure("submit")
		return model.Revision{}, model.Document{}, err
	}
	delta, suggested, applied := negotiation.Fold(&doc, incoming, sub)

	for _, field := range sortedKeys(applied) {
		doc.SetField(field, applied[field])
	}
	doc.PendingInputFields = remainingPending(doc)

	from := doc.WorkflowState
	if actor.Role == model.RolePartyB {
		doc.WorkflowState = model.StateReviewingChanges
	} else {
		doc.WorkflowState = model.StateAwaitingInput
	}

	rev := e.revisions.Build(doc.ID, actor.Role, sub.Message, delta, suggested, sub.Responses)
	rev, err = e.store.SubmitRevision(ctx, doc, rev)
	if err != nil {
		return model.Revision{}, model.Document{}, err
	}
	updated, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return model.Revision{}, model.Document{}, err
	}

	e.metrics.RecordTransition(from, updated.WorkflowState)
	e.metrics.RecordRevisionAppended(actor.Role)
	observability.RequestLogger(ctx, e.logger).Info("revision submitted",
		zap.String("document_id", doc.ID),
		zap.Int("revision", rev.Number),
		zap.Int("changes", len(rev.Diff)),
	)

	e.deliver(ctx, notify.Message{
		Recipient:  e.counterpartAddress(ctx, updated, actor.Role),
		Event:      notify.EventChangesSubmitted,
		DocumentID: doc.ID,
		Payload:    map[string]any{"revision": rev.Number, "message": rev.Message},
	})
	return rev, updated, nil
}

// RequestChanges hands the turn back to the counterpart without recording a
// revision: the owner asks for more input instead of responding field by
// field.
func (e *Engine) RequestChanges(ctx context.Context, actor *model.ActorContext, documentID, message string, fields []string) (model.Document, error) {
	doc, err := e.ownedDocument(ctx, actor, documentID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.WorkflowState != model.StateReviewingChanges {
		return model.Document{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"changes can only be requested from %s, document is %s",
			model.StateReviewingChanges, doc.WorkflowState,
		))
	}

	if len(fields) > 0 {
		doc.PendingInputFields = fields
	}
	doc.WorkflowState = model.StateAwaitingInput
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return model.Document{}, err
	}
	e.metrics.RecordTransition(model.StateReviewingChanges, model.StateAwaitingInput)

	e.deliver(ctx, notify.Message{
		Recipient:  doc.CounterpartEmail,
		Event:      notify.EventChangesRequested,
		DocumentID: doc.ID,
		Payload:    map[string]any{"message": message, "fields": fields},
	})
	return e.store.GetDocument(ctx, documentID)
}

// Approve accepts the latest round of suggestions, freezes the document, and
// opens the signature round: a signer and a single-use SIGN token per party.
func (e *Engine) Approve(ctx context.Context, actor *model.ActorContext, documentID string) (model.Document, error) {
	doc, err := e.ownedDocument(ctx, actor, documentID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.WorkflowState != model.StateReviewingChanges {
		return model.Document{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"approval requires %s, document is %s", model.StateReviewingChanges, doc.WorkflowState,
		))
	}

	latest, err := e.store.LatestRevision(ctx, doc.ID)
	if err != nil {
		return model.Document{}, err
	}
	// Approval accepts the counterpart's still-open suggestions from the
	// latest revision only; older unanswered rounds stay historical.
	if latest != nil && latest.ActorRole != actor.Role {
		for _, field := range sortedKeys(latest.SuggestedChanges) {
			doc.SetField(field, latest.SuggestedChanges[field])
		}
	}

	if missing := remainingPending(doc); len(missing) > 0 {
		details := make([]model.FieldError, 0, len(missing))
		for _, f := range missing {
			details = append(details, model.FieldError{
				Field: f, Code: "required", Message: "this field must be filled before approval",
			})
		}
		e.metrics.RecordValidationFailure("approve")
		return model.Document{}, model.NewValidationError(details)
	}
	doc.PendingInputFields = nil
	doc.WorkflowState = model.StateReadyToSign

	now := time.Now().UTC()
	signers := []model.Signer{
		{ID: uuid.NewString(), DocumentID: doc.ID, Role: model.RolePartyA, Email: actor.Email, Status: model.SignerPending},
		{ID: uuid.NewString(), DocumentID: doc.ID, Role: model.RolePartyB, Email: doc.CounterpartEmail, Status: model.SignerPending},
	}
	tokens := make([]model.AccessToken, 0, len(signers))
	for _, sg := range signers {
		tokens = append(tokens, token.Mint(doc.ID, model.ScopeSign, sg.Role, sg.ID, e.tokens.SignTTL, now))
	}

	if err := e.store.ApproveDocument(ctx, doc, signers, tokens); err != nil {
		return model.Document{}, err
	}
	e.metrics.RecordTransition(model.StateReviewingChanges, model.StateReadyToSign)
	for range tokens {
		e.metrics.RecordTokenIssued(model.ScopeSign)
	}
	observability.RequestLogger(ctx, e.logger).Info("document approved",
		zap.String("document_id", doc.ID),
	)

	for i, sg := range signers {
		e.deliver(ctx, notify.Message{
			Recipient:  sg.Email,
			Event:      notify.EventReadyToSign,
			DocumentID: doc.ID,
			Payload: map[string]any{
				"link":  fmt.Sprintf("%s/api/shared/%s", e.baseURL, tokens[i].Token),
				"title": doc.Title,
			},
		})
	}
	return e.store.GetDocument(ctx, documentID)
}

// Sign records one party's signature through their single-use SIGN token.
func (e *Engine) Sign(ctx context.Context, tokenString, signerName string) (model.Signer, model.Document, error) {
	grant, err := e.gate.Resolve(ctx, tokenString)
	if err != nil {
		if ee, ok := err.(*model.ErrorEnvelope); ok {
			e.metrics.RecordTokenDenial(ee.Code)
		}
		return model.Signer{}, model.Document{}, err
	}
	if !grant.Capabilities.Has(model.CapSign) {
		return model.Signer{}, model.Document{}, model.NewForbiddenError("this link does not permit signing")
	}
	doc := grant.Document
	if doc.WorkflowState != model.StateReadyToSign && doc.WorkflowState != model.StateSigningInProgress {
		return model.Signer{}, model.Document{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"signing requires %s or %s, document is %s",
			model.StateReadyToSign, model.StateSigningInProgress, doc.WorkflowState,
		))
	}
	if strings.TrimSpace(signerName) == "" {
		return model.Signer{}, model.Document{}, model.NewValidationError([]model.FieldError{{
			Field: "name", Code: "required", Message: "a signer name is required",
		}})
	}

	from := doc.WorkflowState
	signer, updated, err := e.store.RecordSignature(ctx, tokenString, strings.TrimSpace(signerName), time.Now().UTC())
	if err != nil {
		return model.Signer{}, model.Document{}, err
	}

	complete := updated.WorkflowState == model.StateSigningComplete
	e.metrics.RecordTokenConsumed(model.ScopeSign)
	e.metrics.RecordSignature(complete)
	e.metrics.RecordTransition(from, updated.WorkflowState)
	observability.RequestLogger(ctx, e.logger).Info("signature recorded",
		zap.String("document_id", updated.ID),
		zap.String("signer_role", signer.Role),
		zap.Bool("complete", complete),
	)

	event := notify.EventSigned
	if complete {
		event = notify.EventCompleted
	}
	e.deliver(ctx, notify.Message{
		Recipient:  e.counterpartAddress(ctx, updated, signer.Role),
		Event:      event,
		DocumentID: updated.ID,
		Payload:    map[string]any{"signer": signer.Email, "role": signer.Role},
	})
	return signer, updated, nil
}

// Void terminates the negotiation. Completed documents cannot be voided.
func (e *Engine) Void(ctx context.Context, actor *model.ActorContext, documentID, reason string) (model.Document, error) {
	doc, err := e.ownedDocument(ctx, actor, documentID)
	if err != nil {
		return model.Document{}, err
	}
	if doc.Terminal() {
		return model.Document{}, model.NewInvalidTransitionError(fmt.Sprintf(
			"document is already %s", doc.WorkflowState,
		))
	}

	from := doc.WorkflowState
	doc.WorkflowState = model.StateVoided
	if err := e.store.UpdateDocument(ctx, doc); err != nil {
		return model.Document{}, err
	}
	e.metrics.RecordTransition(from, model.StateVoided)
	observability.RequestLogger(ctx, e.logger).Info("document voided",
		zap.String("document_id", doc.ID),
		zap.String("reason", reason),
	)

	if doc.CounterpartEmail != "" {
		e.deliver(ctx, notify.Message{
			Recipient:  doc.CounterpartEmail,
			Event:      notify.EventVoided,
			DocumentID: doc.ID,
			Payload:    map[string]any{"reason": reason},
		})
	}
	return e.store.GetDocument(ctx, documentID)
}

// Render produces the current document artifact.
func (e *Engine) Render(ctx context.Context, doc model.Document) ([]byte, error) {
	signers, err := e.store.ListSigners(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := e.renderer.Render(ctx, doc, signers)
	if err != nil {
		return nil, fmt.Errorf("render document %s: %w", doc.ID, err)
	}
	e.metrics.RecordRenderDuration(time.Since(start))
	return out, nil
}

// OwnedDocument fetches a document, enforcing that the actor owns it.
func (e *Engine) OwnedDocument(ctx context.Context, actor *model.ActorContext, documentID string) (model.Document, error) {
	return e.ownedDocument(ctx, actor, documentID)
}

func (e *Engine) ownedDocument(ctx context.Context, actor *model.ActorContext, documentID string) (model.Document, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return model.Document{}, err
	}
	if actor.Role != model.RolePartyA || doc.OwnerID != actor.SubjectID {
		// NOT_FOUND, not FORBIDDEN: existence is not disclosed to
		// non-owners.
		return model.Document{}, model.NewNotFoundError(fmt.Sprintf("document %q not found", documentID))
	}
	return doc, nil
}

// checkTurn enforces the turn-based protocol for submissions.
func (e *Engine) checkTurn(doc model.Document, role string) error {
	if doc.Terminal() {
		return model.NewInvalidTransitionError(fmt.Sprintf("document is %s", doc.WorkflowState))
	}
	switch doc.WorkflowState {
	case model.StateAwaitingInput:
		if role != model.RolePartyB {
			return model.NewInvalidTransitionError("it is the receiving party's turn")
		}
	case model.StateReviewingChanges:
		if role != model.RolePartyA {
			return model.NewInvalidTransitionError("it is the disclosing party's turn")
		}
	default:
		return model.NewInvalidTransitionError(fmt.Sprintf(
			"submissions are not accepted while the document is %s", doc.WorkflowState,
		))
	}
	return nil
}

// deliver sends a notification and reports success. Failures are logged and
// counted; the transition that triggered them is already committed.
func (e *Engine) deliver(ctx context.Context, msg notify.Message) bool {
	if msg.Recipient == "" {
		return true
	}
	if err := e.notifier.Notify(ctx, msg); err != nil {
		e.metrics.RecordNotifyFailure(msg.Event)
		observability.RequestLogger(ctx, e.logger).Warn("notification delivery failed",
			zap.String("event", msg.Event),
			zap.String("document_id", msg.DocumentID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// counterpartAddress returns the notification address of the party opposite
// the given role. The owner's address comes from the Party A signer when one
// exists; before approval the owner is reachable in-app only.
func (e *Engine) counterpartAddress(ctx context.Context, doc model.Document, role string) string {
	if role == model.RolePartyA {
		return doc.CounterpartEmail
	}
	signers, err := e.store.ListSigners(ctx, doc.ID)
	if err == nil {
		for _, sg := range signers {
			if sg.Role == model.RolePartyA {
				return sg.Email
			}
		}
	}
	return ""
}

func remainingPending(doc model.Document) []string {
	var pending []string
	for _, f := range doc.PendingInputFields {
		v := doc.Data[f]
		s, isStr := v.(string)
		if v == nil || (isStr && strings.TrimSpace(s) == "") {
			pending = append(pending, f)
		}
	}
	return pending
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
