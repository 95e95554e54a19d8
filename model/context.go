package model

import (
	"context"
	"errors"
	"fmt"
)

// ActorContext carries the identity and attribution for one request into
// every core call. The core never reads ambient session state; whoever
// authenticated the caller (session middleware or the token gate) builds an
// ActorContext explicitly. It is immutable after construction and safe for
// concurrent reads.
type ActorContext struct {
	SubjectID     string
	Email         string
	Role          string
	CorrelationID string
	TraceID       string
}

// Validate checks that all mandatory fields are present.
func (a *ActorContext) Validate() error {
	var errs []error
	if a.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if a.Role != RolePartyA && a.Role != RolePartyB {
		errs = append(errs, fmt.Errorf("Role must be %s or %s", RolePartyA, RolePartyB))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type actorKey struct{}

// WithActorContext attaches an ActorContext to the given context.
func WithActorContext(ctx context.Context, actor *ActorContext) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the ActorContext from the context, or returns nil if
// not present.
func ActorFrom(ctx context.Context) *ActorContext {
	actor, _ := ctx.Value(actorKey{}).(*ActorContext)
	return actor
}
