// Package render produces presentation artifacts of an agreement document.
// Rendering is pure with respect to its inputs and never touches the store.
package render

import (
	"context"

	"github.com/redlinehq/redline/model"
)

// Renderer turns a document and its signers into a downloadable artifact.
type Renderer interface {
	Render(ctx context.Context, doc model.Document, signers []model.Signer) ([]byte, error)
}
