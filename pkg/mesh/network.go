package mesh

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mash-protocol/meshmodel/pkg/model"
)

// Network errors.
var (
	ErrUnknownToken  = errors.New("unknown node token")
	ErrAlreadyJoined = errors.New("device already joined")
	ErrNetworkClosed = errors.New("network closed")
)

// JoinHandler receives the asynchronous outcome of a join.
type JoinHandler interface {
	JoinComplete(token uint64)
	JoinFailed(reason string)
}

// Network is the mesh daemon side of a node.
type Network interface {
	// Join requests provisioning of app under the device UUID. The outcome
	// is reported to h.
	Join(ctx context.Context, app *model.Application, id uuid.UUID, h JoinHandler) error

	// Attach binds app to the node identified by token. It returns the
	// transport to send through and the current model configuration.
	Attach(ctx context.Context, app *model.Application, token uint64) (model.Transport, []model.ElementConfig, error)

	// Leave removes the node from the network.
	Leave(ctx context.Context, token uint64) error
}
