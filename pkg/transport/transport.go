package transport

import (
	"context"

	"github.com/rhuss/relais/pkg/api"
)

// Engine is the contract between the HTTP handler and the upstream
// bridging logic. Stream delivers messages in arrival order on the
// returned channel; the channel is closed after the terminal message.
// Errors that occur before the stream opens are returned directly;
// errors after that ride the message Err field.
type Engine interface {
	Stream(ctx context.Context, req *api.ChatRequest) (<-chan api.Message, error)
	ListModels(ctx context.Context) ([]api.ModelInfo, error)
}
