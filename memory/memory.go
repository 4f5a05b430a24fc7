package memory

import (
	"context"
	"errors"

	"github.com/hupe1980/reactmesh/core"
)

// ErrNotFound is returned when a memory id does not exist.
var ErrNotFound = errors.New("memory not found")

// Retriever supplies additional context messages for a query. Implementations
// must be safe for concurrent use; the engine treats them as a pure read.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]core.Message, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, limit int) ([]core.Message, error)

// Retrieve implements Retriever.
func (f RetrieverFunc) Retrieve(ctx context.Context, query string, limit int) ([]core.Message, error) {
	return f(ctx, query, limit)
}
