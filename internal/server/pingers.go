package server

import (
	"context"
	"fmt"

	"github.com/sapien-ai/sapien-go/memory"
)

// StorePinger probes the document store through the memory.MessageStore
// interface. It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the message store to probe.
	store memory.MessageStore
}

// NewStorePinger constructs a StorePinger for the given message store.
func NewStorePinger(store memory.MessageStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "mongodb" }

// Ping checks document store reachability.
// Returns nil if the store is reachable, or a descriptive error otherwise.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// IndexPinger probes the vector index through the memory.VectorIndex
// interface. It satisfies the Pinger interface and is used by GET /api/ready.
type IndexPinger struct {
	// index is the vector index to probe.
	index memory.VectorIndex
}

// NewIndexPinger constructs an IndexPinger for the given vector index.
func NewIndexPinger(index memory.VectorIndex) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "qdrant" }

// Ping checks vector index reachability.
// Returns nil if the index is reachable, or a descriptive error otherwise.
func (p *IndexPinger) Ping(ctx context.Context) error {
	if err := p.index.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
