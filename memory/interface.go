// Package memory implements a semantic memory layer for chat sessions.
// Messages are persisted in a document store, embedded into dense vectors,
// and indexed in a vector store for similarity search. The Client type wires
// the three collaborators together; the MessageStore, VectorIndex, and
// Embedder interfaces keep it independent of any specific backend.
package memory

import (
	"context"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a message sent by the human participant.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction or annotation injected by the host application.
	RoleSystem Role = "system"
)

// Valid reports whether r is one of the recognised roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single chat turn persisted in the document store.
// Messages are immutable after insertion.
type Message struct {
	// ID is the document store identifier (hex-encoded ObjectID).
	// Assigned on insert; also the join key to the vector index.
	ID string

	// SessionID groups messages into a conversation.
	SessionID string

	// Role is the author of the message.
	Role Role

	// Content is the raw message text.
	Content string

	// Timestamp is when the message was created. Defaults to the insert
	// time when the caller does not supply one.
	Timestamp time.Time
}

// Hit is a single vector search result: a message identifier with the
// similarity score the index assigned to it.
type Hit struct {
	// MessageID is the identifier of the matched message.
	MessageID string

	// Score is the similarity score reported by the index. Higher is more
	// similar under cosine distance.
	Score float32
}

// MessageStore persists chat messages and supports lookup by identifier.
// Implementations must be safe for concurrent use.
type MessageStore interface {
	// Insert persists a new message and returns its assigned identifier.
	Insert(ctx context.Context, msg Message) (string, error)

	// FindByIDs fetches the messages for the given identifiers, returned in
	// the same order as ids. Identifiers with no matching document are
	// silently dropped from the result.
	FindByIDs(ctx context.Context, ids []string) ([]Message, error)

	// SetEmbedding writes the computed embedding back onto the message
	// document identified by id.
	SetEmbedding(ctx context.Context, id string, vector []float32) error

	// EnsureIndexes creates the secondary indexes. Idempotent.
	EnsureIndexes(ctx context.Context) error

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// VectorIndex stores embeddings keyed by message identifier and performs
// session-scoped similarity search. Implementations must be safe for
// concurrent use.
type VectorIndex interface {
	// Upsert stores or replaces the vector for the given message.
	Upsert(ctx context.Context, messageID, sessionID string, vector []float32) error

	// Search returns up to k hits for the query vector, restricted to
	// vectors whose session matches sessionID, ordered most-similar first.
	Search(ctx context.Context, queryVector []float32, sessionID string, k int) ([]Hit, error)

	// EnsureCollection creates the backing collection if missing. Idempotent.
	EnsureCollection(ctx context.Context) error

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
