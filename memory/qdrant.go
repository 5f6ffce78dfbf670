package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: sapien_memory).
	Collection string

	// VectorSize is the dimensionality of the stored embeddings. Must match
	// the embedding model in use.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex backed by a Qdrant instance.
//
// Qdrant point IDs must be UUIDs or unsigned integers, so the message
// identifier (an ObjectID hex string) cannot be the point ID directly.
// Each point gets a UUIDv5 derived from the message identifier — stable, so
// re-upserting a message replaces its point — and carries the message
// identifier in its payload as the join key back to the document store.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a Qdrant-backed VectorIndex. The connection is
// established eagerly; the collection is created lazily by EnsureCollection.
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "sapien_memory"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// EnsureCollection creates the collection (cosine distance) and the keyword
// payload index on session_id if they do not exist yet. Safe to call
// repeatedly.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if !exists {
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
		}
	}

	// Keyword index on session_id so scoped searches do not scan the whole
	// collection. Creating an index that already exists is a no-op.
	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.cfg.Collection,
		FieldName:      "session_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create session_id payload index: %w", err)
	}

	return nil
}

// Upsert stores or replaces the vector for the given message.
func (q *QdrantIndex) Upsert(ctx context.Context, messageID, sessionID string, vector []float32) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(pointID(messageID)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			"message_id": messageID,
			"session_id": sessionID,
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert point for message %s: %w", messageID, err)
	}
	return nil
}

// Search performs a cosine similarity search restricted to the given session
// and returns up to k hits, most-similar first. Points missing a message_id
// payload are skipped — they cannot be joined back to a document.
func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, sessionID string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("qdrant: k must be positive, got %d", k)
	}
	limit := uint64(k)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("session_id", sessionID),
			},
		},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		p := r.Payload
		if p == nil {
			continue
		}
		id := p["message_id"].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, Hit{MessageID: id, Score: r.Score})
	}
	return hits, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID derives the stable UUIDv5 point identifier for a message.
func pointID(messageID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID)).String()
}
