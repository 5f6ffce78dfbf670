package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// messageTTL is how long message documents are retained before the TTL
// index expires them.
const messageTTL = 30 * 24 * time.Hour

// CollectionNames holds the MongoDB collection names used by the store.
// Defaults are prefixed "sapien_" so the client can share a database with
// other applications without collisions.
type CollectionNames struct {
	// Sessions holds one document per conversation session.
	Sessions string
	// Messages holds the chat message documents.
	Messages string
	// Entities is reserved for knowledge-graph entity records.
	Entities string
	// Relations is reserved for knowledge-graph relation records.
	Relations string
}

// DefaultCollectionNames returns the namespaced default collection names.
func DefaultCollectionNames() CollectionNames {
	return CollectionNames{
		Sessions:  "sapien_sessions",
		Messages:  "sapien_messages",
		Entities:  "sapien_entities",
		Relations: "sapien_relations",
	}
}

// MongoConfig holds connection parameters for a MongoStore.
type MongoConfig struct {
	// URI is the MongoDB connection string (e.g. "mongodb://localhost:27017").
	URI string

	// Database is the database name (default: "sapien").
	Database string

	// Collections overrides the default collection names. Zero-value fields
	// fall back to the namespaced defaults.
	Collections CollectionNames
}

// MongoStore implements MessageStore backed by MongoDB.
type MongoStore struct {
	// client is the underlying MongoDB client, shared by all calls.
	client *mongo.Client

	// db is the resolved database handle.
	db *mongo.Database

	// names holds the resolved collection names.
	names CollectionNames
}

// messageDoc is the BSON shape of a persisted message.
type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	SessionID string             `bson:"session_id"`
	Role      string             `bson:"role"`
	Content   string             `bson:"content"`
	Timestamp time.Time          `bson:"timestamp"`
	Embedding primitive.Binary   `bson:"embedding,omitempty"`
}

// NewMongoStore connects to MongoDB and verifies reachability with a ping so
// a malformed URI or unreachable server fails at startup, not on first write.
func NewMongoStore(ctx context.Context, cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("mongo: connection URI must not be empty")
	}
	if cfg.Database == "" {
		cfg.Database = "sapien"
	}

	names := cfg.Collections
	defaults := DefaultCollectionNames()
	if names.Sessions == "" {
		names.Sessions = defaults.Sessions
	}
	if names.Messages == "" {
		names.Messages = defaults.Messages
	}
	if names.Entities == "" {
		names.Entities = defaults.Entities
	}
	if names.Relations == "" {
		names.Relations = defaults.Relations
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping %s: %w", cfg.URI, err)
	}

	return &MongoStore{
		client: client,
		db:     client.Database(cfg.Database),
		names:  names,
	}, nil
}

// messages returns the messages collection handle.
func (s *MongoStore) messages() *mongo.Collection {
	return s.db.Collection(s.names.Messages)
}

// sessions returns the sessions collection handle.
func (s *MongoStore) sessions() *mongo.Collection {
	return s.db.Collection(s.names.Sessions)
}

// Insert persists a new message and returns its ObjectID as a hex string.
func (s *MongoStore) Insert(ctx context.Context, msg Message) (string, error) {
	doc := messageDoc{
		SessionID: msg.SessionID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}

	res, err := s.messages().InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("mongo: insert message: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongo: unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// FindByIDs fetches messages by identifier, preserving the order of ids in
// the result. Identifiers that do not parse or have no matching document are
// dropped silently — the caller treats them as orphaned vector records.
func (s *MongoStore) FindByIDs(ctx context.Context, ids []string) ([]Message, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return []Message{}, nil
	}

	cur, err := s.messages().Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("mongo: find messages: %w", err)
	}

	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode messages: %w", err)
	}

	// $in returns documents in storage order; re-join on the requested order.
	byID := make(map[string]messageDoc, len(docs))
	for _, d := range docs {
		byID[d.ID.Hex()] = d
	}

	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			continue
		}
		msgs = append(msgs, Message{
			ID:        d.ID.Hex(),
			SessionID: d.SessionID,
			Role:      Role(d.Role),
			Content:   d.Content,
			Timestamp: d.Timestamp,
		})
	}
	return msgs, nil
}

// SetEmbedding writes the computed vector onto the message document as a
// packed little-endian float32 binary field.
func (s *MongoStore) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("mongo: invalid message id %q: %w", id, err)
	}

	_, err = s.messages().UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"embedding": primitive.Binary{Data: packFloat32(vector)}},
	})
	if err != nil {
		return fmt.Errorf("mongo: set embedding on %s: %w", id, err)
	}
	return nil
}

// EnsureIndexes creates the secondary indexes used by the client:
// a unique session lookup index, a (session_id, timestamp desc) compound
// index for chronological scans, and a 30-day TTL index on the message
// timestamp. CreateMany is a no-op for indexes that already exist, so the
// call is safe to repeat.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.sessions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: create sessions index: %w", err)
	}

	ttlSeconds := int32(messageTTL / time.Second)
	_, err = s.messages().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: create message indexes: %w", err)
	}
	return nil
}

// Ping checks whether the MongoDB deployment is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the underlying MongoDB client.
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo: disconnect: %w", err)
	}
	return nil
}

// packFloat32 encodes a vector as packed little-endian float32 bytes.
func packFloat32(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
