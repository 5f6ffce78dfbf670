package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/sapien-ai/sapien-go/embedder"
	"github.com/sapien-ai/sapien-go/internal/server"
	"github.com/sapien-ai/sapien-go/memory"
)

// memoryStack bundles the wired memory client with its backend handles so
// commands can reach the store and index directly (e.g. for readiness probes).
type memoryStack struct {
	// client is the fully wired memory client.
	client *memory.Client
	// store is the MongoDB-backed message store behind the client.
	store *memory.MongoStore
	// index is the Qdrant-backed vector index behind the client.
	index *memory.QdrantIndex
	// log is the logger the stack was built with.
	log *slog.Logger
}

// close releases both backend connections via the client.
func (m *memoryStack) close() {
	if err := m.client.Close(context.Background()); err != nil {
		m.log.Warn("close failed", slog.Any("error", err))
	}
}

// pingers returns the readiness probes for the stack, one per backend.
func (m *memoryStack) pingers() []server.Pinger {
	return []server.Pinger{
		server.NewStorePinger(m.store),
		server.NewIndexPinger(m.index),
	}
}

// buildMemoryStack constructs the fully wired memory client from the
// environment: MongoDB store, Qdrant index, and the configured embedder.
// Callers must invoke close on the returned stack when the command finishes.
func buildMemoryStack(ctx context.Context, log *slog.Logger) (*memoryStack, error) {
	store, err := memory.NewMongoStore(ctx, &memory.MongoConfig{
		URI:      getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		Database: os.Getenv("MONGO_DATABASE"),
		Collections: memory.CollectionNames{
			Sessions:  os.Getenv("SAPIEN_SESSIONS_COLLECTION"),
			Messages:  os.Getenv("SAPIEN_MESSAGES_COLLECTION"),
			Entities:  os.Getenv("SAPIEN_ENTITIES_COLLECTION"),
			Relations: os.Getenv("SAPIEN_RELATIONS_COLLECTION"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	log.Info("mongodb store ready", slog.String("database", getEnvOrDefault("MONGO_DATABASE", "sapien")))

	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	vectorSize := uint64(embedder.DefaultDimensions(embedder.Backend())) //nolint:gosec // dimensions are bounded

	index, err := memory.NewQdrantIndex(&memory.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: os.Getenv("QDRANT_COLLECTION"),
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant index ready", slog.String("host", qdrantHost), slog.Int("port", qdrantPort))

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		_ = index.Close()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

	client, err := memory.New(&memory.Config{
		Store:    store,
		Index:    index,
		Embedder: emb,
		Logger:   log,
	})
	if err != nil {
		_ = index.Close()
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to create memory client: %w", err)
	}

	return &memoryStack{client: client, store: store, index: index, log: log}, nil
}

// resolveServerAddr returns the address the serve command should bind.
// An explicitly set flag wins; otherwise the SERVER_HOST/SERVER_PORT env
// vars (populated from the YAML config by config.Load) override the flag
// defaults.
func resolveServerAddr(hostSet, portSet bool, host string, port int) (string, int) {
	if !hostSet {
		host = getEnvOrDefault("SERVER_HOST", host)
	}
	if !portSet {
		port = getEnvInt("SERVER_PORT", port)
	}
	return host, port
}

// getEnvOrDefault returns the env var value or fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as an int, or fallback when unset or
// not a valid integer.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
