package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// defaultTopK is the number of context messages returned when the caller
// passes k=0 to GetContext.
const defaultTopK = 10

// defaultIndexTimeout bounds the background embed+upsert unit spawned by
// AddMessage. The unit runs detached from the caller's context, so it needs
// its own deadline.
const defaultIndexTimeout = 30 * time.Second

// Config holds the dependencies and tuning knobs for a Client.
type Config struct {
	// Store persists and retrieves message documents. Required.
	Store MessageStore

	// Index performs vector upserts and similarity search. Required.
	Index VectorIndex

	// Embedder converts message and query text into vectors. Required.
	Embedder Embedder

	// DefaultTopK is the result count used when GetContext is called with
	// k<=0. Defaults to 10.
	DefaultTopK int

	// IndexTimeout bounds each background embed+upsert unit. Defaults to 30s.
	IndexTimeout time.Duration

	// Logger receives structured log entries, including background indexing
	// failures that are never surfaced to AddMessage callers. If nil,
	// slog.Default is used.
	Logger *slog.Logger

	// OnIndexError, if set, is invoked from the background goroutine when
	// indexing a message fails. The message stays persisted but will not be
	// found by semantic search. Optional supervision hook; must not block.
	OnIndexError func(messageID string, err error)

	// Metrics receives the client's Prometheus metrics. If nil a throwaway
	// registry is used so instrumentation never needs nil checks.
	Metrics metricsRegisterer
}

// Client writes chat messages to the document store, schedules their
// embedding and vector indexing in the background, and answers
// session-scoped semantic context queries.
//
// A Client owns its backend handles: construct once at startup, call Close
// at shutdown. All methods are safe for concurrent use.
type Client struct {
	store    MessageStore
	index    VectorIndex
	embedder Embedder

	topK         int
	indexTimeout time.Duration
	log          *slog.Logger
	onIndexError func(string, error)
	metrics      *clientMetrics

	// indexing tracks in-flight background embed+upsert units so Flush can
	// wait for them. Close does not wait: units still running at teardown
	// are abandoned, same as a process kill.
	indexing sync.WaitGroup
}

// New constructs a Client from the given config.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("memory: config must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("memory: store must not be nil")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("memory: index must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("memory: embedder must not be nil")
	}

	topK := cfg.DefaultTopK
	if topK <= 0 {
		topK = defaultTopK
	}
	timeout := cfg.IndexTimeout
	if timeout <= 0 {
		timeout = defaultIndexTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		store:        cfg.Store,
		index:        cfg.Index,
		embedder:     cfg.Embedder,
		topK:         topK,
		indexTimeout: timeout,
		log:          log,
		onIndexError: cfg.OnIndexError,
		metrics:      newClientMetrics(cfg.Metrics),
	}, nil
}

// AddMessage persists a message and returns its identifier as soon as the
// document write completes. Embedding and vector indexing happen in a
// background unit that is not joined with this call: a freshly added message
// becomes searchable only once that unit finishes, and if it fails the
// message stays persisted but unsearchable. Indexing failures are logged,
// counted, and reported to Config.OnIndexError — never returned here.
//
// A zero timestamp defaults to the current time.
func (c *Client) AddMessage(ctx context.Context, sessionID string, role Role, content string, timestamp time.Time) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("memory: session id must not be empty")
	}
	if content == "" {
		return "", fmt.Errorf("memory: content must not be empty")
	}
	if !role.Valid() {
		return "", fmt.Errorf("memory: invalid role %q — valid values: user, assistant, system", role)
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	id, err := c.store.Insert(ctx, Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("memory: insert message: %w", err)
	}
	c.metrics.messagesTotal.Inc()

	c.indexing.Add(1)
	go func() {
		defer c.indexing.Done()
		c.indexMessage(id, sessionID, content)
	}()

	return id, nil
}

// indexMessage runs the fire-and-forget half of AddMessage: embed the
// content, write the vector back onto the document, upsert it into the
// vector index. Runs on a fresh context so caller cancellation cannot
// abort indexing of an already-persisted message.
func (c *Client) indexMessage(id, sessionID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.indexTimeout)
	defer cancel()

	start := time.Now()

	vectors, err := c.embedder.Embed(ctx, []string{content})
	if err != nil {
		c.indexFailed(id, "embed", err)
		return
	}
	if len(vectors) == 0 {
		c.indexFailed(id, "embed", fmt.Errorf("embedder returned no vectors"))
		return
	}
	vec := vectors[0]

	if err := c.store.SetEmbedding(ctx, id, vec); err != nil {
		c.indexFailed(id, "store", err)
		return
	}

	if err := c.index.Upsert(ctx, id, sessionID, vec); err != nil {
		c.indexFailed(id, "upsert", err)
		return
	}

	c.metrics.indexDurationSeconds.Observe(time.Since(start).Seconds())
}

// indexFailed records a background indexing failure. The message remains in
// the document store but is invisible to semantic search.
func (c *Client) indexFailed(id, stage string, err error) {
	c.metrics.indexFailuresTotal.WithLabelValues(stage).Inc()
	c.log.Warn("memory: background indexing failed — message persisted but not searchable",
		slog.String("message_id", id),
		slog.String("stage", stage),
		slog.Any("error", err),
	)
	if c.onIndexError != nil {
		c.onIndexError(id, fmt.Errorf("%s: %w", stage, err))
	}
}

// GetContext returns up to k messages from the given session that are
// semantically closest to query, most-similar first. k<=0 uses the
// configured default. An empty session yields an empty slice, not an error.
//
// Hits whose document cannot be found are dropped silently: a vector can
// outlive its document when indexing raced a failed write, and retrieval
// tolerates that rather than failing the whole call.
func (c *Client) GetContext(ctx context.Context, sessionID, query string, k int) ([]Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("memory: session id must not be empty")
	}
	if query == "" {
		return nil, fmt.Errorf("memory: query must not be empty")
	}
	if k <= 0 {
		k = c.topK
	}

	vectors, err := c.embedder.Embed(ctx, []string{query})
	if err != nil {
		c.metrics.contextRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	if len(vectors) == 0 {
		c.metrics.contextRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("memory: embedder returned no vectors for query")
	}

	hits, err := c.index.Search(ctx, vectors[0], sessionID, k)
	if err != nil {
		c.metrics.contextRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("memory: vector search: %w", err)
	}
	if len(hits) == 0 {
		c.metrics.contextRequestsTotal.WithLabelValues("ok").Inc()
		return []Message{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.MessageID)
	}

	msgs, err := c.store.FindByIDs(ctx, ids)
	if err != nil {
		c.metrics.contextRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("memory: fetch messages: %w", err)
	}

	c.metrics.contextRequestsTotal.WithLabelValues("ok").Inc()
	return msgs, nil
}

// InitIndexes performs idempotent setup of the document store's secondary
// indexes and the vector index collection. Call once after construction;
// calling it again is harmless.
func (c *Client) InitIndexes(ctx context.Context) error {
	if err := c.store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("memory: ensure document indexes: %w", err)
	}
	if err := c.index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("memory: ensure vector collection: %w", err)
	}
	return nil
}

// Flush blocks until all background indexing units spawned so far have
// completed (successfully or not). Intended for tests and for callers that
// need read-your-writes search behaviour.
func (c *Client) Flush() {
	c.indexing.Wait()
}

// Close releases both backend connections. Background indexing units still
// in flight are abandoned, matching process-teardown semantics; call Flush
// first if they must complete.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("memory: close vector index: %w", err))
	}
	if err := c.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: close message store: %w", err))
	}
	return errors.Join(errs...)
}
