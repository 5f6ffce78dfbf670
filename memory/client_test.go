package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory MessageStore for tests.
type fakeStore struct {
	mu        sync.Mutex
	seq       int
	msgs      map[string]Message
	embedding map[string][]float32
	indexInit int
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		msgs:      make(map[string]Message),
		embedding: make(map[string][]float32),
	}
}

func (f *fakeStore) Insert(_ context.Context, msg Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.seq++
	id := fmt.Sprintf("msg-%03d", f.seq)
	msg.ID = id
	f.msgs[id] = msg
	return id, nil
}

func (f *fakeStore) FindByIDs(_ context.Context, ids []string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.msgs[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) SetEmbedding(_ context.Context, id string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedding[id] = vec
	return nil
}

func (f *fakeStore) EnsureIndexes(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexInit++
	return nil
}

func (f *fakeStore) Ping(context.Context) error  { return nil }
func (f *fakeStore) Close(context.Context) error { return nil }

func (f *fakeStore) delete(id string) {
	f.mu.Lock()
	delete(f.msgs, id)
	f.mu.Unlock()
}

// fakeIndex is an in-memory VectorIndex that scores by dot product.
type fakeIndex struct {
	mu        sync.Mutex
	points    map[string]fakePoint
	collInit  int
	searchErr error
	upsertErr error
}

type fakePoint struct {
	sessionID string
	vector    []float32
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[string]fakePoint)}
}

func (f *fakeIndex) Upsert(_ context.Context, messageID, sessionID string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[messageID] = fakePoint{sessionID: sessionID, vector: vec}
	return nil
}

func (f *fakeIndex) Search(_ context.Context, query []float32, sessionID string, k int) ([]Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []Hit
	for id, p := range f.points {
		if p.sessionID != sessionID {
			continue
		}
		hits = append(hits, Hit{MessageID: id, Score: dot(query, p.vector)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeIndex) EnsureCollection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collInit++
	return nil
}

func (f *fakeIndex) Ping(context.Context) error { return nil }
func (f *fakeIndex) Close() error               { return nil }

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		if i < len(b) {
			s += a[i] * b[i]
		}
	}
	return s
}

// fakeEmbedder maps known texts to fixed vectors; unknown texts get a unit
// vector on the first axis so identical texts always embed identically.
type fakeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vecs[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{1, 0, 0}
		}
	}
	return out, nil
}

// newTestClient wires a Client over fresh fakes.
func newTestClient(t *testing.T, emb *fakeEmbedder) (*Client, *fakeStore, *fakeIndex) {
	t.Helper()
	store := newFakeStore()
	index := newFakeIndex()
	if emb == nil {
		emb = &fakeEmbedder{}
	}
	c, err := New(&Config{Store: store, Index: index, Embedder: emb})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, store, index
}

func Test_Client_RoundTrip(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)
	ctx := context.Background()

	id, err := c.AddMessage(ctx, "chat-1", RoleUser, "I need a laptop.", time.Time{})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if id == "" {
		t.Fatal("want non-empty message id")
	}
	c.Flush()

	msgs, err := c.GetContext(ctx, "chat-1", "I need a laptop.", 5)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "I need a laptop." {
		t.Errorf("want inserted content back, got %q", msgs[0].Content)
	}
	if msgs[0].ID != id {
		t.Errorf("want id %s, got %s", id, msgs[0].ID)
	}
}

func Test_Client_SessionScoping(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)
	ctx := context.Background()

	if _, err := c.AddMessage(ctx, "session-a", RoleUser, "a secret", time.Time{}); err != nil {
		t.Fatalf("add to a: %v", err)
	}
	if _, err := c.AddMessage(ctx, "session-b", RoleUser, "b note", time.Time{}); err != nil {
		t.Fatalf("add to b: %v", err)
	}
	c.Flush()

	msgs, err := c.GetContext(ctx, "session-b", "anything", 10)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	for _, m := range msgs {
		if m.SessionID != "session-b" {
			t.Errorf("message %s leaked from session %s", m.ID, m.SessionID)
		}
	}
}

func Test_Client_KBound(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)
	ctx := context.Background()

	for i := range 5 {
		if _, err := c.AddMessage(ctx, "chat-k", RoleUser, fmt.Sprintf("note %d", i), time.Time{}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	c.Flush()

	msgs, err := c.GetContext(ctx, "chat-k", "note", 3)
	if err != nil {
		t.Fatalf("get context k=3: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("k=3: want 3 messages, got %d", len(msgs))
	}

	msgs, err = c.GetContext(ctx, "chat-k", "note", 10)
	if err != nil {
		t.Fatalf("get context k=10: %v", err)
	}
	if len(msgs) != 5 {
		t.Errorf("k=10 with 5 candidates: want 5 messages, got %d", len(msgs))
	}
}

func Test_Client_OrderedBySimilarity(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"query": {1, 0, 0},
		"close": {0.9, 0.1, 0},
		"mid":   {0.5, 0.5, 0},
		"far":   {0.1, 0.9, 0},
	}}
	c, _, _ := newTestClient(t, emb)
	ctx := context.Background()

	// Insert in worst-first order so rank cannot accidentally equal insert order.
	for _, content := range []string{"far", "mid", "close"} {
		if _, err := c.AddMessage(ctx, "chat-rank", RoleUser, content, time.Time{}); err != nil {
			t.Fatalf("add %q: %v", content, err)
		}
	}
	c.Flush()

	msgs, err := c.GetContext(ctx, "chat-rank", "query", 3)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	want := []string{"close", "mid", "far"}
	if len(msgs) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(msgs))
	}
	for i, w := range want {
		if msgs[i].Content != w {
			t.Errorf("rank %d: want %q, got %q", i, w, msgs[i].Content)
		}
	}
}

func Test_Client_InitIndexesIdempotent(t *testing.T) {
	t.Parallel()
	c, store, index := newTestClient(t, nil)
	ctx := context.Background()

	if err := c.InitIndexes(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	if err := c.InitIndexes(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if store.indexInit != 2 || index.collInit != 2 {
		t.Errorf("want both backends initialised twice, got store=%d index=%d", store.indexInit, index.collInit)
	}
}

func Test_Client_OrphanedVectorOmitted(t *testing.T) {
	t.Parallel()
	c, store, _ := newTestClient(t, nil)
	ctx := context.Background()

	keep, err := c.AddMessage(ctx, "chat-orphan", RoleUser, "kept", time.Time{})
	if err != nil {
		t.Fatalf("add kept: %v", err)
	}
	orphan, err := c.AddMessage(ctx, "chat-orphan", RoleUser, "orphaned", time.Time{})
	if err != nil {
		t.Fatalf("add orphaned: %v", err)
	}
	c.Flush()

	// Delete the document directly; its vector record remains in the index.
	store.delete(orphan)

	msgs, err := c.GetContext(ctx, "chat-orphan", "anything", 10)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("want 1 message after orphan drop, got %d", len(msgs))
	}
	if msgs[0].ID != keep {
		t.Errorf("want surviving message %s, got %s", keep, msgs[0].ID)
	}
}

// gateEmbedder blocks Embed until release is closed, then fails if its
// context has been cancelled. Used to prove indexing runs detached from the
// caller's context.
type gateEmbedder struct {
	release chan struct{}
}

func (g *gateEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func Test_Client_CallerCancelDoesNotAbortIndexing(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	index := newFakeIndex()
	emb := &gateEmbedder{release: make(chan struct{})}
	c, err := New(&Config{Store: store, Index: index, Embedder: emb})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id, err := c.AddMessage(ctx, "chat-cancel", RoleUser, "still indexed", time.Time{})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}

	// Cancel the caller's context before the embedder is allowed to run.
	// The background unit must proceed on its own detached context.
	cancel()
	close(emb.release)
	c.Flush()

	index.mu.Lock()
	_, indexed := index.points[id]
	index.mu.Unlock()
	if !indexed {
		t.Error("message must be upserted despite caller cancellation")
	}

	store.mu.Lock()
	_, embedded := store.embedding[id]
	store.mu.Unlock()
	if !embedded {
		t.Error("embedding must be written back despite caller cancellation")
	}
}

func Test_Client_EmptySessionReturnsEmpty(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)

	msgs, err := c.GetContext(context.Background(), "never-used", "anything", 10)
	if err != nil {
		t.Fatalf("get context on empty session: %v", err)
	}
	if msgs == nil {
		t.Error("want empty slice, got nil")
	}
	if len(msgs) != 0 {
		t.Errorf("want 0 messages, got %d", len(msgs))
	}
}

func Test_Client_AddMessageValidation(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)
	ctx := context.Background()

	cases := []struct {
		name      string
		sessionID string
		role      Role
		content   string
	}{
		{"empty session", "", RoleUser, "hi"},
		{"empty content", "chat-1", RoleUser, ""},
		{"bad role", "chat-1", Role("robot"), "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.AddMessage(ctx, tc.sessionID, tc.role, tc.content, time.Time{}); err == nil {
				t.Error("want validation error, got nil")
			}
		})
	}
}

func Test_Client_GetContextValidation(t *testing.T) {
	t.Parallel()
	c, _, _ := newTestClient(t, nil)
	ctx := context.Background()

	if _, err := c.GetContext(ctx, "", "query", 5); err == nil {
		t.Error("empty session: want error, got nil")
	}
	if _, err := c.GetContext(ctx, "chat-1", "", 5); err == nil {
		t.Error("empty query: want error, got nil")
	}
}

func Test_Client_IndexingFailureNotSurfaced(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	index := newFakeIndex()
	index.upsertErr = fmt.Errorf("qdrant unreachable")

	var mu sync.Mutex
	var failed []string
	c, err := New(&Config{
		Store:    store,
		Index:    index,
		Embedder: &fakeEmbedder{},
		OnIndexError: func(id string, _ error) {
			mu.Lock()
			failed = append(failed, id)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	id, err := c.AddMessage(ctx, "chat-ff", RoleUser, "doomed", time.Time{})
	if err != nil {
		t.Fatalf("add message must succeed despite broken index: %v", err)
	}
	c.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != id {
		t.Errorf("want index error hook for %s, got %v", id, failed)
	}

	// The message is persisted but invisible to search.
	msgs, err := c.GetContext(ctx, "chat-ff", "doomed", 10)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("unindexed message must not be searchable, got %d results", len(msgs))
	}
}

func Test_Client_InsertFailureSurfaced(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.insertErr = fmt.Errorf("mongo down")
	index := newFakeIndex()
	c, err := New(&Config{Store: store, Index: index, Embedder: &fakeEmbedder{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.AddMessage(context.Background(), "chat-1", RoleUser, "hi", time.Time{}); err == nil {
		t.Error("want insert error surfaced, got nil")
	}
}

func Test_Client_SearchFailureSurfaced(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	index := newFakeIndex()
	index.searchErr = fmt.Errorf("qdrant down")
	c, err := New(&Config{Store: store, Index: index, Embedder: &fakeEmbedder{}})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.GetContext(context.Background(), "chat-1", "hi", 5); err == nil {
		t.Error("want retrieval error surfaced, got nil")
	}
}

func Test_Client_NewValidatesDependencies(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	index := newFakeIndex()
	emb := &fakeEmbedder{}

	cases := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"nil store", &Config{Index: index, Embedder: emb}},
		{"nil index", &Config{Store: store, Embedder: emb}},
		{"nil embedder", &Config{Store: store, Index: index}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Error("want constructor error, got nil")
			}
		})
	}
}
