package index

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/smartdocs/retrieval/internal/document"
	"github.com/smartdocs/retrieval/internal/embed"
)

const testVersion = "test-model-v1"

func newTestEmbedder(t *testing.T, version string) Embedder {
	t.Helper()
	svc, err := embed.NewService(embed.NewTestProvider(version, 32))
	if err != nil {
		t.Fatalf("embed.NewService() error = %v", err)
	}
	return svc
}

func seedChunks(t *testing.T, store document.Store, version string, contents ...string) []document.Chunk {
	t.Helper()
	ctx := context.Background()

	docID := document.NewID()
	if err := store.PutDocument(ctx, document.Document{
		ID:                    docID,
		Title:                 "seed.txt",
		Status:                document.StatusProcessed,
		EmbeddingModelVersion: version,
	}); err != nil {
		t.Fatalf("PutDocument() error = %v", err)
	}

	chunks := make([]document.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = document.Chunk{
			ID:                    document.NewID(),
			DocumentID:            docID,
			Index:                 i,
			Content:               content,
			EmbeddingModelVersion: version,
			VectorID:              -1,
		}
	}
	if err := store.ReplaceChunks(ctx, docID, chunks); err != nil {
		t.Fatalf("ReplaceChunks() error = %v", err)
	}
	return chunks
}

func TestService_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	contents := []string{
		"how to configure the retrieval engine",
		"recipe for sourdough bread",
		"vector indexes and similarity search",
		"annual financial report summary",
		"installing the command line client",
	}
	chunks := seedChunks(t, store, testVersion, contents...)

	added, err := svc.AddChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if added != len(chunks) {
		t.Fatalf("AddChunks() added %d, want %d", added, len(chunks))
	}

	matches, err := svc.Search(ctx, "vector indexes and similarity search", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Search(top_k=3) over 5 passages returned %d, want exactly 3", len(matches))
	}
	if matches[0].Chunk.Content != "vector indexes and similarity search" {
		t.Errorf("top match = %q, want the query's own passage", matches[0].Chunk.Content)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity >= matches[i-1].Similarity {
			t.Errorf("similarities not strictly descending: %v then %v",
				matches[i-1].Similarity, matches[i].Similarity)
		}
	}
}

func TestService_AddChunks_RecordsDenseIDs(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	chunks := seedChunks(t, store, testVersion, "alpha", "beta")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}

	for _, c := range chunks {
		got, err := store.GetChunk(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetChunk() error = %v", err)
		}
		if got.VectorID < 0 {
			t.Errorf("chunk %s VectorID = %d, want assigned dense id", c.ID, got.VectorID)
		}
	}
}

func TestService_Search_DropsMissingChunks(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	chunks := seedChunks(t, store, testVersion, "passage to delete")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := store.DeleteDocument(ctx, chunks[0].DocumentID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	matches, err := svc.Search(ctx, "passage to delete", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Search() returned %d matches for deleted passage, want 0", len(matches))
	}
}

func TestService_Search_DropsVersionMismatches(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	// The stored passage claims a different embedding model version than the
	// index it was added to.
	chunks := seedChunks(t, store, "other-model-v9", "stale passage")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}

	matches, err := svc.Search(ctx, "stale passage", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Search() returned %d matches across model versions, want 0", len(matches))
	}
}

func TestService_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := document.NewMemoryStore()

	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	chunks := seedChunks(t, store, testVersion, "persisted passage one", "persisted passage two")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := svc.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir)
	if err != nil {
		t.Fatalf("NewService() after save error = %v", err)
	}
	if reloaded.Size() != 2 {
		t.Fatalf("reloaded Size() = %d, want 2", reloaded.Size())
	}

	matches, err := reloaded.Search(ctx, "persisted passage one", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 1 || matches[0].Chunk.Content != "persisted passage one" {
		t.Errorf("Search() after reload = %+v, want the persisted passage", matches)
	}
}

// failNextEmbedder fails the next EmbedTexts call, then delegates.
type failNextEmbedder struct {
	Embedder
	failures int
	calls    int
}

func (f *failNextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("provider unavailable")
	}
	return f.Embedder.EmbedTexts(ctx, texts)
}

// poisonEmbedder fails any EmbedTexts call whose input includes the poison
// text, batch or single.
type poisonEmbedder struct {
	Embedder
	poison string
	calls  int
}

func (p *poisonEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls++
	for _, text := range texts {
		if text == p.poison {
			return nil, errors.New("provider rejected input")
		}
	}
	return p.Embedder.EmbedTexts(ctx, texts)
}

func TestService_AddChunks_SkipsOnlyFailingPassage(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	embedder := &poisonEmbedder{Embedder: newTestEmbedder(t, testVersion), poison: "passage number 3"}

	svc, err := NewService(ctx, embedder, store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	// 12 passages make two batches. The poison passage fails its batch call,
	// which then degrades to per-passage embedding; only the poison is lost.
	contents := make([]string, 12)
	for i := range contents {
		contents[i] = fmt.Sprintf("passage number %d", i)
	}
	chunks := seedChunks(t, store, testVersion, contents...)

	added, err := svc.AddChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if added != 11 {
		t.Errorf("AddChunks() added %d, want 11 (all but the failing passage)", added)
	}
	if svc.Size() != 11 {
		t.Errorf("Size() = %d, want 11", svc.Size())
	}
	// One failed batch call, ten per-passage retries, one clean batch call.
	if embedder.calls != 12 {
		t.Errorf("embedder called %d times, want 12", embedder.calls)
	}

	poisoned, err := store.GetChunk(ctx, chunks[3].ID)
	if err != nil {
		t.Fatalf("GetChunk() error = %v", err)
	}
	if poisoned.VectorID != -1 {
		t.Errorf("poison passage VectorID = %d, want -1 (never indexed)", poisoned.VectorID)
	}
}

func TestService_AddChunks_RecoversFromTransientBatchFailure(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	embedder := &failNextEmbedder{Embedder: newTestEmbedder(t, testVersion), failures: 1}

	svc, err := NewService(ctx, embedder, store, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	contents := make([]string, 12)
	for i := range contents {
		contents[i] = fmt.Sprintf("passage number %d", i)
	}
	chunks := seedChunks(t, store, testVersion, contents...)

	// The first batch call fails once; the per-passage retries all succeed.
	added, err := svc.AddChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if added != 12 {
		t.Errorf("AddChunks() added %d, want 12", added)
	}
	if embedder.calls != 12 {
		t.Errorf("embedder called %d times, want 12 (1 failed batch + 10 retries + 1 batch)", embedder.calls)
	}
}

func newServiceFreshness(t *testing.T) *Freshness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFreshness(client, 7*24*time.Hour)
}

func TestService_NewService_DiscardsStaleArtifacts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := document.NewMemoryStore()
	fresh := newServiceFreshness(t)

	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir, WithFreshness(fresh))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	chunks := seedChunks(t, store, testVersion, "passage one", "passage two")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := svc.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Marker and artifacts agree: the persisted index is trusted.
	reloaded, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir, WithFreshness(fresh))
	if err != nil {
		t.Fatalf("NewService() after save error = %v", err)
	}
	if reloaded.Size() != 2 {
		t.Fatalf("reloaded Size() = %d, want 2", reloaded.Size())
	}

	// Another writer rewrites the artifacts without republishing the marker:
	// the on-disk pair no longer matches and must not be served.
	time.Sleep(10 * time.Millisecond)
	if err := svc.flat.Save(dir, testVersion); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stale, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir, WithFreshness(fresh))
	if err != nil {
		t.Fatalf("NewService() with stale artifacts error = %v", err)
	}
	if stale.Size() != 0 {
		t.Errorf("Size() = %d with stale artifacts, want 0 (start empty)", stale.Size())
	}
}

func TestService_NewService_RefreshesMarkerAfterLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := document.NewMemoryStore()
	fresh := newServiceFreshness(t)

	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir, WithFreshness(fresh))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	chunks := seedChunks(t, store, testVersion, "passage one", "passage two")
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}
	if err := svc.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := fresh.Invalidate(ctx, testVersion); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	// Without a marker the artifacts count as fresh; loading republishes one.
	reloaded, err := NewService(ctx, newTestEmbedder(t, testVersion), store, dir, WithFreshness(fresh))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if reloaded.Size() != 2 {
		t.Fatalf("reloaded Size() = %d, want 2", reloaded.Size())
	}

	marker, err := fresh.Read(ctx, testVersion)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if marker == nil {
		t.Fatal("no marker republished after load")
	}
	if marker.Count != 2 {
		t.Errorf("marker.Count = %d, want 2", marker.Count)
	}
}

// flakyStore fails GetChunk for one chunk id with a non-NotFound error.
type flakyStore struct {
	document.Store
	failID string
}

func (f *flakyStore) GetChunk(ctx context.Context, id string) (document.Chunk, error) {
	if id == f.failID {
		return document.Chunk{}, errors.New("store unavailable")
	}
	return f.Store.GetChunk(ctx, id)
}

func TestService_Search_SkipsUnresolvableHits(t *testing.T) {
	ctx := context.Background()
	store := document.NewMemoryStore()
	chunks := seedChunks(t, store, testVersion, "first passage", "second passage", "third passage")

	svc, err := NewService(ctx, newTestEmbedder(t, testVersion), &flakyStore{Store: store, failID: chunks[0].ID}, t.TempDir())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if _, err := svc.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks() error = %v", err)
	}

	// One hit cannot be resolved against the store; the rest still come back.
	matches, err := svc.Search(ctx, "second passage", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
	for _, m := range matches {
		if m.Chunk.ID == chunks[0].ID {
			t.Errorf("unresolvable chunk %s returned in results", m.Chunk.ID)
		}
	}
}
