package index

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartdocs/retrieval/internal/document"
	"github.com/smartdocs/retrieval/internal/log"
)

func countingFactory(t *testing.T, counter *atomic.Int32) Factory {
	t.Helper()
	store := document.NewMemoryStore()
	dir := t.TempDir()
	return func(ctx context.Context, version string) (*Service, error) {
		counter.Add(1)
		return NewService(ctx, newTestEmbedder(t, version), store, dir)
	}
}

func TestRegistry_ConstructsOncePerVersion(t *testing.T) {
	ctx := context.Background()
	var built atomic.Int32
	reg := NewRegistry(countingFactory(t, &built), log.NewNop())

	const goroutines = 8
	var wg sync.WaitGroup
	services := make([]*Service, goroutines)
	for i := range goroutines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc, err := reg.Get(ctx, "model-v1")
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			services[i] = svc
		}(i)
	}
	wg.Wait()

	if built.Load() != 1 {
		t.Errorf("factory ran %d times, want 1", built.Load())
	}
	for i := 1; i < goroutines; i++ {
		if services[i] != services[0] {
			t.Fatalf("goroutine %d received a different service instance", i)
		}
	}
}

func TestRegistry_VersionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	var built atomic.Int32
	reg := NewRegistry(countingFactory(t, &built), log.NewNop())

	v1, err := reg.Get(ctx, "model-v1")
	if err != nil {
		t.Fatalf("Get(v1) error = %v", err)
	}
	v2, err := reg.Get(ctx, "model-v2")
	if err != nil {
		t.Fatalf("Get(v2) error = %v", err)
	}

	if v1 == v2 {
		t.Error("distinct versions share a service instance")
	}
	if built.Load() != 2 {
		t.Errorf("factory ran %d times, want 2", built.Load())
	}
	if v1.ModelVersion() != "model-v1" || v2.ModelVersion() != "model-v2" {
		t.Errorf("versions = %q and %q, want model-v1 and model-v2", v1.ModelVersion(), v2.ModelVersion())
	}
}

func TestRegistry_Preload(t *testing.T) {
	ctx := context.Background()
	var built atomic.Int32
	reg := NewRegistry(countingFactory(t, &built), log.NewNop())

	reg.Preload(ctx, "model-v1", "model-v2")

	deadline := time.After(5 * time.Second)
	for built.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("preload built %d services, want 2", built.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Preloaded versions are served without another construction.
	for _, version := range []string{"model-v1", "model-v2"} {
		if _, err := reg.Get(ctx, version); err != nil {
			t.Fatalf("Get(%s) error = %v", version, err)
		}
	}
	if built.Load() != 2 {
		t.Errorf("factory ran %d times after preload, want 2", built.Load())
	}
}
