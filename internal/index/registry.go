package index

import (
	"context"
	"sync"

	"github.com/smartdocs/retrieval/internal/log"
)

// Factory builds the index service for a model version.
type Factory func(ctx context.Context, version string) (*Service, error)

// Registry hands out one Service per embedding model version. Construction
// (which may load a large persisted index) happens at most once per version;
// concurrent callers for the same version block on a per-version lock while
// other versions proceed independently.
type Registry struct {
	factory Factory
	logger  log.Logger

	mu       sync.Mutex
	services map[string]*Service
	building map[string]*sync.Mutex
}

// NewRegistry creates a registry around factory.
func NewRegistry(factory Factory, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		factory:  factory,
		logger:   logger,
		services: make(map[string]*Service),
		building: make(map[string]*sync.Mutex),
	}
}

// Get returns the service for a model version, constructing it on first use.
func (r *Registry) Get(ctx context.Context, version string) (*Service, error) {
	r.mu.Lock()
	if svc, ok := r.services[version]; ok {
		r.mu.Unlock()
		return svc, nil
	}
	lock, ok := r.building[version]
	if !ok {
		lock = &sync.Mutex{}
		r.building[version] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	// Another caller may have finished construction while we waited.
	r.mu.Lock()
	if svc, ok := r.services[version]; ok {
		r.mu.Unlock()
		return svc, nil
	}
	r.mu.Unlock()

	svc, err := r.factory(ctx, version)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.services[version] = svc
	delete(r.building, version)
	r.mu.Unlock()

	return svc, nil
}

// Preload constructs services for the given versions in the background. It
// returns immediately; failures are logged and retried on the next Get.
func (r *Registry) Preload(ctx context.Context, versions ...string) {
	for _, version := range versions {
		go func(version string) {
			if _, err := r.Get(ctx, version); err != nil {
				r.logger.Warn("index preload failed",
					"model_version", version,
					"error", err)
			}
		}(version)
	}
}

// Versions lists the versions with a constructed service.
func (r *Registry) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.services))
	for v := range r.services {
		out = append(out, v)
	}
	return out
}
