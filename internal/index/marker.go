package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// markerKeyPrefix namespaces index freshness markers in Redis.
const markerKeyPrefix = "smartdocs:index:meta:"

// Marker records when an index was last persisted and the modification times
// of its artifacts. A reader whose on-disk mtimes differ from the marker
// knows another process has rewritten the index.
type Marker struct {
	SavedAt      time.Time `json:"saved_at"`
	ModelVersion string    `json:"model_version"`
	Count        int       `json:"count"`
	Dim          int       `json:"dim"`
	IndexMTime   int64     `json:"index_mtime"`
	MappingMTime int64     `json:"mapping_mtime"`
}

// Freshness publishes and checks markers for persisted indexes.
type Freshness struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewFreshness creates a marker store. Markers expire after ttl.
func NewFreshness(client redis.UniversalClient, ttl time.Duration) *Freshness {
	return &Freshness{client: client, ttl: ttl}
}

func markerKey(version string) string { return markerKeyPrefix + version }

// Write publishes a marker for the artifacts currently on disk.
func (f *Freshness) Write(ctx context.Context, dir, version string, count, dim int) error {
	indexMTime, err := mtime(IndexPath(dir, version))
	if err != nil {
		return fmt.Errorf("stating index artifact: %w", err)
	}
	mappingMTime, err := mtime(MappingPath(dir, version))
	if err != nil {
		return fmt.Errorf("stating mapping artifact: %w", err)
	}

	marker := Marker{
		SavedAt:      time.Now().UTC(),
		ModelVersion: version,
		Count:        count,
		Dim:          dim,
		IndexMTime:   indexMTime,
		MappingMTime: mappingMTime,
	}
	data, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encoding marker: %w", err)
	}

	if err := f.client.Set(ctx, markerKey(version), data, f.ttl).Err(); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	return nil
}

// Read returns the marker for a model version, or nil when none exists.
func (f *Freshness) Read(ctx context.Context, version string) (*Marker, error) {
	data, err := f.client.Get(ctx, markerKey(version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading marker: %w", err)
	}

	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("decoding marker: %w", err)
	}
	return &marker, nil
}

// Fresh reports whether the loaded artifacts still match the published
// marker. Without a marker the on-disk state counts as fresh.
func (f *Freshness) Fresh(ctx context.Context, dir, version string) (bool, error) {
	marker, err := f.Read(ctx, version)
	if err != nil {
		return false, err
	}
	if marker == nil {
		return true, nil
	}

	// A vanished artifact is stale, not an error.
	indexMTime, err := mtime(IndexPath(dir, version))
	if err != nil {
		return false, nil
	}
	mappingMTime, err := mtime(MappingPath(dir, version))
	if err != nil {
		return false, nil
	}

	return indexMTime == marker.IndexMTime && mappingMTime == marker.MappingMTime, nil
}

// Invalidate removes the marker for a model version.
func (f *Freshness) Invalidate(ctx context.Context, version string) error {
	if err := f.client.Del(ctx, markerKey(version)).Err(); err != nil {
		return fmt.Errorf("deleting marker: %w", err)
	}
	return nil
}

func mtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixNano(), nil
}
