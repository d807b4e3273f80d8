package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps documents in a map. Used by tests and the memory
// backend; semantics match the SQLite store including version checks.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, slug string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[slug]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Doc = append([]byte(nil), rec.Doc...)
	return rec, nil
}

func (s *MemoryStore) Save(_ context.Context, slug string, doc []byte, baseVersion int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	existing, ok := s.records[slug]

	if baseVersion == 0 {
		if ok {
			return Record{}, ErrVersionConflict
		}
		rec := Record{
			Slug:      slug,
			Doc:       append([]byte(nil), doc...),
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.records[slug] = rec
		return rec, nil
	}

	if !ok {
		return Record{}, ErrNotFound
	}
	if existing.Version != baseVersion {
		return Record{}, ErrVersionConflict
	}
	rec := Record{
		Slug:      slug,
		Doc:       append([]byte(nil), doc...),
		Version:   baseVersion + 1,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
	}
	s.records[slug] = rec
	return rec, nil
}

func (s *MemoryStore) Slugs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slugs := make([]string, 0, len(s.records))
	for slug := range s.records {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
