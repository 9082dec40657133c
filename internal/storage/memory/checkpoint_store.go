// Package memory keeps checkpoints in-memory for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// CheckpointStore holds encoded checkpoints keyed by unit. Payloads go through
// the same codec as the file-backed stores.
type CheckpointStore struct {
	mu    sync.RWMutex
	data  map[crawler.SearchUnit][]byte
	saves int
}

// NewCheckpointStore creates an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[crawler.SearchUnit][]byte)}
}

// Put stores a raw payload without validation.
func (s *CheckpointStore) Put(unit crawler.SearchUnit, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[unit] = append([]byte(nil), raw...)
}

// Raw returns the stored payload of a unit.
func (s *CheckpointStore) Raw(unit crawler.SearchUnit) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[unit]
	return append([]byte(nil), raw...), ok
}

// Writes counts successful Save and Replace calls.
func (s *CheckpointStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Exists implements crawler.CheckpointStore.
func (s *CheckpointStore) Exists(ctx context.Context, unit crawler.SearchUnit) (bool, error) {
	_, err := s.Load(ctx, unit)
	switch {
	case err == nil:
		return true, nil
	case crawler.IsCorrupt(err):
		return false, err
	default:
		return false, nil
	}
}

// Load implements crawler.CheckpointStore.
func (s *CheckpointStore) Load(_ context.Context, unit crawler.SearchUnit) ([]crawler.OfficerRecord, error) {
	s.mu.RLock()
	raw, ok := s.data[unit]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", crawler.ErrCheckpointNotFound, unit)
	}
	return crawler.DecodeCheckpoint(unit, raw)
}

// Save implements crawler.CheckpointStore.
func (s *CheckpointStore) Save(_ context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	return s.write(unit, records, false)
}

// Replace implements crawler.CheckpointStore.
func (s *CheckpointStore) Replace(_ context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	return s.write(unit, records, true)
}

func (s *CheckpointStore) write(unit crawler.SearchUnit, records []crawler.OfficerRecord, overwrite bool) error {
	if err := crawler.ValidateUnit(unit); err != nil {
		return err
	}
	raw, err := crawler.EncodeCheckpoint(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[unit]; ok && !overwrite {
		return fmt.Errorf("%w: %s", crawler.ErrCheckpointExists, unit)
	}
	s.data[unit] = raw
	s.saves++
	return nil
}

// List implements crawler.CheckpointStore; units come back sorted.
func (s *CheckpointStore) List(context.Context) ([]crawler.SearchUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	units := make([]crawler.SearchUnit, 0, len(s.data))
	for unit := range s.data {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units, nil
}
