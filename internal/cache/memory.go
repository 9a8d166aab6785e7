package cache

import (
	"context"
	"slices"
	"strings"
	"sync"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/models"
)

// MemoryStore keeps everything in process. It backs the "memory" store backend and the tests.
type MemoryStore struct {
	mu         sync.RWMutex
	current    map[string]models.Reading
	history    map[string][]models.RawRecord // ascending by timestamp
	thresholds map[string]models.Threshold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current:    make(map[string]models.Reading),
		history:    make(map[string][]models.RawRecord),
		thresholds: make(map[string]models.Threshold),
	}
}

func (s *MemoryStore) Current(_ context.Context, ids []string) (map[string]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Reading, len(ids))
	for _, id := range ids {
		if r, ok := s.current[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (s *MemoryStore) Range(_ context.Context, id, startKey, endKey string) ([]models.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if startKey > endKey {
		return []models.RawRecord{}, nil
	}
	return analytics.FilterRange(s.history[id], startKey, endKey), nil
}

func (s *MemoryStore) LastN(_ context.Context, id string, n int) ([]models.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[id]
	if n <= 0 {
		return []models.RawRecord{}, nil
	}
	if n > len(records) {
		n = len(records)
	}
	result := make([]models.RawRecord, n)
	copy(result, records[len(records)-n:])
	return result, nil
}

func (s *MemoryStore) ByState(_ context.Context, id, state string) ([]models.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RawRecord
	for _, r := range s.history[id] {
		if r.State == state {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Threshold(_ context.Context, id string) (models.Threshold, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.thresholds[id]
	return t, ok, nil
}

func (s *MemoryStore) SetThreshold(_ context.Context, id string, t models.Threshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds[id] = t
	return nil
}

// Record stores reading as current and inserts it into the history, replacing an entry with the same
// timestamp.
func (s *MemoryStore) Record(_ context.Context, id string, reading models.Reading, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current[id] = reading
	entry := models.RawRecord{
		Timestamp: reading.Timestamp,
		Current:   reading.Current,
		Power:     reading.Power,
		State:     state,
	}

	records := s.history[id]
	i, found := slices.BinarySearchFunc(records, entry.Timestamp, func(r models.RawRecord, ts string) int {
		return strings.Compare(r.Timestamp, ts)
	})
	if found {
		records[i] = entry
	} else {
		records = slices.Insert(records, i, entry)
	}
	s.history[id] = records
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
