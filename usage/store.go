package usage

import (
	"context"
	"sync"
)

// Record tracks how many transcription-milliseconds a user may still consume
// and how many it has consumed in total. RemainingMs is clamped at zero;
// TotalUsedMs never decreases.
type Record struct {
	RemainingMs int64 `json:"remainingMs"`
	TotalUsedMs int64 `json:"totalUsedMs"`
}

// Store is the usage ledger consulted at admission and updated after every
// completed transcription. Both methods may suspend, so they take a context.
type Store interface {
	// GetUsage returns the record for userID. An unknown user reads as the
	// zero record.
	GetUsage(ctx context.Context, userID string) (Record, error)
	// UpdateUsage charges usedMs against userID's budget and returns the
	// resulting record.
	UpdateUsage(ctx context.Context, userID string, usedMs int64) (Record, error)
}

// InMemoryStore keeps usage records in process memory. The set of known
// users is fixed at construction.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func NewInMemoryStore(budgetMs int64, userIDs []string) *InMemoryStore {
	records := make(map[string]*Record, len(userIDs))
	for _, userID := range userIDs {
		records[userID] = &Record{RemainingMs: budgetMs}
	}
	return &InMemoryStore{records: records}
}

func (s *InMemoryStore) GetUsage(ctx context.Context, userID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		return Record{}, nil
	}
	return *record, nil
}

func (s *InMemoryStore) UpdateUsage(ctx context.Context, userID string, usedMs int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[userID]
	if !ok {
		record = &Record{}
		s.records[userID] = record
	}
	record.TotalUsedMs += usedMs
	record.RemainingMs -= usedMs
	if record.RemainingMs < 0 {
		record.RemainingMs = 0
	}
	return *record, nil
}

// Reset overwrites every known user's record to a fresh budget. Test hook.
func (s *InMemoryStore) Reset(limitMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID := range s.records {
		s.records[userID] = &Record{RemainingMs: limitMs}
	}
}
