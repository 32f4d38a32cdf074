package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/callout/models"
)

// MemoryStore keeps challenge history in process. It is the default store and
// is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.ChallengeRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordChallenge(_ context.Context, rec models.ChallengeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) GetPlayerStats(_ context.Context, nickname string) (*models.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var row statsRow
	for _, rec := range m.records {
		if rec.Challenger == nickname {
			row.Issued++
		}
		if rec.Challenged != nickname {
			continue
		}
		row.Challenged++
		switch rec.Outcome {
		case models.OutcomeSuccess:
			row.Completed++
		case models.OutcomeFailure:
			row.Failed++
		}
	}
	return row.toStats(nickname)
}

// Records returns a copy of everything recorded so far.
func (m *MemoryStore) Records() []models.ChallengeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ChallengeRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *MemoryStore) Close() error {
	return nil
}
