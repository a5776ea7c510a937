package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLog struct {
	mu      sync.RWMutex
	records map[string][]Record
}

// NewInMemory creates a concurrency-safe in-memory history.
func NewInMemory() Log {
	return &inMemoryLog{records: make(map[string][]Record)}
}

func (l *inMemoryLog) Append(_ context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[record.UserID] = append(l.records[record.UserID], record)
	return nil
}

func (l *inMemoryLog) ForUser(_ context.Context, userID string) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records[userID]))
	copy(out, l.records[userID])
	return out, nil
}
