package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/storage"
)

// MemorySink keeps the most recent request logs in memory and pushes new
// ones to live subscribers
type MemorySink struct {
	mu          sync.RWMutex
	logs        []*models.RequestLog
	maxLogs     int
	subscribers map[string]chan *models.RequestLog
}

// NewMemorySink creates a sink holding at most maxLogs records
func NewMemorySink(maxLogs int) *MemorySink {
	if maxLogs <= 0 {
		maxLogs = 1000
	}

	return &MemorySink{
		logs:        make([]*models.RequestLog, 0),
		maxLogs:     maxLogs,
		subscribers: make(map[string]chan *models.RequestLog),
	}
}

// AppendLog stores a log and notifies subscribers
func (s *MemorySink) AppendLog(_ context.Context, log *models.RequestLog) error {
	s.mu.Lock()

	s.logs = append(s.logs, log)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}

	s.mu.Unlock()

	// Unsubscribe closes channels under the write lock
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- log:
		default:
			// Slow subscriber, drop
		}
	}
	return nil
}

// ListLogs returns logs matching the filter, newest first
func (s *MemorySink) ListLogs(_ context.Context, filter *models.LogFilter) ([]*models.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RequestLog, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		log := s.logs[i]
		if !filter.Matches(log) {
			continue
		}

		result = append(result, log)

		if filter != nil && filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}

	return result, nil
}

// GetLog returns a single log by ID
func (s *MemorySink) GetLog(_ context.Context, id string) (*models.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, log := range s.logs {
		if log.ID == id {
			return log, nil
		}
	}

	return nil, fmt.Errorf("request log %s: %w", id, storage.ErrNotFound)
}

// ClearLogs removes all logs
func (s *MemorySink) ClearLogs(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make([]*models.RequestLog, 0)
	return nil
}

// PruneBefore drops logs older than cutoff
func (s *MemorySink) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*models.RequestLog, 0, len(s.logs))
	for _, log := range s.logs {
		if !log.Timestamp.Before(cutoff) {
			kept = append(kept, log)
		}
	}
	removed := int64(len(s.logs) - len(kept))
	s.logs = kept
	return removed, nil
}

// Subscribe creates a subscription for live logs
func (s *MemorySink) Subscribe() (string, chan *models.RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	ch := make(chan *models.RequestLog, 100)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscription
func (s *MemorySink) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Len returns the number of stored logs
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// Subscribers returns the number of live subscriptions
func (s *MemorySink) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
