package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/storage"
)

func newLog(id, endpointID, method string, status int, at time.Time) *models.RequestLog {
	return &models.RequestLog{
		ID:         id,
		EndpointID: endpointID,
		Method:     method,
		Path:       "/users",
		StatusCode: status,
		Timestamp:  at,
	}
}

func TestNewMemorySink(t *testing.T) {
	tests := []struct {
		name        string
		maxLogs     int
		expectedMax int
	}{
		{"positive max", 500, 500},
		{"zero max defaults to 1000", 0, 1000},
		{"negative max defaults to 1000", -1, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemorySink(tt.maxLogs)
			if s.maxLogs != tt.expectedMax {
				t.Errorf("Expected maxLogs %d, got %d", tt.expectedMax, s.maxLogs)
			}
		})
	}
}

func TestMemorySink_MaxLimit(t *testing.T) {
	s := NewMemorySink(5)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.AppendLog(ctx, newLog(fmt.Sprintf("log-%d", i), "ep-1", "GET", 200, time.Now()))
	}

	logs, _ := s.ListLogs(ctx, nil)
	if len(logs) != 5 {
		t.Fatalf("Expected 5 logs (max limit), got %d", len(logs))
	}
	if logs[0].ID != "log-9" {
		t.Errorf("Expected newest log first, got %q", logs[0].ID)
	}
	if logs[4].ID != "log-5" {
		t.Errorf("Expected oldest kept log to be log-5, got %q", logs[4].ID)
	}
}

func TestMemorySink_Filters(t *testing.T) {
	s := NewMemorySink(100)
	ctx := context.Background()
	now := time.Now()

	s.AppendLog(ctx, newLog("a", "ep-1", "GET", 200, now.Add(-2*time.Hour)))
	s.AppendLog(ctx, newLog("b", "ep-1", "POST", 201, now.Add(-time.Hour)))
	s.AppendLog(ctx, newLog("c", "ep-2", "GET", 404, now))
	s.AppendLog(ctx, newLog("d", "ep-1", "GET", 200, now))

	tests := []struct {
		name     string
		filter   *models.LogFilter
		expected []string
	}{
		{"no filter", nil, []string{"d", "c", "b", "a"}},
		{"by endpoint", &models.LogFilter{EndpointID: "ep-1"}, []string{"d", "b", "a"}},
		{"by method", &models.LogFilter{Method: "GET"}, []string{"d", "c", "a"}},
		{"by status", &models.LogFilter{StatusCode: 404}, []string{"c"}},
		{"since", &models.LogFilter{Since: now.Add(-90 * time.Minute)}, []string{"d", "c", "b"}},
		{"limit", &models.LogFilter{Limit: 2}, []string{"d", "c"}},
		{"combined", &models.LogFilter{EndpointID: "ep-1", Method: "GET", Limit: 1}, []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := s.ListLogs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListLogs failed: %v", err)
			}
			if len(logs) != len(tt.expected) {
				t.Fatalf("Expected %d logs, got %d", len(tt.expected), len(logs))
			}
			for i, id := range tt.expected {
				if logs[i].ID != id {
					t.Errorf("Expected log %q at %d, got %q", id, i, logs[i].ID)
				}
			}
		})
	}
}

func TestMemorySink_GetLog(t *testing.T) {
	s := NewMemorySink(100)
	ctx := context.Background()
	s.AppendLog(ctx, newLog("log-1", "ep-1", "GET", 200, time.Now()))

	log, err := s.GetLog(ctx, "log-1")
	if err != nil {
		t.Fatalf("GetLog failed: %v", err)
	}
	if log.EndpointID != "ep-1" {
		t.Errorf("Expected endpoint 'ep-1', got %q", log.EndpointID)
	}

	if _, err := s.GetLog(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemorySink_ClearAndPrune(t *testing.T) {
	s := NewMemorySink(100)
	ctx := context.Background()
	now := time.Now()

	s.AppendLog(ctx, newLog("old", "ep-1", "GET", 200, now.Add(-48*time.Hour)))
	s.AppendLog(ctx, newLog("new", "ep-1", "GET", 200, now))

	removed, err := s.PruneBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 pruned log, got %d", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 log left, got %d", s.Len())
	}

	s.ClearLogs(ctx)
	if s.Len() != 0 {
		t.Errorf("Expected 0 logs after clear, got %d", s.Len())
	}
}

func TestMemorySink_Subscribe(t *testing.T) {
	s := NewMemorySink(100)

	id, ch := s.Subscribe()
	if id == "" {
		t.Error("Expected non-empty subscription ID")
	}
	if s.Subscribers() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", s.Subscribers())
	}

	s.AppendLog(context.Background(), newLog("log-1", "ep-1", "GET", 200, time.Now()))

	select {
	case log := <-ch:
		if log.ID != "log-1" {
			t.Errorf("Expected log-1, got %q", log.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected to receive the log")
	}

	s.Unsubscribe(id)
	if s.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers after unsubscribe, got %d", s.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed")
	}

	// Unsubscribe non-existent (should not panic)
	s.Unsubscribe("nonexistent")
}

func TestMemorySink_SlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewMemorySink(1000)
	_, _ = s.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			s.AppendLog(context.Background(), newLog(fmt.Sprint(i), "ep-1", "GET", 200, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected appends not to block on a full subscriber")
	}
}
