// Package audit records the outcome of every resolved mock request and
// keeps the resulting request logs queryable.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/prasenjit/antbee/internal/models"
)

// Sink receives request logs
type Sink interface {
	AppendLog(ctx context.Context, log *models.RequestLog) error
}

// Reader serves request logs back to the admin API
type Reader interface {
	ListLogs(ctx context.Context, filter *models.LogFilter) ([]*models.RequestLog, error)
	GetLog(ctx context.Context, id string) (*models.RequestLog, error)
	ClearLogs(ctx context.Context) error
}

// Pruner deletes logs older than a cutoff
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NamedSink labels a sink for logging and metrics
type NamedSink struct {
	Name string
	Sink Sink
}

// MultiSink is the set of sinks every request log is written to
type MultiSink []NamedSink

// PruneBefore prunes every sink that supports it and sums the deletions
func (m MultiSink) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, s := range m {
		p, ok := s.Sink.(Pruner)
		if !ok {
			continue
		}
		n, err := p.PruneBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, &SinkError{Sink: s.Name, Err: err})
			continue
		}
		total += n
	}
	return total, errors.Join(errs...)
}

// SinkError reports which sink failed
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return "audit sink " + e.Sink + ": " + e.Err.Error()
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
