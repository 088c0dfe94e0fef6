package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/prasenjit/antbee/internal/metrics"
	"github.com/prasenjit/antbee/internal/models"
)

const (
	defaultWriteTimeout = 5 * time.Second
	rawBodyLimit        = 1000
)

// Entry is everything known about a served mock request
type Entry struct {
	Endpoint      *models.Endpoint
	Method        string
	Path          string
	Headers       http.Header
	Query         url.Values
	Body          []byte // Buffered once at request entry
	StatusCode    int
	MatchedRuleID string
	Start         time.Time
}

// Observer is notified of every recorded log, before the sinks are written
type Observer interface {
	Observe(log *models.RequestLog)
}

// RecorderOptions configures a Recorder
type RecorderOptions struct {
	WriteTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Collector
	Observers    []Observer
}

// Recorder turns served requests into request logs and writes them to the
// sinks in the background. Sink failures are logged and counted, never
// returned.
type Recorder struct {
	sinks     MultiSink
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Collector
	observers []Observer
	now       func() time.Time

	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewRecorder creates a recorder writing to sinks
func NewRecorder(sinks MultiSink, opts RecorderOptions) *Recorder {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Recorder{
		sinks:     sinks,
		timeout:   opts.WriteTimeout,
		logger:    opts.Logger.With("component", "audit.recorder"),
		metrics:   opts.Metrics,
		observers: opts.Observers,
		now:       time.Now,
	}
}

// Record builds the log for e and writes it asynchronously
func (r *Recorder) Record(e Entry) {
	if r.closed.Load() {
		r.logger.Warn("recorder closed, dropping request log", "path", e.Path)
		return
	}

	log := r.build(e)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(log)
	}()
}

func (r *Recorder) build(e Entry) *models.RequestLog {
	now := r.now()

	var endpointID string
	if e.Endpoint != nil {
		endpointID = e.Endpoint.ID
	}

	return &models.RequestLog{
		ID:            uuid.New().String(),
		EndpointID:    endpointID,
		Method:        e.Method,
		Path:          e.Path,
		StatusCode:    e.StatusCode,
		DurationMs:    durationMs(e.Start, now),
		Headers:       headerSnapshot(e.Headers),
		Body:          logBody(e.Body),
		QueryParams:   querySnapshot(e.Query),
		MatchedRuleID: e.MatchedRuleID,
		Timestamp:     now,
	}
}

func (r *Recorder) write(log *models.RequestLog) {
	for _, o := range r.observers {
		o.Observe(log)
	}

	// Detached from the request so a client disconnect does not cancel it
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Sink.AppendLog(ctx, log); err != nil {
			r.metrics.RecordAuditFailure(s.Name)
			r.logger.Error("failed to write request log",
				"sink", s.Name,
				"endpoint_id", log.EndpointID,
				"error", err,
			)
			continue
		}
		r.metrics.RecordAuditWrite(s.Name)
	}
}

// Close waits for in-flight writes. Later records are dropped.
func (r *Recorder) Close() {
	r.closed.Store(true)
	r.wg.Wait()
}

// durationMs is the rounded wall clock time since start, at least 1ms
func durationMs(start, end time.Time) int64 {
	if start.IsZero() {
		return 1
	}
	ms := int64(math.Round(float64(end.Sub(start)) / float64(time.Millisecond)))
	if ms < 1 {
		return 1
	}
	return ms
}

// headerSnapshot lower-cases names and joins repeated values
func headerSnapshot(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

// querySnapshot keeps the first value of each parameter
func querySnapshot(q url.Values) map[string]string {
	out := make(map[string]string, len(q))
	for name, values := range q {
		if len(values) > 0 {
			out[name] = values[0]
		}
	}
	return out
}

// logBody stores JSON bodies as-is and anything else truncated under "raw".
// An empty body is null.
func logBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.Bytes()
		}
	}

	text := []rune(string(raw))
	if len(text) > rawBodyLimit {
		text = text[:rawBodyLimit]
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(text)})
	return wrapped
}
