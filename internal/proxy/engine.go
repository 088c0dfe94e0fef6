package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prasenjit/antbee/internal/audit"
	"github.com/prasenjit/antbee/internal/condition"
	"github.com/prasenjit/antbee/internal/metrics"
	"github.com/prasenjit/antbee/internal/resolver"
	"github.com/prasenjit/antbee/internal/storage"
)

const defaultMaxBodyBytes = 10 << 20

// Recorder receives the outcome of every resolved request
type Recorder interface {
	Record(e audit.Entry)
}

// Options configures an Engine
type Options struct {
	PathPrefix   string // Stripped from the request path before lookup
	MaxBodyBytes int64
	Recorder     Recorder
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Engine serves mock responses for registered endpoints
type Engine struct {
	store        storage.ConfigStore
	recorder     Recorder
	metrics      *metrics.Collector
	logger       *slog.Logger
	pathPrefix   string
	maxBodyBytes int64
}

// NewEngine creates a new mock engine reading configuration from store
func NewEngine(store storage.ConfigStore, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Engine{
		store:        store,
		recorder:     opts.Recorder,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "proxy"),
		pathPrefix:   strings.TrimSuffix(opts.PathPrefix, "/"),
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Handler returns an http.Handler for the engine
func (e *Engine) Handler() http.Handler {
	return http.HandlerFunc(e.ServeHTTP)
}

// ServeHTTP resolves and writes the mock response for a request
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	mockPath, ok := e.mockPath(r.URL.Path)
	if !ok {
		e.notFound(w, r.Method, r.URL.Path, start)
		return
	}

	// The body is read once and shared by rule evaluation and the audit log
	body, err := e.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Failed to read request body"})
		return
	}

	endpoint, err := e.store.FindEndpoint(ctx, r.Method, mockPath)
	if errors.Is(err, storage.ErrNotFound) {
		e.notFound(w, r.Method, mockPath, start)
		return
	}
	if err != nil {
		e.storeFailure(w, r.Method, mockPath, start, err)
		return
	}

	if !endpoint.IsActive {
		e.logger.Debug("endpoint is paused", "endpoint_id", endpoint.ID, "method", r.Method, "path", mockPath)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Endpoint is paused"})
		e.metrics.RecordRequest(r.Method, metrics.OutcomePaused, http.StatusServiceUnavailable, time.Since(start))
		return
	}

	rules, err := e.store.ListRules(ctx, endpoint.ID)
	if err != nil {
		e.storeFailure(w, r.Method, mockPath, start, err)
		return
	}
	variants, err := e.store.ListResponseVariants(ctx, endpoint.ID)
	if err != nil {
		e.storeFailure(w, r.Method, mockPath, start, err)
		return
	}

	query := r.URL.Query()
	res := resolver.Resolve(rules, variants, &condition.RequestData{
		Headers:     r.Header,
		QueryParams: query,
		Body:        body,
	})
	if res.BodyParseErr != nil {
		e.metrics.RecordBodyParseFailure()
		e.logger.Debug("request body is not JSON, body rules see no values",
			"endpoint_id", endpoint.ID,
			"error", res.BodyParseErr,
		)
	}

	outcome := metrics.OutcomeDefault
	switch {
	case len(variants) == 0:
		outcome = metrics.OutcomeEmpty
	case res.MatchedRuleID != "":
		outcome = metrics.OutcomeRule
	}

	var status int
	composed, err := Compose(ctx, res)
	if err != nil {
		// Client went away during the delay; the outcome is still logged
		e.logger.Debug("client disconnected during delay", "endpoint_id", endpoint.ID, "error", err)
		status = res.Selected.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
	} else {
		status = composed.Status
		if err := composed.Write(w); err != nil {
			e.logger.Debug("failed to write mock response", "endpoint_id", endpoint.ID, "error", err)
		}
	}

	e.metrics.RecordRequest(r.Method, outcome, status, time.Since(start))

	if e.recorder != nil {
		e.recorder.Record(audit.Entry{
			Endpoint:      endpoint,
			Method:        r.Method,
			Path:          mockPath,
			Headers:       r.Header.Clone(),
			Query:         query,
			Body:          body,
			StatusCode:    status,
			MatchedRuleID: res.MatchedRuleID,
			Start:         start,
		})
	}
}

// mockPath strips the configured prefix. Requests outside it never match.
func (e *Engine) mockPath(p string) (string, bool) {
	if e.pathPrefix == "" {
		return p, true
	}
	if p != e.pathPrefix && !strings.HasPrefix(p, e.pathPrefix+"/") {
		return "", false
	}
	p = strings.TrimPrefix(p, e.pathPrefix)
	if p == "" {
		p = "/"
	}
	return p, true
}

func (e *Engine) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBodyBytes))
}

func (e *Engine) notFound(w http.ResponseWriter, method, path string, start time.Time) {
	e.logger.Debug("no endpoint registered", "method", method, "path", path)
	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":  "Endpoint not found",
		"path":   path,
		"method": method,
	})
	e.metrics.RecordRequest(method, metrics.OutcomeNotFound, http.StatusNotFound, time.Since(start))
}

func (e *Engine) storeFailure(w http.ResponseWriter, method, path string, start time.Time, err error) {
	e.logger.Error("configuration store failed", "method", method, "path", path, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Configuration store unavailable"})
	e.metrics.RecordRequest(method, metrics.OutcomeError, http.StatusInternalServerError, time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
