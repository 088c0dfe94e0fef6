package models

import (
	"encoding/json"
	"time"
)

// RequestLog is the outcome record written to the audit sink for every
// resolved mock request
type RequestLog struct {
	ID            string            `json:"id"`
	EndpointID    string            `json:"endpointId"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	StatusCode    int               `json:"statusCode"`
	DurationMs    int64             `json:"durationMs"`
	Headers       map[string]string `json:"headers"`
	Body          json.RawMessage   `json:"body,omitempty"`
	QueryParams   map[string]string `json:"queryParams"`
	MatchedRuleID string            `json:"matchedRuleId,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// LogFilter represents filters for querying request logs
type LogFilter struct {
	EndpointID string    `json:"endpointId,omitempty"`
	Method     string    `json:"method,omitempty"`
	StatusCode int       `json:"statusCode,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Matches reports whether the log passes the filter
func (f *LogFilter) Matches(log *RequestLog) bool {
	if f == nil {
		return true
	}
	if f.EndpointID != "" && log.EndpointID != f.EndpointID {
		return false
	}
	if f.Method != "" && log.Method != f.Method {
		return false
	}
	if f.StatusCode != 0 && log.StatusCode != f.StatusCode {
		return false
	}
	if !f.Since.IsZero() && log.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
