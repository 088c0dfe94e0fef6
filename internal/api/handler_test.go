package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/antbee/internal/audit"
	"github.com/prasenjit/antbee/internal/logging"
	"github.com/prasenjit/antbee/internal/metrics"
	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/proxy"
	"github.com/prasenjit/antbee/internal/stats"
	"github.com/prasenjit/antbee/internal/storage"
)

type testServer struct {
	store     *storage.MemoryStorage
	logs      *audit.MemorySink
	collector *stats.Collector
	handler   http.Handler
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStorage()
	logs := audit.NewMemorySink(100)
	collector := stats.NewCollector()
	engine := proxy.NewEngine(store, proxy.Options{Logger: logging.Nop()})

	router := NewRouter(store, engine, RouterOptions{
		Logs:        logs,
		Stats:       collector,
		Metrics:     metrics.NewCollector(nil),
		MetricsPath: "/metrics",
		Logger:      logging.Nop(),
	})

	return &testServer{store: store, logs: logs, collector: collector, handler: router.Handler()}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) createEndpoint(t *testing.T, method, path string) *models.Endpoint {
	t.Helper()
	w := s.do(t, "POST", "/_api/endpoints", map[string]any{"method": method, "path": path, "name": "test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var ep models.Endpoint
	json.Unmarshal(w.Body.Bytes(), &ep)
	return &ep
}

func (s *testServer) createResponse(t *testing.T, endpointID string, status int, body string) *models.ResponseVariant {
	t.Helper()
	w := s.do(t, "POST", "/_api/endpoints/"+endpointID+"/responses", map[string]any{
		"name":       "variant",
		"statusCode": status,
		"body":       json.RawMessage(body),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var v models.ResponseVariant
	json.Unmarshal(w.Body.Bytes(), &v)
	return &v
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(storage.NewMemoryStorage(), nil, stats.NewCollector(), nil)

	if h == nil {
		t.Fatal("Expected handler to be created")
	}
	if h.parser == nil {
		t.Error("Expected parser to be initialized")
	}
}

func TestListEndpoints_Empty(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, "GET", "/_api/endpoints", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var result []any
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result) != 0 {
		t.Errorf("Expected empty array, got %d items", len(result))
	}
}

func TestCreateEndpoint(t *testing.T) {
	s := setupTestServer(t)

	ep := s.createEndpoint(t, "GET", "/users")

	if ep.ID == "" {
		t.Error("Expected generated ID")
	}
	if !ep.IsActive {
		t.Error("Expected new endpoint to be active")
	}

	w := s.do(t, "GET", "/_api/endpoints", nil)
	var result []map[string]any
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result) != 1 {
		t.Fatalf("Expected 1 endpoint, got %d", len(result))
	}
	if result[0]["path"] != "/users" || result[0]["responseCount"] != float64(0) {
		t.Errorf("Unexpected summary: %v", result[0])
	}
}

func TestCreateEndpoint_Duplicate(t *testing.T) {
	s := setupTestServer(t)
	s.createEndpoint(t, "GET", "/users")

	w := s.do(t, "POST", "/_api/endpoints", map[string]any{"method": "GET", "path": "/users"})

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestCreateEndpoint_Invalid(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"unknown method", map[string]any{"method": "HEAD", "path": "/users"}},
		{"relative path", map[string]any{"method": "GET", "path": "users"}},
		{"missing path", map[string]any{"method": "GET"}},
		{"malformed json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/_api/endpoints", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestCreateEndpoint_ShadowedPaths(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"metrics route", "GET", "/metrics", http.StatusBadRequest},
		{"admin prefix", "GET", "/_api", http.StatusBadRequest},
		{"admin route", "POST", "/_api/anything", http.StatusBadRequest},
		{"metrics path with another method", "POST", "/metrics", http.StatusCreated},
		{"similar prefix", "GET", "/_apiary", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/_api/endpoints", map[string]any{"method": tt.method, "path": tt.path})
			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}

	ep := s.createEndpoint(t, "GET", "/users")
	if w := s.do(t, "PUT", "/_api/endpoints/"+ep.ID, map[string]any{"path": "/metrics"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 when moving onto the metrics route, got %d", w.Code)
	}
	if got, _ := s.store.GetEndpoint(context.Background(), ep.ID); got.Path != "/users" {
		t.Errorf("Expected path to stay /users, got %s", got.Path)
	}
}

func TestCreateEndpoint_ShadowedPathsWithMockPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStorage()
	engine := proxy.NewEngine(store, proxy.Options{PathPrefix: "/mock", Logger: logging.Nop()})
	router := NewRouter(store, engine, RouterOptions{
		Metrics:     metrics.NewCollector(nil),
		MetricsPath: "/metrics",
		MockPrefix:  "/mock",
		Logger:      logging.Nop(),
	})
	s := &testServer{store: store, handler: router.Handler()}

	// Behind a prefix the endpoint lives at /mock/metrics, which nothing shadows
	ep := s.createEndpoint(t, "GET", "/metrics")
	s.createResponse(t, ep.ID, 200, `{"mocked":true}`)

	w := s.do(t, "GET", "/mock/metrics", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"mocked":true}` {
		t.Errorf("Expected mocked response, got %d %s", w.Code, w.Body.String())
	}
}

func TestGetEndpoint(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	s.createResponse(t, ep.ID, 200, `{"ok":true}`)

	w := s.do(t, "GET", "/_api/endpoints/"+ep.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var detail struct {
		ID        string           `json:"id"`
		Responses []map[string]any `json:"responses"`
		Rules     []map[string]any `json:"rules"`
	}
	json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.ID != ep.ID || len(detail.Responses) != 1 || len(detail.Rules) != 0 {
		t.Errorf("Unexpected detail: %+v", detail)
	}

	w = s.do(t, "GET", "/_api/endpoints/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateEndpoint(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	s.createEndpoint(t, "GET", "/orders")

	w := s.do(t, "PUT", "/_api/endpoints/"+ep.ID, map[string]any{"name": "Users", "path": "/people"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var updated models.Endpoint
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Name != "Users" || updated.Path != "/people" {
		t.Errorf("Expected name and path updated, got %+v", updated)
	}

	w = s.do(t, "PUT", "/_api/endpoints/"+ep.ID, map[string]any{"path": "/orders"})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for a taken route, got %d", w.Code)
	}
}

func TestToggleEndpoint(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")

	w := s.do(t, "PUT", "/_api/endpoints/"+ep.ID+"/toggle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"isActive":false`) {
		t.Errorf("Expected endpoint flipped off, got %s", w.Body.String())
	}

	w = s.do(t, "PUT", "/_api/endpoints/"+ep.ID+"/toggle", map[string]any{"isActive": false})
	if !strings.Contains(w.Body.String(), `"isActive":false`) {
		t.Errorf("Expected explicit value kept, got %s", w.Body.String())
	}

	// A paused endpoint answers 503 on the mock surface
	w = s.do(t, "GET", "/users", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestDeleteEndpoint_Cascades(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	v := s.createResponse(t, ep.ID, 200, `{}`)
	w := s.do(t, "POST", "/_api/endpoints/"+ep.ID+"/rules", map[string]any{
		"condition":  map[string]any{"type": "query", "key": "a", "operator": "exists"},
		"responseId": v.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var rule models.Rule
	json.Unmarshal(w.Body.Bytes(), &rule)

	w = s.do(t, "DELETE", "/_api/endpoints/"+ep.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if w := s.do(t, "GET", "/_api/responses/"+v.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected response to be deleted, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/_api/rules/"+rule.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected rule to be deleted, got %d", w.Code)
	}
	if w := s.do(t, "DELETE", "/_api/endpoints/"+ep.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

func TestResponses_CRUD(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")

	v := s.createResponse(t, ep.ID, 0, `{"users":[]}`)
	if v.StatusCode != 200 {
		t.Errorf("Expected default status 200, got %d", v.StatusCode)
	}

	w := s.do(t, "PUT", "/_api/responses/"+v.ID, map[string]any{"statusCode": 202, "delayMs": 10})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var updated models.ResponseVariant
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.StatusCode != 202 || updated.DelayMs != 10 || string(updated.Body) != `{"users":[]}` {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	w = s.do(t, "PUT", "/_api/responses/"+v.ID, map[string]any{"statusCode": 99})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid status, got %d", w.Code)
	}

	w = s.do(t, "GET", "/_api/endpoints/"+ep.ID+"/responses", nil)
	var list []models.ResponseVariant
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 response, got %d", len(list))
	}

	if w := s.do(t, "DELETE", "/_api/responses/"+v.ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := s.do(t, "POST", "/_api/endpoints/missing/responses", map[string]any{"statusCode": 200}); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown endpoint, got %d", w.Code)
	}
}

func TestCreateRule_Validation(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	other := s.createEndpoint(t, "GET", "/orders")
	foreign := s.createResponse(t, other.ID, 200, `{}`)

	tests := []struct {
		name         string
		body         map[string]any
		expectedCode int
	}{
		{
			name:         "valid",
			body:         map[string]any{"condition": map[string]any{"type": "header", "key": "x", "operator": "exists", "action_status": "500"}},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "incomplete condition accepted",
			body:         map[string]any{"condition": map[string]any{"type": "header"}},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "unknown type",
			body:         map[string]any{"condition": map[string]any{"type": "cookie", "key": "x", "operator": "exists"}},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown operator",
			body:         map[string]any{"condition": map[string]any{"type": "query", "key": "x", "operator": "matches"}},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid action status",
			body:         map[string]any{"condition": map[string]any{"type": "query", "key": "x", "operator": "exists", "action_status": "abc"}},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "response of another endpoint",
			body:         map[string]any{"condition": map[string]any{"type": "query", "key": "x", "operator": "exists"}, "responseId": foreign.ID},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown response",
			body:         map[string]any{"condition": map[string]any{"type": "query", "key": "x", "operator": "exists"}, "responseId": "nope"},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, "POST", "/_api/endpoints/"+ep.ID+"/rules", tt.body)
			if w.Code != tt.expectedCode {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestReplaceRules(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/ping")
	s.createResponse(t, ep.ID, 200, `{"ok":true}`)
	s.do(t, "POST", "/_api/endpoints/"+ep.ID+"/rules", map[string]any{
		"condition": map[string]any{"type": "query", "key": "old", "operator": "exists", "action_status": "418"},
	})

	w := s.do(t, "PUT", "/_api/endpoints/"+ep.ID+"/rules", []map[string]any{
		{"priority": 0, "condition": map[string]any{"type": "query", "key": "fail", "operator": "exists", "action_status": "500"}},
		{"priority": 1, "condition": map[string]any{"type": "header", "key": "x-slow", "operator": "exists", "action_status": "504"}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var rules []models.Rule
	json.Unmarshal(w.Body.Bytes(), &rules)
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if rules[0].Condition.Key != "fail" || rules[1].Condition.Key != "x-slow" {
		t.Errorf("Expected rules in saved order, got %s, %s", rules[0].Condition.Key, rules[1].Condition.Key)
	}

	// The replaced rule set drives the mock surface
	if w := s.do(t, "GET", "/ping?old=1", nil); w.Code != http.StatusOK {
		t.Errorf("Expected old rule gone, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/ping?fail=1", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected new rule applied, got %d", w.Code)
	}

	w = s.do(t, "PUT", "/_api/endpoints/"+ep.ID+"/rules", []map[string]any{
		{"condition": map[string]any{"type": "query", "key": "x", "operator": "exists"}, "responseId": "nope"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid rule, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/ping?fail=1", nil); w.Code != http.StatusInternalServerError {
		t.Error("Expected rejected bulk save to leave rules unchanged")
	}
}

func TestReplaceRules_RuleIDs(t *testing.T) {
	s := setupTestServer(t)
	a := s.createEndpoint(t, "GET", "/a")
	b := s.createEndpoint(t, "GET", "/b")

	w := s.do(t, "POST", "/_api/endpoints/"+b.ID+"/rules", map[string]any{
		"condition": map[string]any{"type": "query", "key": "x", "operator": "exists", "action_status": "418"},
	})
	var owned models.Rule
	json.Unmarshal(w.Body.Bytes(), &owned)

	cond := map[string]any{"type": "query", "key": "y", "operator": "exists"}
	tests := []struct {
		name  string
		rules []map[string]any
	}{
		{"another endpoint's rule", []map[string]any{{"id": owned.ID, "condition": cond}}},
		{"duplicate ids", []map[string]any{{"id": "dup", "condition": cond}, {"id": "dup", "condition": cond}}},
	}

	for _, tt := range tests {
		if w := s.do(t, "PUT", "/_api/endpoints/"+a.ID+"/rules", tt.rules); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", tt.name, w.Code)
		}
	}

	rules, _ := s.store.ListRules(context.Background(), b.ID)
	if len(rules) != 1 || rules[0].ID != owned.ID {
		t.Errorf("Expected endpoint b to keep its rule, got %v", rules)
	}
	if rules, _ := s.store.ListRules(context.Background(), a.ID); len(rules) != 0 {
		t.Errorf("Expected endpoint a to stay empty, got %d rules", len(rules))
	}
}

func TestUpdateAndDeleteRule(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	w := s.do(t, "POST", "/_api/endpoints/"+ep.ID+"/rules", map[string]any{
		"condition": map[string]any{"type": "query", "key": "a", "operator": "exists"},
	})
	var rule models.Rule
	json.Unmarshal(w.Body.Bytes(), &rule)

	w = s.do(t, "PUT", "/_api/rules/"+rule.ID, map[string]any{"priority": 5})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var updated models.Rule
	json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Priority != 5 || updated.Condition.Key != "a" {
		t.Errorf("Unexpected update result: %+v", updated)
	}

	if w := s.do(t, "DELETE", "/_api/rules/"+rule.ID, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/_api/rules/"+rule.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestLogs(t *testing.T) {
	s := setupTestServer(t)
	ctx := context.Background()
	now := time.Now()
	s.logs.AppendLog(ctx, &models.RequestLog{ID: "l1", EndpointID: "ep-1", Method: "GET", StatusCode: 200, Timestamp: now})
	s.logs.AppendLog(ctx, &models.RequestLog{ID: "l2", EndpointID: "ep-2", Method: "POST", StatusCode: 500, Timestamp: now})

	w := s.do(t, "GET", "/_api/logs?endpointId=ep-2", nil)
	var logs []models.RequestLog
	json.Unmarshal(w.Body.Bytes(), &logs)
	if len(logs) != 1 || logs[0].ID != "l2" {
		t.Errorf("Expected only l2, got %+v", logs)
	}

	w = s.do(t, "GET", "/_api/logs?limit=1", nil)
	json.Unmarshal(w.Body.Bytes(), &logs)
	if len(logs) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(logs))
	}

	if w := s.do(t, "GET", "/_api/logs?limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/_api/logs/l1", nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w := s.do(t, "GET", "/_api/logs/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	s.do(t, "DELETE", "/_api/logs", nil)
	if s.logs.Len() != 0 {
		t.Errorf("Expected logs cleared, got %d", s.logs.Len())
	}
}

func TestLogs_NoReader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := NewRouter(storage.NewMemoryStorage(), http.NotFoundHandler(), RouterOptions{Logger: logging.Nop()})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/_api/logs", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestStats(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/users")
	s.createEndpoint(t, "GET", "/orders")
	s.do(t, "PUT", "/_api/endpoints/"+ep.ID+"/toggle", nil)

	s.collector.RecordRequest(ep.ID, "GET", "/users", 200, 10*time.Millisecond, time.Time{})
	s.collector.RecordRequest(ep.ID, "GET", "/users", 404, 10*time.Millisecond, time.Time{})

	w := s.do(t, "GET", "/_api/stats", nil)
	var global models.GlobalStats
	json.Unmarshal(w.Body.Bytes(), &global)
	if global.TotalRequests != 2 || global.ErrorRate != 50 {
		t.Errorf("Expected 2 requests at 50%% errors, got %d at %v", global.TotalRequests, global.ErrorRate)
	}
	if global.ActiveEndpoints != 1 || global.TotalEndpoints != 2 {
		t.Errorf("Expected 1 of 2 endpoints active, got %d of %d", global.ActiveEndpoints, global.TotalEndpoints)
	}

	w = s.do(t, "GET", "/_api/stats/endpoints/"+ep.ID, nil)
	var stat models.EndpointStat
	json.Unmarshal(w.Body.Bytes(), &stat)
	if stat.TotalRequests != 2 || stat.TotalErrors != 1 {
		t.Errorf("Unexpected endpoint stat: %+v", stat)
	}

	s.do(t, "POST", "/_api/stats/reset", nil)
	w = s.do(t, "GET", "/_api/stats/endpoints/"+ep.ID, nil)
	json.Unmarshal(w.Body.Bytes(), &stat)
	if stat.TotalRequests != 0 || stat.Path != "/users" {
		t.Errorf("Expected empty stat after reset, got %+v", stat)
	}
}

func TestImportOpenAPI(t *testing.T) {
	s := setupTestServer(t)
	s.createEndpoint(t, "GET", "/api/users")

	doc := `
openapi: 3.0.0
info:
  title: Users
  version: 2.0.0
paths:
  /users:
    get:
      responses:
        '200':
          description: OK
    post:
      responses:
        '201':
          description: Created
          content:
            application/json:
              example:
                id: 7
`

	w := s.do(t, "POST", "/_api/import/openapi", map[string]any{"content": doc, "pathPrefix": "/api"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var result ImportResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if result.Title != "Users" || len(result.Created) != 1 || len(result.Skipped) != 1 {
		t.Fatalf("Unexpected import result: %+v", result)
	}
	if result.Skipped[0] != (Route{Method: "GET", Path: "/api/users"}) {
		t.Errorf("Expected existing GET route skipped, got %+v", result.Skipped[0])
	}

	// The imported endpoint serves its example right away
	w = s.do(t, "POST", "/api/users", "{}")
	if w.Code != http.StatusCreated || w.Body.String() != `{"id":7}` {
		t.Errorf("Expected imported example, got %d %s", w.Code, w.Body.String())
	}

	if w := s.do(t, "POST", "/_api/import/openapi", map[string]any{"content": "not: [valid"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid document, got %d", w.Code)
	}
}

type failingPingStore struct {
	*storage.MemoryStorage
}

func (failingPingStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, "GET", "/_api/health", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("Expected healthy, got %d %s", w.Code, w.Body.String())
	}

	gin.SetMode(gin.TestMode)
	router := NewRouter(failingPingStore{storage.NewMemoryStorage()}, http.NotFoundHandler(), RouterOptions{Logger: logging.Nop()})
	w = httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/_api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when the store is down, got %d", w.Code)
	}
}

func TestRouter_MockFallthrough(t *testing.T) {
	s := setupTestServer(t)
	ep := s.createEndpoint(t, "GET", "/ping")
	s.createResponse(t, ep.ID, 200, `{"ok":true}`)

	w := s.do(t, "GET", "/ping", nil)
	if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
		t.Errorf("Expected mock response, got %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Expected no CORS headers on mock responses")
	}

	w = s.do(t, "GET", "/nothing", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Endpoint not found") {
		t.Errorf("Expected mock 404, got %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, "GET", "/_api/unknown", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Unknown admin route") {
		t.Errorf("Expected admin 404, got %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, "OPTIONS", "/_api/endpoints", nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS headers on admin preflight")
	}
}

func TestRouter_Metrics(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, "GET", "/metrics", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("Expected Go runtime metrics in the exposition")
	}
}
