package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prasenjit/antbee/internal/audit"
	"github.com/prasenjit/antbee/internal/models"
	"github.com/prasenjit/antbee/internal/parser"
	"github.com/prasenjit/antbee/internal/stats"
	"github.com/prasenjit/antbee/internal/storage"
)

const defaultLogLimit = 100

// pinger is implemented by stores backed by a database connection
type pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles admin API requests
type Handler struct {
	store          storage.Storage
	logs           audit.Reader
	statsCollector *stats.Collector
	parser         *parser.Parser
	logger         *slog.Logger

	// shadowed reports routes the router serves before the mock engine
	shadowed func(method, path string) bool
}

// NewHandler creates a new API handler. logs may be nil when no readable
// sink is configured.
func NewHandler(store storage.Storage, logs audit.Reader, statsCollector *stats.Collector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:          store,
		logs:           logs,
		statsCollector: statsCollector,
		parser:         parser.NewParser(),
		logger:         logger.With("component", "api"),
		shadowed:       func(string, string) bool { return false },
	}
}

// rejectShadowed answers 400 when an endpoint could never be reached
func (h *Handler) rejectShadowed(c *gin.Context, method, path string) bool {
	if !h.shadowed(method, path) {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Path %s %s is reserved by the server", method, path)})
	return true
}

// EndpointSummary is an endpoint with the size of its configuration
type EndpointSummary struct {
	*models.Endpoint
	ResponseCount int `json:"responseCount"`
	RuleCount     int `json:"ruleCount"`
}

// EndpointDetail is an endpoint with its variants and rules
type EndpointDetail struct {
	*models.Endpoint
	Responses []*models.ResponseVariant `json:"responses"`
	Rules     []*models.Rule            `json:"rules"`
}

// storeError maps a storage error to a response
func (h *Handler) storeError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("store operation failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListEndpoints returns all endpoints
func (h *Handler) ListEndpoints(c *gin.Context) {
	ctx := c.Request.Context()

	endpoints, err := h.store.ListEndpoints(ctx)
	if err != nil {
		h.storeError(c, err, "")
		return
	}

	result := make([]EndpointSummary, len(endpoints))
	for i, ep := range endpoints {
		variants, _ := h.store.ListResponseVariants(ctx, ep.ID)
		rules, _ := h.store.ListRules(ctx, ep.ID)
		result[i] = EndpointSummary{Endpoint: ep, ResponseCount: len(variants), RuleCount: len(rules)}
	}

	c.JSON(http.StatusOK, result)
}

// CreateEndpoint creates a new endpoint
func (h *Handler) CreateEndpoint(c *gin.Context) {
	var input models.EndpointInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.rejectShadowed(c, input.Method, input.Path) {
		return
	}

	now := time.Now()
	ep := &models.Endpoint{
		ID:          uuid.New().String(),
		Method:      input.Method,
		Path:        input.Path,
		Name:        input.Name,
		Description: input.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsActive != nil {
		ep.IsActive = *input.IsActive
	}

	if err := h.store.CreateEndpoint(c.Request.Context(), ep); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	h.logger.Info("endpoint created", "endpoint_id", ep.ID, "method", ep.Method, "path", ep.Path)
	c.JSON(http.StatusCreated, ep)
}

// GetEndpoint returns an endpoint with its responses and rules
func (h *Handler) GetEndpoint(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	ep, err := h.store.GetEndpoint(ctx, id)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	variants, err := h.store.ListResponseVariants(ctx, id)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}
	rules, err := h.store.ListRules(ctx, id)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, EndpointDetail{Endpoint: ep, Responses: variants, Rules: rules})
}

// UpdateEndpoint updates an endpoint
func (h *Handler) UpdateEndpoint(c *gin.Context) {
	ctx := c.Request.Context()

	ep, err := h.store.GetEndpoint(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	var update models.EndpointUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if update.Method != nil {
		ep.Method = *update.Method
	}
	if update.Path != nil {
		ep.Path = *update.Path
	}
	if update.Name != nil {
		ep.Name = *update.Name
	}
	if update.Description != nil {
		ep.Description = *update.Description
	}
	if update.IsActive != nil {
		ep.IsActive = *update.IsActive
	}
	if h.rejectShadowed(c, ep.Method, ep.Path) {
		return
	}
	ep.UpdatedAt = time.Now()

	if err := h.store.UpdateEndpoint(ctx, ep); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, ep)
}

// DeleteEndpoint deletes an endpoint with its responses and rules
func (h *Handler) DeleteEndpoint(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.DeleteEndpoint(c.Request.Context(), id); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}
	h.statsCollector.Forget(id)

	h.logger.Info("endpoint deleted", "endpoint_id", id)
	c.JSON(http.StatusOK, gin.H{"message": "Endpoint deleted"})
}

// ToggleEndpoint sets isActive from the body, or flips it without one
func (h *Handler) ToggleEndpoint(c *gin.Context) {
	ctx := c.Request.Context()

	ep, err := h.store.GetEndpoint(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	var input struct {
		IsActive *bool `json:"isActive"`
	}
	if err := c.ShouldBindJSON(&input); err != nil || input.IsActive == nil {
		ep.IsActive = !ep.IsActive
	} else {
		ep.IsActive = *input.IsActive
	}
	ep.UpdatedAt = time.Now()

	if err := h.store.UpdateEndpoint(ctx, ep); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"isActive": ep.IsActive})
}

// ListResponses returns all response variants of an endpoint
func (h *Handler) ListResponses(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.store.GetEndpoint(ctx, id); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	variants, err := h.store.ListResponseVariants(ctx, id)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, variants)
}

// CreateResponse creates a new response variant
func (h *Handler) CreateResponse(c *gin.Context) {
	endpointID := c.Param("id")

	var input models.ResponseVariantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	v := &models.ResponseVariant{
		ID:         uuid.New().String(),
		EndpointID: endpointID,
		Name:       input.Name,
		StatusCode: input.StatusCode,
		Headers:    input.Headers,
		Body:       input.Body,
		DelayMs:    input.DelayMs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if v.StatusCode == 0 {
		v.StatusCode = http.StatusOK
	}
	if v.Headers == nil {
		v.Headers = make(map[string]string)
	}

	if err := h.store.CreateResponseVariant(c.Request.Context(), v); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusCreated, v)
}

// GetResponse returns a single response variant
func (h *Handler) GetResponse(c *gin.Context) {
	v, err := h.store.GetResponseVariant(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Response not found")
		return
	}

	c.JSON(http.StatusOK, v)
}

// UpdateResponse updates a response variant
func (h *Handler) UpdateResponse(c *gin.Context) {
	ctx := c.Request.Context()

	v, err := h.store.GetResponseVariant(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Response not found")
		return
	}

	var update models.ResponseVariantUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if update.Name != nil {
		v.Name = *update.Name
	}
	if update.StatusCode != nil {
		v.StatusCode = *update.StatusCode
	}
	if update.Headers != nil {
		v.Headers = *update.Headers
	}
	if update.Body != nil {
		v.Body = update.Body
	}
	if update.DelayMs != nil {
		v.DelayMs = *update.DelayMs
	}
	v.UpdatedAt = time.Now()

	if err := h.store.UpdateResponseVariant(ctx, v); err != nil {
		h.storeError(c, err, "Response not found")
		return
	}

	c.JSON(http.StatusOK, v)
}

// DeleteResponse deletes a response variant
func (h *Handler) DeleteResponse(c *gin.Context) {
	if err := h.store.DeleteResponseVariant(c.Request.Context(), c.Param("id")); err != nil {
		h.storeError(c, err, "Response not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Response deleted"})
}

// ListRules returns an endpoint's rules in evaluation order
func (h *Handler) ListRules(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.store.GetEndpoint(ctx, id); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	rules, err := h.store.ListRules(ctx, id)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, rules)
}

// validateRule checks the parts of a rule the admin API can reject up
// front. Incomplete conditions are accepted and simply never match.
func (h *Handler) validateRule(ctx context.Context, endpointID string, cond models.Condition, responseID string) error {
	if cond.Type != "" && !contains(models.ValidConditionTypes(), cond.Type) {
		return fmt.Errorf("unknown condition type %q", cond.Type)
	}
	if cond.Operator != "" && !contains(models.ValidOperators(), cond.Operator) {
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
	if cond.ActionStatus != "" {
		if code, err := strconv.Atoi(cond.ActionStatus); err != nil || code < 100 || code > 599 {
			return fmt.Errorf("action_status %q is not a valid status code", cond.ActionStatus)
		}
	}
	if responseID == "" {
		return nil
	}

	v, err := h.store.GetResponseVariant(ctx, responseID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && v.EndpointID != endpointID) {
		return fmt.Errorf("response %s does not belong to endpoint %s", responseID, endpointID)
	}
	return err
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// CreateRule creates a new rule
func (h *Handler) CreateRule(c *gin.Context) {
	ctx := c.Request.Context()
	endpointID := c.Param("id")

	if _, err := h.store.GetEndpoint(ctx, endpointID); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	var input models.RuleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.validateRule(ctx, endpointID, input.Condition, input.ResponseID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	rule := &models.Rule{
		ID:         uuid.New().String(),
		EndpointID: endpointID,
		Priority:   input.Priority,
		Condition:  input.Condition,
		ResponseID: input.ResponseID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.store.CreateRule(ctx, rule); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// ReplaceRules saves an endpoint's whole rule set in the given order
func (h *Handler) ReplaceRules(c *gin.Context) {
	ctx := c.Request.Context()
	endpointID := c.Param("id")

	if _, err := h.store.GetEndpoint(ctx, endpointID); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	var inputs []models.RuleInput
	if err := c.ShouldBindJSON(&inputs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	rules := make([]*models.Rule, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		if err := h.validateRule(ctx, endpointID, input.Condition, input.ResponseID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("rule %d: %v", i, err)})
			return
		}

		id := input.ID
		if id == "" {
			id = uuid.New().String()
		}
		if err := h.checkRuleID(ctx, endpointID, id, seen); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("rule %d: %v", i, err)})
			return
		}
		rules = append(rules, &models.Rule{
			ID:         id,
			EndpointID: endpointID,
			Priority:   input.Priority,
			Condition:  input.Condition,
			ResponseID: input.ResponseID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := h.store.ReplaceRules(ctx, endpointID, rules); err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	saved, err := h.store.ListRules(ctx, endpointID)
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	c.JSON(http.StatusOK, saved)
}

// checkRuleID rejects an ID repeated in the same save or owned by another
// endpoint's rule
func (h *Handler) checkRuleID(ctx context.Context, endpointID, id string, seen map[string]bool) error {
	if seen[id] {
		return fmt.Errorf("id %s is listed more than once", id)
	}
	seen[id] = true

	existing, err := h.store.GetRule(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.EndpointID != endpointID:
		return fmt.Errorf("id %s belongs to another endpoint", id)
	}
	return nil
}

// GetRule returns a single rule
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.store.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Rule not found")
		return
	}

	c.JSON(http.StatusOK, rule)
}

// UpdateRule updates a rule
func (h *Handler) UpdateRule(c *gin.Context) {
	ctx := c.Request.Context()

	rule, err := h.store.GetRule(ctx, c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Rule not found")
		return
	}

	var update models.RuleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if update.Priority != nil {
		rule.Priority = *update.Priority
	}
	if update.Condition != nil {
		rule.Condition = *update.Condition
	}
	if update.ResponseID != nil {
		rule.ResponseID = *update.ResponseID
	}
	if err := h.validateRule(ctx, rule.EndpointID, rule.Condition, rule.ResponseID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.UpdatedAt = time.Now()

	if err := h.store.UpdateRule(ctx, rule); err != nil {
		h.storeError(c, err, "Rule not found")
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a rule
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.store.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		h.storeError(c, err, "Rule not found")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted"})
}

func (h *Handler) logsAvailable(c *gin.Context) bool {
	if h.logs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No readable request log configured"})
		return false
	}
	return true
}

// ListLogs returns request logs, newest first
func (h *Handler) ListLogs(c *gin.Context) {
	if !h.logsAvailable(c) {
		return
	}

	filter := &models.LogFilter{
		EndpointID: c.Query("endpointId"),
		Method:     c.Query("method"),
		Limit:      defaultLogLimit,
	}
	if s := c.Query("statusCode"); s != "" {
		code, err := strconv.Atoi(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "statusCode must be a number"})
			return
		}
		filter.StatusCode = code
	}
	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
			return
		}
		filter.Limit = limit
	}
	if s := c.Query("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
			return
		}
		filter.Since = since
	}

	logs, err := h.logs.ListLogs(c.Request.Context(), filter)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	if logs == nil {
		logs = []*models.RequestLog{}
	}

	c.JSON(http.StatusOK, logs)
}

// GetLog returns a single request log
func (h *Handler) GetLog(c *gin.Context) {
	if !h.logsAvailable(c) {
		return
	}

	log, err := h.logs.GetLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Log not found")
		return
	}

	c.JSON(http.StatusOK, log)
}

// ClearLogs deletes all request logs
func (h *Handler) ClearLogs(c *gin.Context) {
	if !h.logsAvailable(c) {
		return
	}

	if err := h.logs.ClearLogs(c.Request.Context()); err != nil {
		h.storeError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logs cleared"})
}

// GetGlobalStats returns global statistics
func (h *Handler) GetGlobalStats(c *gin.Context) {
	endpoints, err := h.store.ListEndpoints(c.Request.Context())
	if err != nil {
		h.storeError(c, err, "")
		return
	}

	active := 0
	for _, ep := range endpoints {
		if ep.IsActive {
			active++
		}
	}

	c.JSON(http.StatusOK, h.statsCollector.GetGlobalStats(active, len(endpoints)))
}

// GetEndpointStats returns statistics for an endpoint
func (h *Handler) GetEndpointStats(c *gin.Context) {
	ep, err := h.store.GetEndpoint(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err, "Endpoint not found")
		return
	}

	stat := h.statsCollector.GetEndpointStats(ep.ID)
	if stat == nil {
		stat = &models.EndpointStat{EndpointID: ep.ID, Method: ep.Method, Path: ep.Path}
	}

	c.JSON(http.StatusOK, stat)
}

// ResetStats resets all statistics
func (h *Handler) ResetStats(c *gin.Context) {
	h.statsCollector.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset"})
}

// ImportInput is the body of an OpenAPI import
type ImportInput struct {
	Content    string `json:"content" binding:"required"`
	PathPrefix string `json:"pathPrefix"`
}

// Route names a method and path pair
type Route struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ImportResult reports what an OpenAPI import created
type ImportResult struct {
	Title   string             `json:"title"`
	Version string             `json:"version"`
	Created []*models.Endpoint `json:"created"`
	Skipped []Route            `json:"skipped"`
}

// ImportOpenAPI creates endpoints from an OpenAPI 3 document. Routes that
// already exist are left untouched.
func (h *Handler) ImportOpenAPI(c *gin.Context) {
	ctx := c.Request.Context()

	var input ImportInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed, err := h.parser.Parse(input.Content, input.PathPrefix)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OpenAPI document: " + err.Error()})
		return
	}

	result := ImportResult{
		Title:   parsed.Title,
		Version: parsed.Version,
		Created: []*models.Endpoint{},
		Skipped: []Route{},
	}

	for _, imported := range parsed.Endpoints {
		ep := imported.Endpoint
		if h.shadowed(ep.Method, ep.Path) {
			result.Skipped = append(result.Skipped, Route{Method: ep.Method, Path: ep.Path})
			continue
		}
		if err := h.store.CreateEndpoint(ctx, ep); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				result.Skipped = append(result.Skipped, Route{Method: ep.Method, Path: ep.Path})
				continue
			}
			h.storeError(c, err, "")
			return
		}
		if err := h.store.CreateResponseVariant(ctx, imported.Variant); err != nil {
			h.storeError(c, err, "")
			return
		}
		result.Created = append(result.Created, ep)
	}

	h.logger.Info("openapi document imported",
		"title", result.Title,
		"created", len(result.Created),
		"skipped", len(result.Skipped),
	)
	c.JSON(http.StatusCreated, result)
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
