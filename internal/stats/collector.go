package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/prasenjit/antbee/internal/models"
)

const hourKeyFormat = "2006-01-02-15"

// Collector aggregates mock traffic analytics in memory
type Collector struct {
	mu             sync.RWMutex
	startTime      time.Time
	endpoints      map[string]*models.AtomicEndpointStat // endpointID -> stats
	recentErrors   []models.ErrorStat
	hourlyStats    map[string]*hourlyCounter // "YYYY-MM-DD-HH" -> counter
	maxErrors      int
	maxHourlySlots int
	now            func() time.Time
}

type hourlyCounter struct {
	Hour     string
	Requests int64
	Errors   int64
}

// NewCollector creates a new statistics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:      time.Now(),
		endpoints:      make(map[string]*models.AtomicEndpointStat),
		recentErrors:   make([]models.ErrorStat, 0),
		hourlyStats:    make(map[string]*hourlyCounter),
		maxErrors:      100,
		maxHourlySlots: 24,
		now:            time.Now,
	}
}

// IsError reports whether a status code counts as an error
func IsError(statusCode int) bool {
	return statusCode >= 400
}

// Observe records a request log. It is registered as a recorder hook.
func (c *Collector) Observe(log *models.RequestLog) {
	c.RecordRequest(log.EndpointID, log.Method, log.Path, log.StatusCode, time.Duration(log.DurationMs)*time.Millisecond, log.Timestamp)
}

// RecordRequest records one served mock request
func (c *Collector) RecordRequest(endpointID, method, path string, statusCode int, duration time.Duration, at time.Time) {
	if at.IsZero() {
		at = c.now()
	}
	isError := IsError(statusCode)

	c.mu.Lock()
	defer c.mu.Unlock()

	epStats, ok := c.endpoints[endpointID]
	if !ok {
		epStats = &models.AtomicEndpointStat{
			EndpointID: endpointID,
			Method:     method,
			Path:       path,
		}
		epStats.MinTimeNs.Store(duration.Nanoseconds())
		c.endpoints[endpointID] = epStats
	}

	durationNs := duration.Nanoseconds()
	epStats.TotalRequests.Add(1)
	epStats.TotalTimeNs.Add(durationNs)
	epStats.LastRequestTime.Store(at)

	for {
		currentMin := epStats.MinTimeNs.Load()
		if durationNs >= currentMin || epStats.MinTimeNs.CompareAndSwap(currentMin, durationNs) {
			break
		}
	}
	for {
		currentMax := epStats.MaxTimeNs.Load()
		if durationNs <= currentMax || epStats.MaxTimeNs.CompareAndSwap(currentMax, durationNs) {
			break
		}
	}

	if isError {
		epStats.TotalErrors.Add(1)
		c.recentErrors = append(c.recentErrors, models.ErrorStat{
			Timestamp:  at,
			EndpointID: endpointID,
			Path:       path,
			Method:     method,
			StatusCode: statusCode,
		})
		if len(c.recentErrors) > c.maxErrors {
			c.recentErrors = c.recentErrors[1:]
		}
	}

	hourKey := at.Format(hourKeyFormat)
	hourly, ok := c.hourlyStats[hourKey]
	if !ok {
		hourly = &hourlyCounter{Hour: hourKey}
		c.hourlyStats[hourKey] = hourly
		c.cleanupOldHourlyStats()
	}
	hourly.Requests++
	if isError {
		hourly.Errors++
	}
}

// cleanupOldHourlyStats removes hourly stats older than maxHourlySlots
func (c *Collector) cleanupOldHourlyStats() {
	if len(c.hourlyStats) <= c.maxHourlySlots {
		return
	}

	keys := make([]string, 0, len(c.hourlyStats))
	for k := range c.hourlyStats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	toRemove := len(keys) - c.maxHourlySlots
	for i := 0; i < toRemove; i++ {
		delete(c.hourlyStats, keys[i])
	}
}

// GetGlobalStats returns global statistics
func (c *Collector) GetGlobalStats(activeEndpoints, totalEndpoints int) *models.GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var totalRequests, totalErrors, totalTimeNs int64

	epStats := make([]models.EndpointStat, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		stat := ep.ToEndpointStat()
		epStats = append(epStats, stat)
		totalRequests += stat.TotalRequests
		totalErrors += stat.TotalErrors
		totalTimeNs += ep.TotalTimeNs.Load()
	}

	sort.Slice(epStats, func(i, j int) bool {
		if epStats[i].TotalRequests != epStats[j].TotalRequests {
			return epStats[i].TotalRequests > epStats[j].TotalRequests
		}
		return epStats[i].EndpointID < epStats[j].EndpointID
	})

	topEndpoints := epStats
	if len(topEndpoints) > 10 {
		topEndpoints = topEndpoints[:10]
	}

	var avgResponseTimeMs, errorRate float64
	if totalRequests > 0 {
		avgResponseTimeMs = float64(totalTimeNs) / float64(totalRequests) / 1e6
		errorRate = float64(totalErrors) / float64(totalRequests) * 100
	}

	uptime := c.now().Sub(c.startTime)
	var requestsPerSecond float64
	if uptime > 0 {
		requestsPerSecond = float64(totalRequests) / uptime.Seconds()
	}

	recent := make([]models.ErrorStat, len(c.recentErrors))
	copy(recent, c.recentErrors)

	successRate := 100.0
	if totalRequests > 0 {
		successRate = 100 - errorRate
	}

	return &models.GlobalStats{
		TotalRequests:     totalRequests,
		TotalErrors:       totalErrors,
		ErrorRate:         errorRate,
		SuccessRate:       successRate,
		ActiveEndpoints:   activeEndpoints,
		TotalEndpoints:    totalEndpoints,
		AvgResponseTimeMs: avgResponseTimeMs,
		RequestsPerSecond: requestsPerSecond,
		StartTime:         c.startTime,
		Uptime:            formatDuration(uptime),
		TopEndpoints:      topEndpoints,
		RecentErrors:      recent,
		RequestsByHour:    c.buildHourlyStats(),
	}
}

// GetEndpointStats returns statistics for a specific endpoint
func (c *Collector) GetEndpointStats(endpointID string) *models.EndpointStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if ep, ok := c.endpoints[endpointID]; ok {
		stat := ep.ToEndpointStat()
		return &stat
	}

	return nil
}

// Forget drops the statistics of a deleted endpoint
func (c *Collector) Forget(endpointID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.endpoints, endpointID)
}

// buildHourlyStats returns the last 24 hours, oldest first
func (c *Collector) buildHourlyStats() []models.HourlyStat {
	now := c.now()
	stats := make([]models.HourlyStat, 0, 24)

	for i := 23; i >= 0; i-- {
		hour := now.Add(-time.Duration(i) * time.Hour)

		stat := models.HourlyStat{
			Hour: hour.Format("15:00"),
		}
		if hourly, ok := c.hourlyStats[hour.Format(hourKeyFormat)]; ok {
			stat.Requests = hourly.Requests
			stat.Errors = hourly.Errors
		}

		stats = append(stats, stat)
	}

	return stats
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = c.now()
	c.endpoints = make(map[string]*models.AtomicEndpointStat)
	c.recentErrors = make([]models.ErrorStat, 0)
	c.hourlyStats = make(map[string]*hourlyCounter)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return d.Round(time.Minute).String()
	case d >= time.Minute:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
