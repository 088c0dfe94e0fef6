package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prasenjit/antbee/internal/resolver"
)

// Diagnostic headers added to every mock response
const (
	HeaderRulesCount  = "X-AntBee-Rules-Count"
	HeaderMatchedRule = "X-AntBee-Matched-Rule"
	HeaderRuleTrace   = "X-AntBee-Rule-Trace"
)

// Composed is the final response for a resolution
type Composed struct {
	Status  int
	Headers map[string]string
	Body    json.RawMessage
}

// Compose applies the selected variant's delay and builds the final
// status, headers and body. A cancelled ctx ends the delay early and
// returns ctx.Err().
func Compose(ctx context.Context, res *resolver.Resolution) (*Composed, error) {
	selected := res.Selected

	if selected.DelayMs > 0 {
		timer := time.NewTimer(time.Duration(selected.DelayMs) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	status := selected.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	headers := make(map[string]string, len(selected.Headers)+4)
	for name, value := range selected.Headers {
		headers[name] = value
	}

	setDefault(headers, HeaderRulesCount, strconv.Itoa(res.RulesCount))
	if res.MatchedRuleID != "" {
		setDefault(headers, HeaderMatchedRule, res.MatchedRuleID)
	}
	if res.Trace != "" {
		setDefault(headers, HeaderRuleTrace, res.Trace)
	}
	setDefault(headers, "Content-Type", "application/json")

	body := selected.Body
	if len(body) == 0 {
		body = json.RawMessage("null")
	}

	return &Composed{Status: status, Headers: headers, Body: body}, nil
}

// setDefault sets name unless a header with the same name in any case exists
func setDefault(headers map[string]string, name, value string) {
	for existing := range headers {
		if strings.EqualFold(existing, name) {
			return
		}
	}
	headers[name] = value
}

// Write sends the response. Headers go out in sorted name order.
func (c *Composed) Write(w http.ResponseWriter) error {
	names := make([]string, 0, len(c.Headers))
	for name := range c.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w.Header().Set(name, c.Headers[name])
	}

	w.WriteHeader(c.Status)
	_, err := w.Write(c.Body)
	return err
}
