// Package resolver selects the response variant a mock request receives
package resolver

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/prasenjit/antbee/internal/condition"
	"github.com/prasenjit/antbee/internal/models"
)

// Trace markers for the Keys segment
const (
	traceNoBody      = "NoBody"
	traceParseFailed = "BodyParseFailed"
)

// NoResponseBody is served when an endpoint has no variants
var NoResponseBody = json.RawMessage(`{"message":"No response configured"}`)

// Resolution is the outcome of evaluating an endpoint's rules
type Resolution struct {
	Selected      *models.ResponseVariant
	MatchedRuleID string
	Trace         string
	RulesCount    int
	BodyParseErr  error
}

// DefaultVariant returns the built-in response for endpoints without variants
func DefaultVariant() *models.ResponseVariant {
	return &models.ResponseVariant{
		Name:       "default",
		StatusCode: 200,
		Body:       append(json.RawMessage(nil), NoResponseBody...),
	}
}

// Resolve evaluates rules against the request and picks a variant.
// variants[0] is the endpoint's default variant. Inputs are not modified.
func Resolve(rules []*models.Rule, variants []*models.ResponseVariant, data *condition.RequestData) *Resolution {
	res := &Resolution{}

	// Rules are not evaluated without a variant to select
	if len(variants) == 0 {
		res.Selected = DefaultVariant()
		return res
	}
	res.RulesCount = len(rules)

	byID := make(map[string]*models.ResponseVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	selected := variants[0]

	var body *condition.Body
	if hasBodyRule(rules) {
		parsed, err := condition.ParseBody(data.Body)
		if err != nil {
			res.BodyParseErr = err
		} else {
			body = parsed
		}
	}

	ordered := make([]*models.Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for i, rule := range ordered {
		cond := rule.Condition

		var matched bool
		if cond.IsWellFormed() {
			actual, present := condition.Extract(cond, data, body)
			matched = condition.Compare(cond.Operator, actual, present, cond.Value)
			if i == 0 {
				res.Trace = trace(cond, actual, present, body, res.BodyParseErr)
			}
		} else if i == 0 {
			res.Trace = trace(cond, condition.Value{}, false, body, res.BodyParseErr)
		}

		if !matched {
			continue
		}
		// Every match is recorded, later matches overwrite earlier ones
		res.MatchedRuleID = rule.ID

		if cond.HasAction() {
			res.Selected = applyAction(selected, cond)
			return res
		}

		if target, ok := byID[rule.ResponseID]; ok && rule.ResponseID != "" {
			res.Selected = target.Clone()
			return res
		}
	}

	res.Selected = selected.Clone()
	return res
}

func hasBodyRule(rules []*models.Rule) bool {
	for _, r := range rules {
		if r.Condition.Type == models.ConditionBody {
			return true
		}
	}
	return false
}

// applyAction overlays an inline status and body on the selected variant
func applyAction(selected *models.ResponseVariant, cond models.Condition) *models.ResponseVariant {
	out := selected.Clone()

	if cond.ActionStatus != "" {
		if status, ok := parseStatus(cond.ActionStatus); ok {
			out.StatusCode = status
		}
	}

	if cond.ActionBody != "" {
		if json.Valid([]byte(cond.ActionBody)) {
			out.Body = json.RawMessage(cond.ActionBody)
		} else {
			diag, _ := json.Marshal(map[string]string{
				"error": "Invalid Rule Body JSON",
				"raw":   cond.ActionBody,
			})
			out.Body = diag
		}
	}

	return out
}

func parseStatus(s string) (int, bool) {
	status, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || status < 100 || status > 599 {
		return 0, false
	}
	return status, true
}

// trace summarizes the first evaluated rule for the diagnostic header
func trace(cond models.Condition, actual condition.Value, present bool, body *condition.Body, parseErr error) string {
	val := "null"
	if present {
		val = actual.String()
	}

	keys := traceNoBody
	switch {
	case parseErr != nil:
		keys = traceParseFailed
	case body != nil && !body.Empty():
		keys = strings.Join(body.Keys(), ",")
	}

	return "Type:" + cond.Type +
		"|Key:" + cond.Key +
		"|Val:" + val +
		"|Op:" + cond.Operator +
		"|Target:" + cond.Value +
		"|Keys:" + keys
}
