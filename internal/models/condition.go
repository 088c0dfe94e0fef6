package models

import (
	"time"
)

// Condition is the predicate portion of a rule plus its optional inline action
type Condition struct {
	Type     string `json:"type"`     // header, query, body
	Key      string `json:"key"`      // Header/query name or dot path into the JSON body
	Operator string `json:"operator"` // equals, not_equals, contains, exists, deep_equals
	Value    string `json:"value"`    // Comparison target (JSON text for deep_equals)

	ActionStatus string `json:"action_status,omitempty"` // String-encoded status override
	ActionBody   string `json:"action_body,omitempty"`   // String-encoded JSON body override
}

// HasAction reports whether the condition carries an inline override
func (c Condition) HasAction() bool {
	return c.ActionStatus != "" || c.ActionBody != ""
}

// IsWellFormed reports whether type, key and operator are all set.
// Malformed conditions never match.
func (c Condition) IsWellFormed() bool {
	return c.Type != "" && c.Key != "" && c.Operator != ""
}

// Rule is an ordered conditional check attached to an endpoint
type Rule struct {
	ID         string    `json:"id"`
	EndpointID string    `json:"endpointId"`
	Priority   int       `json:"priority"` // Lower = evaluated first
	Condition  Condition `json:"condition"`
	ResponseID string    `json:"responseId,omitempty"`
	Position   int64     `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RuleInput represents input for creating or bulk-saving a rule
type RuleInput struct {
	ID         string    `json:"id,omitempty"`
	Priority   int       `json:"priority"`
	Condition  Condition `json:"condition"`
	ResponseID string    `json:"responseId"`
}

// RuleUpdate represents input for updating a rule
type RuleUpdate struct {
	Priority   *int       `json:"priority,omitempty"`
	Condition  *Condition `json:"condition,omitempty"`
	ResponseID *string    `json:"responseId,omitempty"`
}

// Supported condition types
const (
	ConditionHeader = "header"
	ConditionQuery  = "query"
	ConditionBody   = "body"
)

// Supported condition operators
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpContains   = "contains"
	OpExists     = "exists"
	OpDeepEquals = "deep_equals"
)

// ValidConditionTypes returns all valid condition types
func ValidConditionTypes() []string {
	return []string{ConditionHeader, ConditionQuery, ConditionBody}
}

// ValidOperators returns all valid condition operators
func ValidOperators() []string {
	return []string{OpEquals, OpNotEquals, OpContains, OpExists, OpDeepEquals}
}
