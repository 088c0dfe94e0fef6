package models

import (
	"encoding/json"
	"time"
)

// ResponseVariant is one candidate response owned by an endpoint
type ResponseVariant struct {
	ID         string            `json:"id"`
	EndpointID string            `json:"endpointId"`
	Name       string            `json:"name"`
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       json.RawMessage   `json:"body"`
	DelayMs    int               `json:"delayMs"` // Artificial latency in milliseconds
	Position   int64             `json:"position"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Clone returns a copy whose headers and body can be modified without
// touching the stored variant
func (v *ResponseVariant) Clone() *ResponseVariant {
	if v == nil {
		return nil
	}
	c := *v
	if v.Headers != nil {
		c.Headers = make(map[string]string, len(v.Headers))
		for key, value := range v.Headers {
			c.Headers[key] = value
		}
	}
	if v.Body != nil {
		c.Body = append(json.RawMessage(nil), v.Body...)
	}
	return &c
}

// ResponseVariantInput represents input for creating a response variant
type ResponseVariantInput struct {
	Name       string            `json:"name"`
	StatusCode int               `json:"statusCode" binding:"omitempty,min=100,max=599"`
	Headers    map[string]string `json:"headers"`
	Body       json.RawMessage   `json:"body"`
	DelayMs    int               `json:"delayMs" binding:"min=0"`
}

// ResponseVariantUpdate represents input for updating a response variant
type ResponseVariantUpdate struct {
	Name       *string            `json:"name,omitempty"`
	StatusCode *int               `json:"statusCode,omitempty" binding:"omitempty,min=100,max=599"`
	Headers    *map[string]string `json:"headers,omitempty"`
	Body       json.RawMessage    `json:"body,omitempty"`
	DelayMs    *int               `json:"delayMs,omitempty" binding:"omitempty,min=0"`
}
