package models

import (
	"time"
)

// Endpoint represents a virtual endpoint identified by method and exact path
type Endpoint struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"` // GET, POST, PUT, DELETE, PATCH
	Path        string    `json:"path"`   // Exact path, must start with "/"
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	Position    int64     `json:"position"` // Store-assigned creation sequence
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EndpointInput represents input for creating an endpoint
type EndpointInput struct {
	Method      string `json:"method" binding:"required,oneof=GET POST PUT DELETE PATCH"`
	Path        string `json:"path" binding:"required,startswith=/"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"isActive,omitempty"`
}

// EndpointUpdate represents input for updating an endpoint
type EndpointUpdate struct {
	Method      *string `json:"method,omitempty" binding:"omitempty,oneof=GET POST PUT DELETE PATCH"`
	Path        *string `json:"path,omitempty" binding:"omitempty,startswith=/"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// Supported endpoint methods
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodDelete = "DELETE"
	MethodPatch  = "PATCH"
)

// ValidMethods returns all methods an endpoint can be registered with
func ValidMethods() []string {
	return []string{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}
}

// IsValidMethod reports whether method can be used for an endpoint
func IsValidMethod(method string) bool {
	for _, m := range ValidMethods() {
		if m == method {
			return true
		}
	}
	return false
}
