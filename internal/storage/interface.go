package storage

import (
	"context"
	"errors"

	"github.com/prasenjit/antbee/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a record collides with an existing one
	ErrAlreadyExists = errors.New("already exists")
)

// ConfigStore is the read side used while resolving mock requests
type ConfigStore interface {
	// FindEndpoint returns the endpoint registered for the exact method and
	// path. When several share the pair, the first active one in creation
	// order wins, else the first inactive one. ErrNotFound when none.
	FindEndpoint(ctx context.Context, method, path string) (*models.Endpoint, error)

	// ListRules returns an endpoint's rules by ascending priority, ties in
	// creation order
	ListRules(ctx context.Context, endpointID string) ([]*models.Rule, error)

	// ListResponseVariants returns an endpoint's variants in creation order.
	// The first element is the endpoint's default response.
	ListResponseVariants(ctx context.Context, endpointID string) ([]*models.ResponseVariant, error)
}

// Storage defines the interface for data persistence
type Storage interface {
	ConfigStore

	// Endpoint operations
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error // Also removes its variants and rules

	// ResponseVariant operations
	CreateResponseVariant(ctx context.Context, v *models.ResponseVariant) error
	GetResponseVariant(ctx context.Context, id string) (*models.ResponseVariant, error)
	UpdateResponseVariant(ctx context.Context, v *models.ResponseVariant) error
	DeleteResponseVariant(ctx context.Context, id string) error

	// Rule operations
	CreateRule(ctx context.Context, rule *models.Rule) error
	GetRule(ctx context.Context, id string) (*models.Rule, error)
	UpdateRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id string) error
	ReplaceRules(ctx context.Context, endpointID string, rules []*models.Rule) error

	// Utility
	Close() error
}
