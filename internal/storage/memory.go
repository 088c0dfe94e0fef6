package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/prasenjit/antbee/internal/models"
)

// MemoryStorage implements Storage interface with in-memory storage.
// Records are copied on the way in and out so callers never share state
// with the store.
type MemoryStorage struct {
	mu        sync.RWMutex
	endpoints map[string]*models.Endpoint
	variants  map[string]*models.ResponseVariant
	rules     map[string]*models.Rule
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		endpoints: make(map[string]*models.Endpoint),
		variants:  make(map[string]*models.ResponseVariant),
		rules:     make(map[string]*models.Rule),
	}
}

func copyEndpoint(ep *models.Endpoint) *models.Endpoint {
	c := *ep
	return &c
}

func copyRule(r *models.Rule) *models.Rule {
	c := *r
	return &c
}

// FindEndpoint returns the endpoint registered for method and path
func (m *MemoryStorage) FindEndpoint(ctx context.Context, method, path string) (*models.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*models.Endpoint, 0, 1)
	for _, ep := range m.endpoints {
		if ep.Method == method && ep.Path == path {
			candidates = append(candidates, ep)
		}
	}
	sortEndpoints(candidates)

	ep := pickEndpoint(candidates)
	if ep == nil {
		return nil, fmt.Errorf("endpoint %s %s: %w", method, path, ErrNotFound)
	}
	return copyEndpoint(ep), nil
}

// ListRules returns an endpoint's rules in evaluation order
func (m *MemoryStorage) ListRules(ctx context.Context, endpointID string) ([]*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]*models.Rule, 0)
	for _, r := range m.rules {
		if r.EndpointID == endpointID {
			rules = append(rules, copyRule(r))
		}
	}
	sortRules(rules)

	return rules, nil
}

// ListResponseVariants returns an endpoint's variants, default first
func (m *MemoryStorage) ListResponseVariants(ctx context.Context, endpointID string) ([]*models.ResponseVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vs := make([]*models.ResponseVariant, 0)
	for _, v := range m.variants {
		if v.EndpointID == endpointID {
			vs = append(vs, v.Clone())
		}
	}
	sortVariants(vs)

	return vs, nil
}

// CreateEndpoint creates a new endpoint
func (m *MemoryStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.endpoints[ep.ID]; exists {
		return fmt.Errorf("endpoint %s: %w", ep.ID, ErrAlreadyExists)
	}
	if m.routeTaken(ep.Method, ep.Path, "") {
		return fmt.Errorf("endpoint %s %s: %w", ep.Method, ep.Path, ErrAlreadyExists)
	}
	if ep.Position == 0 {
		ep.Position = nextPosition()
	}

	m.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

// routeTaken reports whether another endpoint already owns method and path
func (m *MemoryStorage) routeTaken(method, path, exceptID string) bool {
	for id, ep := range m.endpoints {
		if id != exceptID && ep.Method == method && ep.Path == path {
			return true
		}
	}
	return false
}

// GetEndpoint retrieves an endpoint by ID
func (m *MemoryStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ep, exists := m.endpoints[id]
	if !exists {
		return nil, fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}

	return copyEndpoint(ep), nil
}

// ListEndpoints retrieves all endpoints in creation order
func (m *MemoryStorage) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	eps := make([]*models.Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		eps = append(eps, copyEndpoint(ep))
	}
	sortEndpoints(eps)

	return eps, nil
}

// UpdateEndpoint updates an endpoint
func (m *MemoryStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.endpoints[ep.ID]
	if !exists {
		return fmt.Errorf("endpoint %s: %w", ep.ID, ErrNotFound)
	}
	if m.routeTaken(ep.Method, ep.Path, ep.ID) {
		return fmt.Errorf("endpoint %s %s: %w", ep.Method, ep.Path, ErrAlreadyExists)
	}
	ep.Position = existing.Position

	m.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

// DeleteEndpoint deletes an endpoint with its variants and rules
func (m *MemoryStorage) DeleteEndpoint(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.endpoints[id]; !exists {
		return fmt.Errorf("endpoint %s: %w", id, ErrNotFound)
	}

	delete(m.endpoints, id)
	for vid, v := range m.variants {
		if v.EndpointID == id {
			delete(m.variants, vid)
		}
	}
	for rid, r := range m.rules {
		if r.EndpointID == id {
			delete(m.rules, rid)
		}
	}
	return nil
}

// CreateResponseVariant creates a new response variant
func (m *MemoryStorage) CreateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.variants[v.ID]; exists {
		return fmt.Errorf("response %s: %w", v.ID, ErrAlreadyExists)
	}
	if _, exists := m.endpoints[v.EndpointID]; !exists {
		return fmt.Errorf("endpoint %s: %w", v.EndpointID, ErrNotFound)
	}
	if v.Position == 0 {
		v.Position = nextPosition()
	}

	m.variants[v.ID] = v.Clone()
	return nil
}

// GetResponseVariant retrieves a response variant by ID
func (m *MemoryStorage) GetResponseVariant(ctx context.Context, id string) (*models.ResponseVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.variants[id]
	if !exists {
		return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
	}

	return v.Clone(), nil
}

// UpdateResponseVariant updates a response variant
func (m *MemoryStorage) UpdateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.variants[v.ID]
	if !exists {
		return fmt.Errorf("response %s: %w", v.ID, ErrNotFound)
	}
	v.EndpointID = existing.EndpointID
	v.Position = existing.Position

	m.variants[v.ID] = v.Clone()
	return nil
}

// DeleteResponseVariant deletes a response variant
func (m *MemoryStorage) DeleteResponseVariant(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.variants[id]; !exists {
		return fmt.Errorf("response %s: %w", id, ErrNotFound)
	}

	delete(m.variants, id)
	return nil
}

// CreateRule creates a new rule
func (m *MemoryStorage) CreateRule(ctx context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrAlreadyExists)
	}
	if _, exists := m.endpoints[rule.EndpointID]; !exists {
		return fmt.Errorf("endpoint %s: %w", rule.EndpointID, ErrNotFound)
	}
	if rule.Position == 0 {
		rule.Position = nextPosition()
	}

	m.rules[rule.ID] = copyRule(rule)
	return nil
}

// GetRule retrieves a rule by ID
func (m *MemoryStorage) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.rules[id]
	if !exists {
		return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}

	return copyRule(r), nil
}

// UpdateRule updates a rule
func (m *MemoryStorage) UpdateRule(ctx context.Context, rule *models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.rules[rule.ID]
	if !exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	rule.EndpointID = existing.EndpointID
	rule.Position = existing.Position

	m.rules[rule.ID] = copyRule(rule)
	return nil
}

// DeleteRule deletes a rule
func (m *MemoryStorage) DeleteRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}

	delete(m.rules, id)
	return nil
}

// ReplaceRules swaps an endpoint's whole rule set. Positions follow the
// order of rules. Rule IDs must be unique and must not belong to another
// endpoint, otherwise nothing changes.
func (m *MemoryStorage) ReplaceRules(ctx context.Context, endpointID string, rules []*models.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.endpoints[endpointID]; !exists {
		return fmt.Errorf("endpoint %s: %w", endpointID, ErrNotFound)
	}
	if id, dup := duplicateRuleID(rules); dup {
		return fmt.Errorf("rule %s listed twice: %w", id, ErrAlreadyExists)
	}
	for _, r := range rules {
		if existing, ok := m.rules[r.ID]; ok && existing.EndpointID != endpointID {
			return fmt.Errorf("rule %s belongs to endpoint %s: %w", r.ID, existing.EndpointID, ErrAlreadyExists)
		}
	}

	for id, r := range m.rules {
		if r.EndpointID == endpointID {
			delete(m.rules, id)
		}
	}
	for _, r := range rules {
		r.EndpointID = endpointID
		r.Position = nextPosition()
		m.rules[r.ID] = copyRule(r)
	}
	return nil
}

// Close closes the storage (no-op for memory storage)
func (m *MemoryStorage) Close() error {
	return nil
}
