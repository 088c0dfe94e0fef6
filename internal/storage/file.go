package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/prasenjit/antbee/internal/models"
)

const (
	endpointsDir = "endpoints"
	responsesDir = "responses"
	rulesDir     = "rules"
)

// FileStorage implements Storage interface with file-based persistence.
// Every record is a JSON file under basePath; reads are served from an
// in-memory copy that Reload rebuilds from disk.
type FileStorage struct {
	mu       sync.RWMutex
	basePath string
	memory   *MemoryStorage
	logger   *slog.Logger
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(basePath string, logger *slog.Logger) (*FileStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	for _, dir := range []string{basePath, filepath.Join(basePath, endpointsDir), filepath.Join(basePath, responsesDir), filepath.Join(basePath, rulesDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fs := &FileStorage{
		basePath: basePath,
		logger:   logger.With("component", "storage.file"),
	}

	if err := fs.Reload(); err != nil {
		return nil, err
	}

	return fs, nil
}

// BasePath returns the directory holding the record files
func (f *FileStorage) BasePath() string {
	return f.basePath
}

// Reload rebuilds the in-memory copy from the files on disk
func (f *FileStorage) Reload() error {
	mem := NewMemoryStorage()

	endpoints, err := loadDir[models.Endpoint](filepath.Join(f.basePath, endpointsDir), f.logger)
	if err != nil {
		return err
	}
	for _, ep := range endpoints {
		observePosition(ep.Position)
		mem.endpoints[ep.ID] = ep
	}

	variants, err := loadDir[models.ResponseVariant](filepath.Join(f.basePath, responsesDir), f.logger)
	if err != nil {
		return err
	}
	for _, v := range variants {
		observePosition(v.Position)
		mem.variants[v.ID] = v
	}

	rules, err := loadDir[models.Rule](filepath.Join(f.basePath, rulesDir), f.logger)
	if err != nil {
		return err
	}
	for _, r := range rules {
		observePosition(r.Position)
		mem.rules[r.ID] = r
	}

	f.mu.Lock()
	f.memory = mem
	f.mu.Unlock()

	f.logger.Debug("loaded records from disk",
		"endpoints", len(endpoints),
		"responses", len(variants),
		"rules", len(rules),
	)
	return nil
}

// loadDir decodes every .json file in dir. Unreadable files are skipped.
func loadDir[T any](dir string, logger *slog.Logger) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	items := make([]*T, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("skipping unreadable record", "file", entry.Name(), "error", err)
			continue
		}

		item := new(T)
		if err := json.Unmarshal(data, item); err != nil {
			logger.Warn("skipping malformed record", "file", entry.Name(), "error", err)
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (f *FileStorage) mem() *MemoryStorage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.memory
}

func (f *FileStorage) save(dir, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(f.basePath, dir, id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (f *FileStorage) remove(dir, id string) error {
	path := filepath.Join(f.basePath, dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// FindEndpoint returns the endpoint registered for method and path
func (f *FileStorage) FindEndpoint(ctx context.Context, method, path string) (*models.Endpoint, error) {
	return f.mem().FindEndpoint(ctx, method, path)
}

// ListRules returns an endpoint's rules in evaluation order
func (f *FileStorage) ListRules(ctx context.Context, endpointID string) ([]*models.Rule, error) {
	return f.mem().ListRules(ctx, endpointID)
}

// ListResponseVariants returns an endpoint's variants, default first
func (f *FileStorage) ListResponseVariants(ctx context.Context, endpointID string) ([]*models.ResponseVariant, error) {
	return f.mem().ListResponseVariants(ctx, endpointID)
}

// CreateEndpoint creates a new endpoint
func (f *FileStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreateEndpoint(ctx, ep); err != nil {
		return err
	}

	return f.save(endpointsDir, ep.ID, ep)
}

// GetEndpoint retrieves an endpoint by ID
func (f *FileStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	return f.mem().GetEndpoint(ctx, id)
}

// ListEndpoints retrieves all endpoints in creation order
func (f *FileStorage) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	return f.mem().ListEndpoints(ctx)
}

// UpdateEndpoint updates an endpoint
func (f *FileStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.UpdateEndpoint(ctx, ep); err != nil {
		return err
	}

	return f.save(endpointsDir, ep.ID, ep)
}

// DeleteEndpoint deletes an endpoint with its variants and rules
func (f *FileStorage) DeleteEndpoint(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Collect children before the memory copy forgets them
	variants, _ := f.memory.ListResponseVariants(ctx, id)
	rules, _ := f.memory.ListRules(ctx, id)

	if err := f.memory.DeleteEndpoint(ctx, id); err != nil {
		return err
	}

	for _, v := range variants {
		if err := f.remove(responsesDir, v.ID); err != nil {
			return err
		}
	}
	for _, r := range rules {
		if err := f.remove(rulesDir, r.ID); err != nil {
			return err
		}
	}
	return f.remove(endpointsDir, id)
}

// CreateResponseVariant creates a new response variant
func (f *FileStorage) CreateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreateResponseVariant(ctx, v); err != nil {
		return err
	}

	return f.save(responsesDir, v.ID, v)
}

// GetResponseVariant retrieves a response variant by ID
func (f *FileStorage) GetResponseVariant(ctx context.Context, id string) (*models.ResponseVariant, error) {
	return f.mem().GetResponseVariant(ctx, id)
}

// UpdateResponseVariant updates a response variant
func (f *FileStorage) UpdateResponseVariant(ctx context.Context, v *models.ResponseVariant) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.UpdateResponseVariant(ctx, v); err != nil {
		return err
	}

	return f.save(responsesDir, v.ID, v)
}

// DeleteResponseVariant deletes a response variant
func (f *FileStorage) DeleteResponseVariant(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteResponseVariant(ctx, id); err != nil {
		return err
	}

	return f.remove(responsesDir, id)
}

// CreateRule creates a new rule
func (f *FileStorage) CreateRule(ctx context.Context, rule *models.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.CreateRule(ctx, rule); err != nil {
		return err
	}

	return f.save(rulesDir, rule.ID, rule)
}

// GetRule retrieves a rule by ID
func (f *FileStorage) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	return f.mem().GetRule(ctx, id)
}

// UpdateRule updates a rule
func (f *FileStorage) UpdateRule(ctx context.Context, rule *models.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.UpdateRule(ctx, rule); err != nil {
		return err
	}

	return f.save(rulesDir, rule.ID, rule)
}

// DeleteRule deletes a rule
func (f *FileStorage) DeleteRule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.memory.DeleteRule(ctx, id); err != nil {
		return err
	}

	return f.remove(rulesDir, id)
}

// ReplaceRules swaps an endpoint's whole rule set
func (f *FileStorage) ReplaceRules(ctx context.Context, endpointID string, rules []*models.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, _ := f.memory.ListRules(ctx, endpointID)

	if err := f.memory.ReplaceRules(ctx, endpointID, rules); err != nil {
		return err
	}

	kept := make(map[string]bool, len(rules))
	for _, r := range rules {
		kept[r.ID] = true
		if err := f.save(rulesDir, r.ID, r); err != nil {
			return err
		}
	}
	for _, r := range previous {
		if !kept[r.ID] {
			if err := f.remove(rulesDir, r.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the storage
func (f *FileStorage) Close() error {
	return nil
}
