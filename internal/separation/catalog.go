package separation

import (
	"fmt"
	"sort"
	"sync"

	"stemd/internal/services"
)

// Catalog tracks which separation models are available and which have been
// warmed by a run. Each catalog owns its own bookkeeping, so independent
// daemons never share load state.
type Catalog struct {
	mu        sync.Mutex
	available map[string]struct{}
	loaded    map[string]struct{}
}

// NewCatalog builds a catalog over the given model names.
func NewCatalog(models []string) *Catalog {
	available := make(map[string]struct{}, len(models))
	for _, model := range models {
		available[model] = struct{}{}
	}
	return &Catalog{
		available: available,
		loaded:    make(map[string]struct{}),
	}
}

// EnsureModel verifies the model is known to this catalog.
func (c *Catalog) EnsureModel(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.available[name]; !ok {
		return services.Wrap(services.ErrProcessing, "separation", "ensure model", fmt.Sprintf("unknown model %q", name), nil)
	}
	return nil
}

// MarkLoaded records that the model has completed at least one run.
func (c *Catalog) MarkLoaded(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.available[name]; ok {
		c.loaded[name] = struct{}{}
	}
}

// IsLoaded reports whether the model has been warmed by this catalog.
func (c *Catalog) IsLoaded(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.loaded[name]
	return ok
}

// Available returns the sorted model names this catalog accepts.
func (c *Catalog) Available() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	models := make([]string, 0, len(c.available))
	for model := range c.available {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Loaded returns the sorted model names warmed so far.
func (c *Catalog) Loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	models := make([]string, 0, len(c.loaded))
	for model := range c.loaded {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
