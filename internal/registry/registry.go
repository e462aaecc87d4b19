// Package registry tracks the workflow/activity modules a worker
// process can serve and the task queues they listen on.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/metrics"
)

// ModuleConfig describes one registrable module: a named bundle of
// workflows and activities bound to a task queue.
type ModuleConfig struct {
	Name       string
	Queue      string
	Workflows  []interface{}
	Activities []interface{}
	Enabled    bool
}

// Registry is the process-wide module catalog. First registration of a
// name wins; later registrations under the same name are ignored.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*ModuleConfig
	order   []string // registration order, for stable iteration
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		modules: make(map[string]*ModuleConfig),
		logger:  logger,
	}
}

// Register adds a module to the catalog. Duplicate names are ignored
// with a warning so independently-loaded plugins cannot clobber each
// other. Returns false when the name was empty or already taken.
func (r *Registry) Register(cfg ModuleConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.Name == "" {
		r.logger.Warn("Module registration rejected: empty name",
			zap.String("queue", cfg.Queue))
		return false
	}
	if _, exists := r.modules[cfg.Name]; exists {
		r.logger.Warn("Module already registered, ignoring duplicate",
			zap.String("module", cfg.Name))
		return false
	}

	c := cfg
	r.modules[cfg.Name] = &c
	r.order = append(r.order, cfg.Name)
	metrics.ModulesRegistered.Set(float64(len(r.modules)))
	r.logger.Info("Module registered",
		zap.String("module", cfg.Name),
		zap.String("queue", cfg.Queue),
		zap.Int("workflows", len(cfg.Workflows)),
		zap.Int("activities", len(cfg.Activities)),
		zap.Bool("enabled", cfg.Enabled))
	return true
}

// Get returns the module with the given name, or nil.
func (r *Registry) Get(name string) *ModuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[name]
}

// All returns every registered module in registration order.
func (r *Registry) All() []*ModuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModuleConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Enabled returns the enabled modules in registration order.
func (r *Registry) Enabled() []*ModuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ModuleConfig
	for _, name := range r.order {
		if m := r.modules[name]; m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Queues returns the distinct task queues of enabled modules, sorted,
// so worker startup order is deterministic across restarts.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, name := range r.order {
		m := r.modules[name]
		if !m.Enabled {
			continue
		}
		if _, dup := seen[m.Queue]; dup {
			continue
		}
		seen[m.Queue] = struct{}{}
		out = append(out, m.Queue)
	}
	sort.Strings(out)
	return out
}

// ByQueue returns the enabled modules bound to the given queue, in
// registration order.
func (r *Registry) ByQueue(queue string) []*ModuleConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ModuleConfig
	for _, name := range r.order {
		if m := r.modules[name]; m.Enabled && m.Queue == queue {
			out = append(out, m)
		}
	}
	return out
}

// SetEnabled toggles a module. Unknown names are a no-op.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.modules[name]; ok {
		m.Enabled = enabled
	}
}

// Names returns all registered module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
