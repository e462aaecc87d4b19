package registry

import (
	"sync"

	"go.uber.org/zap"
)

// Provider supplies module configurations at startup. Each feature
// package exposes one provider; registering it in the provider table
// makes its modules discoverable without the worker core importing the
// feature package's internals.
type Provider interface {
	// Modules returns the module configurations this provider offers.
	Modules() []ModuleConfig
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func() []ModuleConfig

func (f ProviderFunc) Modules() []ModuleConfig { return f() }

var (
	providerMu   sync.Mutex
	providers    []Provider
	providersRan bool
)

// RegisterProvider adds a provider to the discovery table. Typically
// called from feature package init or from main before DiscoverModules.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers = append(providers, p)
}

// DiscoverModules registers every provider's modules into the registry.
// Runs the provider table at most once per process; later calls are
// no-ops so repeated bootstraps cannot double-register.
func DiscoverModules(r *Registry, logger *zap.Logger) {
	providerMu.Lock()
	defer providerMu.Unlock()
	if providersRan {
		logger.Debug("Module discovery already ran, skipping")
		return
	}
	providersRan = true

	for _, p := range providers {
		for _, cfg := range p.Modules() {
			r.Register(cfg)
		}
	}
	logger.Info("Module discovery complete", zap.Int("providers", len(providers)))
}

// resetProviders clears the provider table. Test helper.
func resetProviders() {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers = nil
	providersRan = false
}
