package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/registry"
)

func regWith(t *testing.T, mods ...registry.ModuleConfig) *registry.Registry {
	t.Helper()
	r := registry.New(zap.NewNop())
	for _, m := range mods {
		r.Register(m)
	}
	return r
}

func TestSelectModulesEmptyFilterTakesEnabled(t *testing.T) {
	r := regWith(t,
		registry.ModuleConfig{Name: "harvester", Queue: "harvest-tasks", Enabled: true},
		registry.ModuleConfig{Name: "off", Queue: "off-tasks", Enabled: false},
	)

	mods := selectModules(r, nil, zap.NewNop())
	assert.Len(t, mods, 1)
	assert.Equal(t, "harvester", mods[0].Name)
}

func TestSelectModulesSkipsUnknownAndDisabled(t *testing.T) {
	r := regWith(t,
		registry.ModuleConfig{Name: "harvester", Queue: "harvest-tasks", Enabled: true},
		registry.ModuleConfig{Name: "off", Queue: "off-tasks", Enabled: false},
	)

	mods := selectModules(r, []string{"harvester", "ghost", "off"}, zap.NewNop())
	assert.Len(t, mods, 1, "unknown and disabled requests are warnings, not errors")
	assert.Equal(t, "harvester", mods[0].Name)
}

func TestQueueOrderIsDeterministic(t *testing.T) {
	r := regWith(t,
		registry.ModuleConfig{Name: "z", Queue: "z-tasks", Enabled: true},
		registry.ModuleConfig{Name: "a", Queue: "a-tasks", Enabled: true},
		registry.ModuleConfig{Name: "a2", Queue: "a-tasks", Enabled: true},
	)

	byQueue := map[string][]*registry.ModuleConfig{
		"z-tasks": {r.Get("z")},
		"a-tasks": {r.Get("a"), r.Get("a2")},
	}
	assert.Equal(t, []string{"a-tasks", "z-tasks"}, queueOrder(r, byQueue))
}
