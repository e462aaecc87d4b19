// Package worker starts Temporal workers for the registered modules,
// one worker per task queue.
package worker

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/discovery"
	"github.com/contextunity/contextworker/internal/metrics"
	"github.com/contextunity/contextworker/internal/registry"
)

// Options controls which modules run and how the instance announces
// itself.
type Options struct {
	// Modules restricts the run to the named modules. Empty means every
	// enabled module. Unknown names are warned about and skipped.
	Modules []string

	ServiceName  string
	InstanceName string
	Version      string
}

// Run starts one worker per task queue covering the selected modules
// and blocks until ctx is cancelled. Workers on the same queue share a
// connection; each queue's worker serves the union of its modules'
// workflows and activities. Having nothing to run is a valid state, not
// an error.
func Run(ctx context.Context, c client.Client, reg *registry.Registry, disc *discovery.Client, opts Options, logger *zap.Logger) error {
	modules := selectModules(reg, opts.Modules, logger)
	if len(modules) == 0 {
		logger.Info("No modules to run, worker idle")
		return nil
	}

	byQueue := make(map[string][]*registry.ModuleConfig)
	for _, m := range modules {
		byQueue[m.Queue] = append(byQueue[m.Queue], m)
	}

	var queues []string
	var workers []sdkworker.Worker
	for _, queue := range queueOrder(reg, byQueue) {
		mods := byQueue[queue]

		w := sdkworker.New(c, queue, sdkworker.Options{})
		registered := 0
		for _, m := range mods {
			for _, wf := range m.Workflows {
				w.RegisterWorkflow(wf)
				registered++
			}
			for _, act := range m.Activities {
				w.RegisterActivity(act)
				registered++
			}
		}
		if registered == 0 {
			logger.Warn("Queue has no workflows or activities, skipping",
				zap.String("queue", queue))
			continue
		}

		if err := w.Start(); err != nil {
			stopAll(workers, queues, logger)
			return fmt.Errorf("start worker for queue %s: %w", queue, err)
		}
		metrics.WorkersStarted.WithLabelValues(queue).Inc()
		logger.Info("Worker started",
			zap.String("queue", queue),
			zap.Int("modules", len(mods)))
		workers = append(workers, w)
		queues = append(queues, queue)
	}

	if len(workers) == 0 {
		logger.Info("No runnable queues, worker idle")
		return nil
	}

	// Announce the live instance; the entry expires on its own if we die
	// without cancelling.
	if disc != nil {
		regn, err := disc.Register(ctx, discovery.ServiceInfo{
			Name:     opts.ServiceName,
			Instance: opts.InstanceName,
			Version:  opts.Version,
			Queues:   queues,
		})
		if err != nil {
			logger.Warn("Service discovery registration failed", zap.Error(err))
		} else {
			defer regn.Stop()
		}
	}

	logger.Info("All workers running", zap.Strings("queues", queues))
	<-ctx.Done()

	stopAll(workers, queues, logger)
	return nil
}

func stopAll(workers []sdkworker.Worker, queues []string, logger *zap.Logger) {
	for i, w := range workers {
		w.Stop()
		if i < len(queues) {
			metrics.WorkersStopped.WithLabelValues(queues[i]).Inc()
		}
	}
	logger.Info("Workers stopped", zap.Int("count", len(workers)))
}

// selectModules resolves the requested module filter against the
// registry, warning on unknown or disabled names.
func selectModules(reg *registry.Registry, requested []string, logger *zap.Logger) []*registry.ModuleConfig {
	if len(requested) == 0 {
		return reg.Enabled()
	}
	var out []*registry.ModuleConfig
	for _, name := range requested {
		m := reg.Get(name)
		if m == nil {
			logger.Warn("Requested module is not registered, skipping",
				zap.String("module", name))
			continue
		}
		if !m.Enabled {
			logger.Warn("Requested module is disabled, skipping",
				zap.String("module", name))
			continue
		}
		out = append(out, m)
	}
	return out
}

// queueOrder returns the queues of byQueue in the registry's sorted
// order so startup is deterministic.
func queueOrder(reg *registry.Registry, byQueue map[string][]*registry.ModuleConfig) []string {
	var out []string
	for _, q := range reg.Queues() {
		if _, ok := byQueue[q]; ok {
			out = append(out, q)
		}
	}
	// Queues from disabled-then-filtered modules may not appear in
	// reg.Queues; append any stragglers.
	for q := range byQueue {
		found := false
		for _, existing := range out {
			if existing == q {
				found = true
				break
			}
		}
		if !found {
			out = append(out, q)
		}
	}
	return out
}
