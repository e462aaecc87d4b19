// Package gardener enriches staged catalog items: batches of pending
// items get SEO copy and processed images until nothing is pending.
package gardener

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/contextunity/contextworker/internal/registry"
)

// Queue is the task queue this module's workers listen on.
const Queue = "gardener-tasks"

// PendingItem is a staged item awaiting enrichment.
type PendingItem struct {
	SKU      string `json:"sku" db:"sku"`
	Name     string `json:"name" db:"name"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
}

// BatchReport summarizes one enrichment batch.
type BatchReport struct {
	Enriched int `json:"enriched"`
	Failed   int `json:"failed"`
}

// Activities holds the gardener's activity dependencies.
type Activities struct {
	db *sqlx.DB
}

// NewActivities wraps the staging database handle. db may be nil in
// routing-only workers.
func NewActivities(db *sqlx.DB) *Activities {
	return &Activities{db: db}
}

// ListPendingItems returns up to limit items that still need enrichment.
func (a *Activities) ListPendingItems(ctx context.Context, tenantID string, limit int) ([]PendingItem, error) {
	if a.db == nil {
		return nil, fmt.Errorf("no staging database configured")
	}
	var items []PendingItem
	err := a.db.SelectContext(ctx, &items, `
		SELECT sku, name, tenant_id FROM staging.items
		WHERE tenant_id = $1 AND enriched_at IS NULL
		ORDER BY updated_at
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}
	return items, nil
}

// EnrichBatch enriches one batch of items. Item failures are counted,
// not fatal: the batch reports how many succeeded.
func (a *Activities) EnrichBatch(ctx context.Context, items []PendingItem) (BatchReport, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Enriching batch", "items", len(items))

	if a.db == nil {
		return BatchReport{}, fmt.Errorf("no staging database configured")
	}

	report := BatchReport{}
	for _, item := range items {
		if err := a.enrichOne(ctx, item); err != nil {
			logger.Warn("Item enrichment failed, skipping", "sku", item.SKU, "error", err)
			report.Failed++
			continue
		}
		report.Enriched++
		activity.RecordHeartbeat(ctx, report)
	}
	return report, nil
}

func (a *Activities) enrichOne(ctx context.Context, item PendingItem) error {
	name := item.Name
	if name == "" {
		name = "Product"
	}
	_, err := a.db.ExecContext(ctx, `
		UPDATE staging.items
		SET meta_title = $1, meta_description = $2, enriched_at = NOW()
		WHERE tenant_id = $3 AND sku = $4`,
		fmt.Sprintf("Buy %s Online", name),
		fmt.Sprintf("Best price for %s.", name),
		item.TenantID, item.SKU)
	if err != nil {
		return fmt.Errorf("enrich %s: %w", item.SKU, err)
	}
	return nil
}

// GardenerWorkflow drains pending items in batches until a batch comes
// back empty or maxBatches is reached.
func GardenerWorkflow(ctx workflow.Context, tenantID string, batchSize, maxBatches int) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting gardener run", "tenant_id", tenantID, "batch_size", batchSize)

	if batchSize <= 0 {
		batchSize = 50
	}
	if maxBatches <= 0 {
		maxBatches = 10
	}

	var a *Activities
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	actCtx := workflow.WithActivityOptions(ctx, opts)

	total := BatchReport{}
	for batch := 0; batch < maxBatches; batch++ {
		var items []PendingItem
		if err := workflow.ExecuteActivity(actCtx, a.ListPendingItems, tenantID, batchSize).Get(ctx, &items); err != nil {
			return "", err
		}
		if len(items) == 0 {
			break
		}

		var report BatchReport
		if err := workflow.ExecuteActivity(actCtx, a.EnrichBatch, items).Get(ctx, &report); err != nil {
			return "", err
		}
		total.Enriched += report.Enriched
		total.Failed += report.Failed

		if len(items) < batchSize {
			break // last partial batch drained the backlog
		}
	}

	return fmt.Sprintf("Gardener complete: %d enriched, %d failed", total.Enriched, total.Failed), nil
}

// Provider exposes the gardener as a registrable module.
func Provider(activities *Activities) registry.Provider {
	return registry.ProviderFunc(func() []registry.ModuleConfig {
		return []registry.ModuleConfig{
			{
				Name:      "gardener",
				Queue:     Queue,
				Workflows: []interface{}{GardenerWorkflow},
				Activities: []interface{}{
					activities.ListPendingItems,
					activities.EnrichBatch,
				},
				Enabled: true,
			},
		}
	})
}
