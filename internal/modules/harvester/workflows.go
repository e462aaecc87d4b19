package harvester

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// HarvesterImportWorkflow imports one vendor feed: fetch the raw
// payload, parse it into items, stage them.
func HarvesterImportWorkflow(ctx workflow.Context, vendorURL string) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting harvester import", "vendor_url", vendorURL)

	var a *Activities

	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var payload RawPayload
	if err := workflow.ExecuteActivity(fetchCtx, a.FetchVendorData, vendorURL).Get(ctx, &payload); err != nil {
		return "", err
	}

	parseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var items []Item
	if err := workflow.ExecuteActivity(parseCtx, a.ParseRawPayload, payload).Get(ctx, &items); err != nil {
		return "", err
	}

	stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var count int
	if err := workflow.ExecuteActivity(stageCtx, a.UpdateStagingBuffer, items).Get(ctx, &count); err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully imported %d items from %s", count, vendorURL), nil
}

// HarvestWorkflow runs the import for one supplier, or for every
// enabled supplier when supplierCode is "all". Supplier failures are
// isolated: the rest of the batch still runs.
func HarvestWorkflow(ctx workflow.Context, supplierCode, tenantID string) (string, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting harvest", "supplier", supplierCode, "tenant_id", tenantID)

	var a *Activities
	listCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
	})
	var suppliers []Supplier
	if err := workflow.ExecuteActivity(listCtx, a.ListSuppliers, tenantID).Get(ctx, &suppliers); err != nil {
		return "", err
	}

	imported := 0
	failed := 0
	for _, sup := range suppliers {
		if !sup.Enabled {
			continue
		}
		if supplierCode != "all" && sup.Code != supplierCode {
			continue
		}

		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("harvest-import-%s-%s", tenantID, sup.Code),
		})
		var result string
		if err := workflow.ExecuteChildWorkflow(childCtx, HarvesterImportWorkflow, sup.FeedURL).Get(ctx, &result); err != nil {
			logger.Error("Supplier import failed", "supplier", sup.Code, "error", err)
			failed++
			continue
		}
		imported++
	}

	// Mirror any images the imports left behind. Best effort: a failed
	// sweep never fails the harvest.
	imgCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var synced int
	if err := workflow.ExecuteActivity(imgCtx, a.SyncPendingImages, tenantID).Get(ctx, &synced); err != nil {
		logger.Warn("Image sync failed", "error", err)
	}

	return fmt.Sprintf("Harvest complete: %d suppliers imported, %d failed", imported, failed), nil
}
