// Package maintenance runs scheduled housekeeping workflows, currently
// episodic memory retention.
package maintenance

import (
	"context"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/brain"
	"github.com/contextunity/contextworker/internal/jobs"
	"github.com/contextunity/contextworker/internal/registry"
	"github.com/contextunity/contextworker/internal/schedules"
)

// Queue is the task queue this module's workers listen on.
const Queue = "maintenance-tasks"

// Activities holds the maintenance activity dependencies.
type Activities struct {
	brain  brain.API
	logger *zap.Logger
}

// NewActivities wires the Brain client used by retention runs.
func NewActivities(api brain.API, logger *zap.Logger) *Activities {
	return &Activities{brain: api, logger: logger}
}

// RunRetention is the activity wrapper around the retention job.
func (a *Activities) RunRetention(ctx context.Context, params jobs.RetentionParams) (jobs.RetentionReport, error) {
	return jobs.RunRetention(ctx, a.brain, params, a.logger)
}

// RetentionWorkflow runs one retention pass for a tenant. Driven by the
// retention-daily schedule.
func RetentionWorkflow(ctx workflow.Context, input schedules.RetentionScheduleInput) (jobs.RetentionReport, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting retention workflow", "tenant_id", input.TenantID)

	actCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	var a *Activities
	var report jobs.RetentionReport
	err := workflow.ExecuteActivity(actCtx, a.RunRetention, jobs.RetentionParams{
		TenantID:  input.TenantID,
		Days:      input.Days,
		BatchSize: input.BatchSize,
		Distill:   input.Distill,
	}).Get(ctx, &report)
	if err != nil {
		return jobs.RetentionReport{}, err
	}
	return report, nil
}

// Provider exposes maintenance as a registrable module.
func Provider(activities *Activities) registry.Provider {
	return registry.ProviderFunc(func() []registry.ModuleConfig {
		return []registry.ModuleConfig{
			{
				Name:       "maintenance",
				Queue:      Queue,
				Workflows:  []interface{}{RetentionWorkflow},
				Activities: []interface{}{activities.RunRetention},
				Enabled:    true,
			},
		}
	})
}
