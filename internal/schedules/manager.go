package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/metrics"
)

// RetentionScheduleInput is the payload RetentionWorkflow receives from
// its schedule.
type RetentionScheduleInput struct {
	TenantID  string `json:"tenant_id"`
	Days      int    `json:"days"`
	BatchSize int    `json:"batch_size"`
	Distill   bool   `json:"distill"`
}

// Manager creates and manages tenant-scoped Temporal schedules.
type Manager struct {
	sched  client.ScheduleClient
	logger *zap.Logger
}

// NewManager wraps a Temporal client's schedule API.
func NewManager(c client.Client, logger *zap.Logger) *Manager {
	return &Manager{sched: c.ScheduleClient(), logger: logger}
}

// NewManagerWithScheduleClient is used by tests to inject a stub.
func NewManagerWithScheduleClient(sc client.ScheduleClient, logger *zap.Logger) *Manager {
	return &Manager{sched: sc, logger: logger}
}

// Create registers one schedule for a tenant. Schedule ids are suffixed
// with the tenant so the same definition can exist per tenant. Creating
// a schedule that already exists is not an error: the existing schedule
// wins and its id is returned.
func (m *Manager) Create(ctx context.Context, def Definition, tenantID string) (string, error) {
	if err := def.Validate(); err != nil {
		return "", err
	}

	scheduleID := fmt.Sprintf("%s-%s", def.ScheduleID, tenantID)
	args := buildArgs(def, tenantID)

	_, err := m.sched.Create(ctx, client.ScheduleOptions{
		ID: scheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{def.Cron},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        fmt.Sprintf("%s-scheduled-%s", strings.ToLower(def.WorkflowName), tenantID),
			Workflow:  def.WorkflowName,
			TaskQueue: def.TaskQueue,
			Args:      args,
		},
		Paused: def.Paused,
	})
	if err != nil {
		var already *serviceerror.AlreadyExists
		if errors.As(err, &already) {
			m.logger.Warn("Schedule already exists", zap.String("schedule_id", scheduleID))
			return scheduleID, nil
		}
		return "", fmt.Errorf("create schedule %s: %w", scheduleID, err)
	}

	metrics.SchedulesCreated.WithLabelValues(def.ScheduleID).Inc()
	m.logger.Info("Created schedule",
		zap.String("schedule_id", scheduleID),
		zap.String("workflow", def.WorkflowName),
		zap.String("cron", def.Cron))
	return scheduleID, nil
}

// buildArgs shapes workflow arguments per workflow kind: the tenant is
// threaded into each in the position its workflow expects.
func buildArgs(def Definition, tenantID string) []interface{} {
	switch def.WorkflowName {
	case "GardenerWorkflow":
		return []interface{}{tenantID, 50, 10} // tenant, batch size, max batches
	case "HarvestWorkflow":
		// HarvestWorkflow(supplierCode, tenantID): without an explicit
		// supplier the schedule covers every supplier.
		if len(def.Args) == 0 {
			return []interface{}{"all", tenantID}
		}
		return append(append([]interface{}{}, def.Args...), tenantID)
	case "RetentionWorkflow":
		return []interface{}{RetentionScheduleInput{
			TenantID:  tenantID,
			Days:      30,
			BatchSize: 100,
		}}
	default:
		return append(append([]interface{}{}, def.Args...), tenantID)
	}
}

// CreateDefaults creates every definition for the tenant. Individual
// failures are logged and skipped so one bad schedule cannot block the
// rest; the created (or pre-existing) ids are returned.
func (m *Manager) CreateDefaults(ctx context.Context, defs []Definition, tenantID string) []string {
	var ids []string
	for _, def := range defs {
		id, err := m.Create(ctx, def, tenantID)
		if err != nil {
			m.logger.Error("Failed to create schedule",
				zap.String("schedule_id", def.ScheduleID),
				zap.String("tenant_id", tenantID),
				zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ScheduleInfo is a summary row for List.
type ScheduleInfo struct {
	ID           string `json:"id"`
	WorkflowType string `json:"workflow_type,omitempty"`
}

// List returns all schedules visible to this namespace.
func (m *Manager) List(ctx context.Context) ([]ScheduleInfo, error) {
	iter, err := m.sched.List(ctx, client.ScheduleListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	var out []ScheduleInfo
	for iter.HasNext() {
		entry, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate schedules: %w", err)
		}
		info := ScheduleInfo{ID: entry.ID}
		if entry.WorkflowType.Name != "" {
			info.WorkflowType = entry.WorkflowType.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// Delete removes a schedule. Returns false on failure instead of an
// error: callers treat deletion as advisory.
func (m *Manager) Delete(ctx context.Context, scheduleID string) bool {
	handle := m.sched.GetHandle(ctx, scheduleID)
	if err := handle.Delete(ctx); err != nil {
		m.logger.Error("Failed to delete schedule",
			zap.String("schedule_id", scheduleID), zap.Error(err))
		return false
	}
	m.logger.Info("Deleted schedule", zap.String("schedule_id", scheduleID))
	return true
}

// Pause pauses a schedule. Returns false on failure.
func (m *Manager) Pause(ctx context.Context, scheduleID string) bool {
	handle := m.sched.GetHandle(ctx, scheduleID)
	if err := handle.Pause(ctx, client.SchedulePauseOptions{}); err != nil {
		m.logger.Error("Failed to pause schedule",
			zap.String("schedule_id", scheduleID), zap.Error(err))
		return false
	}
	m.logger.Info("Paused schedule", zap.String("schedule_id", scheduleID))
	return true
}

// Unpause resumes a schedule. Returns false on failure.
func (m *Manager) Unpause(ctx context.Context, scheduleID string) bool {
	handle := m.sched.GetHandle(ctx, scheduleID)
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{}); err != nil {
		m.logger.Error("Failed to unpause schedule",
			zap.String("schedule_id", scheduleID), zap.Error(err))
		return false
	}
	m.logger.Info("Unpaused schedule", zap.String("schedule_id", scheduleID))
	return true
}
