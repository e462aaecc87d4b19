package subagents

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StatusInfo is the tracked state of one sub-agent execution.
type StatusInfo struct {
	SubagentID string    `json:"subagent_id"`
	Status     string    `json:"status"`
	Result     *Result   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Monitor tracks sub-agent execution status in memory and supports
// blocking waits with a timeout.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]StatusInfo
	logger   *zap.Logger

	pollInterval time.Duration
}

// NewMonitor creates an empty monitor.
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		statuses:     make(map[string]StatusInfo),
		logger:       logger,
		pollInterval: time.Second,
	}
}

// GetStatus returns the current status. Unknown ids report "unknown"
// rather than an error so pollers can start before the execution does.
func (m *Monitor) GetStatus(subagentID string) StatusInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.statuses[subagentID]; ok {
		return info
	}
	return StatusInfo{SubagentID: subagentID, Status: StatusUnknown}
}

// SetStatus records the sub-agent's state. The forced terminal states
// timeout and cancelled are sticky: a late update from an execution that
// was already timed out or cancelled cannot overwrite them.
func (m *Monitor) SetStatus(subagentID, status string, result *Result, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.statuses[subagentID]; ok {
		if cur.Status == StatusTimeout || cur.Status == StatusCancelled {
			m.logger.Debug("Ignoring status update for terminated sub-agent",
				zap.String("subagent_id", subagentID),
				zap.String("current", cur.Status),
				zap.String("ignored", status))
			return
		}
	}
	m.statuses[subagentID] = StatusInfo{
		SubagentID: subagentID,
		Status:     status,
		Result:     result,
		Error:      errMsg,
		UpdatedAt:  time.Now(),
	}
}

// Wait polls until the sub-agent reaches a terminal state or the
// timeout elapses. On timeout the status is set to "timeout" so later
// reads see the same terminal state this call returned.
func (m *Monitor) Wait(ctx context.Context, subagentID string, timeout time.Duration) StatusInfo {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		info := m.GetStatus(subagentID)
		switch info.Status {
		case StatusCompleted, StatusFailed, StatusCancelled, StatusTimeout:
			return info
		}

		if time.Now().After(deadline) {
			m.SetStatus(subagentID, StatusTimeout, nil, "sub-agent execution timeout")
			m.logger.Warn("Sub-agent monitoring timed out",
				zap.String("subagent_id", subagentID),
				zap.Duration("timeout", timeout))
			return m.GetStatus(subagentID)
		}

		select {
		case <-ctx.Done():
			m.SetStatus(subagentID, StatusTimeout, nil, "monitoring cancelled")
			return m.GetStatus(subagentID)
		case <-ticker.C:
		}
	}
}

// Cancel marks the sub-agent cancelled.
func (m *Monitor) Cancel(subagentID string) {
	m.SetStatus(subagentID, StatusCancelled, nil, "sub-agent cancelled")
	m.logger.Info("Cancelled sub-agent", zap.String("subagent_id", subagentID))
}
