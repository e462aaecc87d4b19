package subagents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetStatusUnknownID(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	info := m.GetStatus("nope")
	assert.Equal(t, StatusUnknown, info.Status)
	assert.Equal(t, "nope", info.SubagentID)
}

func TestWaitReturnsTerminalStatus(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.pollInterval = 5 * time.Millisecond
	m.SetStatus("sa-1", StatusRunning, nil, "")

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.SetStatus("sa-1", StatusCompleted, &Result{Status: StatusCompleted}, "")
	}()

	info := m.Wait(context.Background(), "sa-1", time.Second)
	assert.Equal(t, StatusCompleted, info.Status)
}

func TestWaitTimesOutWithDistinctStatus(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.pollInterval = 5 * time.Millisecond
	m.SetStatus("sa-2", StatusRunning, nil, "")

	info := m.Wait(context.Background(), "sa-2", 30*time.Millisecond)
	assert.Equal(t, StatusTimeout, info.Status)
	assert.NotEmpty(t, info.Error)

	// The timeout sticks: later reads see the same terminal state, even
	// after the slow execution finally finishes and reports completion.
	assert.Equal(t, StatusTimeout, m.GetStatus("sa-2").Status)
	m.SetStatus("sa-2", StatusCompleted, &Result{Status: StatusCompleted}, "")
	assert.Equal(t, StatusTimeout, m.GetStatus("sa-2").Status,
		"a late completion must not replace the forced timeout state")
}

func TestCancelledStatusIsSticky(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.SetStatus("sa-5", StatusRunning, nil, "")
	m.Cancel("sa-5")

	m.SetStatus("sa-5", StatusFailed, nil, "late failure")
	assert.Equal(t, StatusCancelled, m.GetStatus("sa-5").Status)
}

func TestCancelMarksCancelled(t *testing.T) {
	m := NewMonitor(zap.NewNop())
	m.SetStatus("sa-3", StatusRunning, nil, "")
	m.Cancel("sa-3")
	assert.Equal(t, StatusCancelled, m.GetStatus("sa-3").Status)
}
