// Package server exposes the worker's gRPC control plane.
package server

import (
	"fmt"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/subagents"
)

// Workflow type discriminators for StartWorkflow.
const (
	WorkflowTypeSubagent  = "subagent"
	WorkflowTypeHarvest   = "harvest"
	WorkflowTypeGardener  = "gardener"
	WorkflowTypeRetention = "retention"
)

// StartWorkflowRequest is a tagged union: workflow_type selects which
// variant must be populated, and each variant carries its own required
// fields instead of an open string-keyed map.
type StartWorkflowRequest struct {
	WorkflowType string `json:"workflow_type"`
	TenantID     string `json:"tenant_id,omitempty"`

	Subagent  *SubagentStart  `json:"subagent,omitempty"`
	Harvest   *HarvestStart   `json:"harvest,omitempty"`
	Gardener  *GardenerStart  `json:"gardener,omitempty"`
	Retention *RetentionStart `json:"retention,omitempty"`
}

// SubagentStart runs an agent synchronously through the executor.
type SubagentStart struct {
	SubagentID string                     `json:"subagent_id"`
	AgentType  string                     `json:"agent_type"`
	Task       map[string]interface{}     `json:"task"`
	Config     map[string]interface{}     `json:"config,omitempty"`
	Isolation  subagents.IsolationContext `json:"isolation_context"`
	Scopes     auth.SecurityScopes        `json:"security_scopes,omitempty"`
}

// HarvestStart launches a harvest workflow.
type HarvestStart struct {
	SupplierCode string `json:"supplier_code"`
}

// GardenerStart launches an enrichment run.
type GardenerStart struct {
	BatchSize  int `json:"batch_size,omitempty"`
	MaxBatches int `json:"max_batches,omitempty"`
}

// RetentionStart launches a retention run.
type RetentionStart struct {
	Days      int  `json:"days,omitempty"`
	BatchSize int  `json:"batch_size,omitempty"`
	Distill   bool `json:"distill,omitempty"`
	DryRun    bool `json:"dry_run,omitempty"`
}

// Validate checks that the populated variant matches workflow_type and
// carries its required fields.
func (r *StartWorkflowRequest) Validate() error {
	switch r.WorkflowType {
	case WorkflowTypeSubagent:
		if r.Subagent == nil {
			return fmt.Errorf("workflow_type subagent requires the subagent variant")
		}
		s := r.Subagent
		if s.SubagentID == "" {
			return fmt.Errorf("subagent request is missing subagent_id")
		}
		if s.AgentType == "" {
			return fmt.Errorf("subagent request is missing agent_type")
		}
		if s.Task == nil {
			return fmt.Errorf("subagent request is missing task")
		}
		if s.Isolation.SubagentID == "" {
			s.Isolation.SubagentID = s.SubagentID
		}
		return nil
	case WorkflowTypeHarvest:
		if r.Harvest == nil {
			return fmt.Errorf("workflow_type harvest requires the harvest variant")
		}
		if r.Harvest.SupplierCode == "" {
			return fmt.Errorf("harvest request is missing supplier_code")
		}
		return nil
	case WorkflowTypeGardener:
		if r.Gardener == nil {
			return fmt.Errorf("workflow_type gardener requires the gardener variant")
		}
		return nil
	case WorkflowTypeRetention:
		if r.Retention == nil {
			return fmt.Errorf("workflow_type retention requires the retention variant")
		}
		return nil
	case "":
		return fmt.Errorf("workflow_type is required")
	default:
		return fmt.Errorf("unknown workflow_type %q", r.WorkflowType)
	}
}

// StartWorkflowResponse reports the launched (or executed) work.
type StartWorkflowResponse struct {
	WorkflowID string      `json:"workflow_id"`
	Status     string      `json:"status"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// GetTaskStatusRequest looks up a workflow execution or an inline
// sub-agent. WaitSeconds > 0 blocks until the sub-agent reaches a
// terminal state or the wait elapses (capped at 60s).
type GetTaskStatusRequest struct {
	WorkflowID  string `json:"workflow_id"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// GetTaskStatusResponse reports an execution's state.
type GetTaskStatusResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// CancelTaskRequest cancels a sub-agent execution or a workflow.
type CancelTaskRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// CancelTaskResponse reports whether the cancellation was delivered.
type CancelTaskResponse struct {
	WorkflowID string `json:"workflow_id"`
	Cancelled  bool   `json:"cancelled"`
	Error      string `json:"error,omitempty"`
}

// ExecuteCodeRequest is the sandboxed-execution placeholder.
type ExecuteCodeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Timeout  int    `json:"timeout,omitempty"`
}

// ExecuteCodeResponse would carry sandboxed output.
type ExecuteCodeResponse struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}
