package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/metrics"
	"github.com/contextunity/contextworker/internal/subagents"

	// Registers the JSON wire codec used by the control plane.
	_ "github.com/contextunity/contextworker/internal/grpcutil"
)

// Queue names the control plane routes workflow types to.
const (
	harvestQueue     = "harvest-tasks"
	gardenerQueue    = "gardener-tasks"
	maintenanceQueue = "maintenance-tasks"
)

// Service implements the WorkerService control plane: starting
// workflows (or executing sub-agents inline), checking status, and the
// sandboxed-execution placeholder.
type Service struct {
	temporal client.Client
	executor *subagents.Executor
	monitor  *subagents.Monitor
	logger   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService wires the control plane. Sub-agent statuses are served from
// the executor's monitor so inline executions are observable by id.
func NewService(temporal client.Client, executor *subagents.Executor, logger *zap.Logger) *Service {
	var monitor *subagents.Monitor
	if executor != nil {
		monitor = executor.Monitor()
	}
	return &Service{
		temporal: temporal,
		executor: executor,
		monitor:  monitor,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// grpcStatusLabel renders an error as the metric label for its gRPC
// status code.
func grpcStatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return status.Code(err).String()
}

// limiter returns the per-tenant request limiter (10 rps, burst 20).
func (s *Service) limiter(tenantID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[tenantID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(10), 20)
	s.limiters[tenantID] = l
	return l
}

// StartWorkflow routes the request by workflow_type: subagent requests
// execute synchronously through the executor; everything else launches
// a durable workflow on its queue.
func (s *Service) StartWorkflow(ctx context.Context, req *StartWorkflowRequest) (*StartWorkflowResponse, error) {
	started := time.Now()
	resp, err := s.startWorkflow(ctx, req)
	metrics.RecordGRPCMetrics("StartWorkflow", grpcStatusLabel(err), time.Since(started).Seconds())
	return resp, err
}

func (s *Service) startWorkflow(ctx context.Context, req *StartWorkflowRequest) (*StartWorkflowResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !s.limiter(req.TenantID).Allow() {
		return nil, status.Error(codes.ResourceExhausted, "tenant request rate exceeded")
	}

	tok := auth.TokenFromContext(ctx)
	if tok != nil && req.TenantID != "" && !tok.AllowsTenant(req.TenantID) {
		return nil, status.Error(codes.PermissionDenied, auth.ErrTenantDenied.Error())
	}

	s.logger.Info("StartWorkflow",
		zap.String("workflow_type", req.WorkflowType),
		zap.String("tenant_id", req.TenantID))

	switch req.WorkflowType {
	case WorkflowTypeSubagent:
		return s.startSubagent(ctx, req, tok)
	case WorkflowTypeHarvest:
		workflowID := fmt.Sprintf("harvest-%s-%s", req.TenantID, req.Harvest.SupplierCode)
		return s.launch(ctx, workflowID, harvestQueue, "HarvestWorkflow",
			req.Harvest.SupplierCode, req.TenantID)
	case WorkflowTypeGardener:
		workflowID := fmt.Sprintf("gardener-%s-%d", req.TenantID, time.Now().Unix())
		return s.launch(ctx, workflowID, gardenerQueue, "GardenerWorkflow",
			req.TenantID, req.Gardener.BatchSize, req.Gardener.MaxBatches)
	case WorkflowTypeRetention:
		workflowID := fmt.Sprintf("retention-%s-%d", req.TenantID, time.Now().Unix())
		return s.launch(ctx, workflowID, maintenanceQueue, "RetentionWorkflow",
			map[string]interface{}{
				"tenant_id":  req.TenantID,
				"days":       req.Retention.Days,
				"batch_size": req.Retention.BatchSize,
				"distill":    req.Retention.Distill,
			})
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown workflow_type %q", req.WorkflowType)
	}
}

func (s *Service) startSubagent(ctx context.Context, req *StartWorkflowRequest, tok *auth.Token) (*StartWorkflowResponse, error) {
	sub := req.Subagent
	iso := sub.Isolation
	if iso.TenantID == "" {
		iso.TenantID = req.TenantID
	}

	outcome, err := s.executor.Execute(ctx, subagents.ExecuteRequest{
		SubagentID: sub.SubagentID,
		AgentType:  sub.AgentType,
		Task:       sub.Task,
		Config:     sub.Config,
		Isolation:  iso,
		Token:      tok,
		Scopes:     sub.Scopes,
	})
	if err != nil {
		// Authorization failures are the only errors the executor
		// surfaces; map them to gRPC status codes.
		if auth.IsAuthorizationError(err) {
			return nil, status.Error(codes.PermissionDenied, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	return &StartWorkflowResponse{
		WorkflowID: sub.SubagentID,
		Status:     outcome.Status,
		Result:     outcome.Result,
		Error:      outcome.Error,
	}, nil
}

func (s *Service) launch(ctx context.Context, workflowID, queue, workflowName string, args ...interface{}) (*StartWorkflowResponse, error) {
	run, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: queue,
	}, workflowName, args...)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "start workflow: %v", err)
	}

	s.logger.Info("Workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("queue", queue))
	return &StartWorkflowResponse{
		WorkflowID: run.GetID(),
		Status:     "running",
	}, nil
}

// GetTaskStatus reports a workflow execution's state. Inline sub-agent
// executions are looked up in the monitor first, so the id handed back
// by a subagent StartWorkflow stays observable; everything else goes to
// Temporal.
func (s *Service) GetTaskStatus(ctx context.Context, req *GetTaskStatusRequest) (*GetTaskStatusResponse, error) {
	started := time.Now()
	resp, err := s.getTaskStatus(ctx, req)
	metrics.RecordGRPCMetrics("GetTaskStatus", grpcStatusLabel(err), time.Since(started).Seconds())
	return resp, err
}

func (s *Service) getTaskStatus(ctx context.Context, req *GetTaskStatusRequest) (*GetTaskStatusResponse, error) {
	if req.WorkflowID == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id is required")
	}

	if s.monitor != nil {
		info := s.monitor.GetStatus(req.WorkflowID)
		if info.Status != subagents.StatusUnknown {
			if req.WaitSeconds > 0 {
				wait := time.Duration(req.WaitSeconds) * time.Second
				if wait > time.Minute {
					wait = time.Minute
				}
				info = s.monitor.Wait(ctx, req.WorkflowID, wait)
			}
			return &GetTaskStatusResponse{
				WorkflowID: req.WorkflowID,
				Status:     info.Status,
				Error:      info.Error,
			}, nil
		}
	}

	desc, err := s.temporal.DescribeWorkflowExecution(ctx, req.WorkflowID, "")
	if err != nil {
		// Unknown executions report "unknown" rather than failing the call.
		s.logger.Warn("Describe workflow failed",
			zap.String("workflow_id", req.WorkflowID), zap.Error(err))
		return &GetTaskStatusResponse{
			WorkflowID: req.WorkflowID,
			Status:     "unknown",
			Error:      err.Error(),
		}, nil
	}

	return &GetTaskStatusResponse{
		WorkflowID: req.WorkflowID,
		Status:     executionStatus(desc.WorkflowExecutionInfo.GetStatus()),
	}, nil
}

func executionStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return "running"
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return "completed"
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return "failed"
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return "cancelled"
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return "terminated"
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return "failed"
	case enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return "running"
	default:
		return "unknown"
	}
}

// CancelTask cancels an inline sub-agent execution (via the monitor) or
// a durable workflow (via Temporal). Cancellation of an unknown id is
// reported as not cancelled, not an RPC error.
func (s *Service) CancelTask(ctx context.Context, req *CancelTaskRequest) (*CancelTaskResponse, error) {
	started := time.Now()
	resp, err := s.cancelTask(ctx, req)
	metrics.RecordGRPCMetrics("CancelTask", grpcStatusLabel(err), time.Since(started).Seconds())
	return resp, err
}

func (s *Service) cancelTask(ctx context.Context, req *CancelTaskRequest) (*CancelTaskResponse, error) {
	if req.WorkflowID == "" {
		return nil, status.Error(codes.InvalidArgument, "workflow_id is required")
	}

	if s.monitor != nil {
		if info := s.monitor.GetStatus(req.WorkflowID); info.Status != subagents.StatusUnknown {
			s.monitor.Cancel(req.WorkflowID)
			return &CancelTaskResponse{
				WorkflowID: req.WorkflowID,
				Cancelled:  s.monitor.GetStatus(req.WorkflowID).Status == subagents.StatusCancelled,
			}, nil
		}
	}

	if err := s.temporal.CancelWorkflow(ctx, req.WorkflowID, ""); err != nil {
		s.logger.Warn("Cancel workflow failed",
			zap.String("workflow_id", req.WorkflowID), zap.Error(err))
		return &CancelTaskResponse{
			WorkflowID: req.WorkflowID,
			Cancelled:  false,
			Error:      err.Error(),
		}, nil
	}
	s.logger.Info("Workflow cancelled", zap.String("workflow_id", req.WorkflowID))
	return &CancelTaskResponse{WorkflowID: req.WorkflowID, Cancelled: true}, nil
}

// ExecuteCode is deliberately unimplemented: running caller-supplied
// code requires a sandbox this service does not have, and running it
// unsandboxed is worse than refusing.
func (s *Service) ExecuteCode(ctx context.Context, req *ExecuteCodeRequest) (*ExecuteCodeResponse, error) {
	err := status.Error(codes.Unimplemented, "code execution requires sandboxing and is not implemented")
	metrics.RecordGRPCMetrics("ExecuteCode", grpcStatusLabel(err), 0)
	return nil, err
}
