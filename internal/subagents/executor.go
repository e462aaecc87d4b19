package subagents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/brain"
	"github.com/contextunity/contextworker/internal/metrics"
	"github.com/contextunity/contextworker/internal/policy"
	"github.com/contextunity/contextworker/internal/tracing"
)

// StepFunc records one intermediate step during agent execution.
type StepFunc func(stepName string, result Result)

// Agent runs a delegated task. Task payloads are structured maps
// validated at the control-plane boundary.
type Agent interface {
	Run(ctx context.Context, task map[string]interface{}) (Result, error)
}

// RecordingAgent is an Agent that reports intermediate steps itself.
// The executor prefers this path when available.
type RecordingAgent interface {
	Agent
	RunWithRecording(ctx context.Context, task map[string]interface{}, record StepFunc) (Result, error)
}

// AgentFactory builds an agent instance for one execution.
type AgentFactory func(config map[string]interface{}, env *IsolatedEnvironment) (Agent, error)

// ExecuteRequest carries everything one sub-agent execution needs.
type ExecuteRequest struct {
	SubagentID string
	AgentType  string
	Task       map[string]interface{}
	Config     map[string]interface{}
	Isolation  IsolationContext
	Token      *auth.Token
	Scopes     auth.SecurityScopes
}

// Executor runs sub-agents: validates authorization first, derives an
// isolated environment, executes the agent with lifecycle steps recorded
// in Brain, and guarantees cleanup.
type Executor struct {
	isolation *IsolationManager
	recorder  *brain.Integration
	policies  *policy.Engine
	monitor   *Monitor
	logger    *zap.Logger

	// Enforcement mode for token checks: off, warn, or enforce.
	enforcement string

	mu     sync.RWMutex
	agents map[string]AgentFactory
}

// NewExecutor wires the executor. recorder and policies may be nil
// (recording skipped, policy allow-all).
func NewExecutor(isolation *IsolationManager, recorder *brain.Integration, policies *policy.Engine, monitor *Monitor, enforcement string, logger *zap.Logger) *Executor {
	return &Executor{
		isolation:   isolation,
		recorder:    recorder,
		policies:    policies,
		monitor:     monitor,
		logger:      logger,
		enforcement: enforcement,
		agents:      make(map[string]AgentFactory),
	}
}

// Monitor exposes the status store so the control plane can report and
// cancel sub-agent executions.
func (e *Executor) Monitor() *Monitor {
	return e.monitor
}

// RegisterAgentType makes an agent type available for execution.
// Last registration wins; agent types are owned by single packages.
func (e *Executor) RegisterAgentType(agentType string, factory AgentFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[agentType] = factory
	e.logger.Info("Registered agent type", zap.String("agent_type", agentType))
}

// Execute runs one sub-agent. Authorization failures return an error
// before anything is recorded or allocated; every other failure becomes
// a "failed" outcome. The isolated environment is cleaned up exactly
// once on all paths.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (ExecutionOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "subagent.execute",
		attribute.String("subagent.id", req.SubagentID),
		attribute.String("subagent.agent_type", req.AgentType))
	defer span.End()

	start := time.Now()
	e.logger.Info("Executing sub-agent",
		zap.String("subagent_id", req.SubagentID),
		zap.String("agent_type", req.AgentType),
		zap.String("tenant_id", req.Isolation.TenantID))

	// Authorization comes first: an unauthorized request must leave no
	// trace in Brain and allocate no environment.
	if err := e.validateSecurity(req); err != nil {
		metrics.SubAgentAuthFailures.WithLabelValues(authFailureReason(err)).Inc()
		metrics.SubAgentExecutions.WithLabelValues(req.AgentType, "denied").Inc()
		return ExecutionOutcome{}, err
	}

	if outcome, denied := e.checkPolicy(ctx, req); denied {
		metrics.SubAgentExecutions.WithLabelValues(req.AgentType, "denied").Inc()
		return outcome, nil
	}

	if e.monitor != nil {
		e.monitor.SetStatus(req.SubagentID, StatusRunning, nil, "")
	}

	startEpisodeID := e.recordStep(ctx, req, "start", Result{
		SubagentID: req.SubagentID,
		Status:     StatusRunning,
		DataType:   DataTypeText,
		Data:       fmt.Sprintf("Starting sub-agent %s", req.SubagentID),
	}, "")

	env := e.isolation.CreateEnvironment(req.Isolation)
	defer e.isolation.CleanupEnvironment(ctx, env)

	agent, err := e.agentInstance(req.AgentType, req.Config, env)
	if err != nil {
		return e.fail(ctx, req, startEpisodeID, start, err), nil
	}

	result, err := e.runAgent(ctx, agent, req, startEpisodeID)
	if err != nil {
		return e.fail(ctx, req, startEpisodeID, start, err), nil
	}
	result.SubagentID = req.SubagentID
	if result.Status == "" {
		result.Status = StatusCompleted
	}

	e.recordStep(ctx, req, "complete", result, startEpisodeID)

	metrics.SubAgentExecutions.WithLabelValues(req.AgentType, StatusCompleted).Inc()
	metrics.SubAgentDuration.WithLabelValues(req.AgentType).Observe(time.Since(start).Seconds())

	outcome := ExecutionOutcome{
		Status:     StatusCompleted,
		SubagentID: req.SubagentID,
		Result:     &result,
	}
	if e.monitor != nil {
		e.monitor.SetStatus(req.SubagentID, StatusCompleted, &result, "")
	}
	e.logger.Info("Sub-agent completed",
		zap.String("subagent_id", req.SubagentID),
		zap.Duration("duration", time.Since(start)))
	return outcome, nil
}

func (e *Executor) runAgent(ctx context.Context, agent Agent, req ExecuteRequest, parentStepID string) (Result, error) {
	if rec, ok := agent.(RecordingAgent); ok {
		return rec.RunWithRecording(ctx, req.Task, func(stepName string, result Result) {
			result.SubagentID = req.SubagentID
			e.recordStep(ctx, req, stepName, result, parentStepID)
		})
	}
	return agent.Run(ctx, req.Task)
}

func (e *Executor) fail(ctx context.Context, req ExecuteRequest, parentStepID string, start time.Time, cause error) ExecutionOutcome {
	e.logger.Error("Sub-agent failed",
		zap.String("subagent_id", req.SubagentID),
		zap.Error(cause))

	e.recordStep(ctx, req, "error", Result{
		SubagentID: req.SubagentID,
		Status:     StatusFailed,
		DataType:   DataTypeText,
		Data:       cause.Error(),
	}, parentStepID)

	metrics.SubAgentExecutions.WithLabelValues(req.AgentType, StatusFailed).Inc()
	metrics.SubAgentDuration.WithLabelValues(req.AgentType).Observe(time.Since(start).Seconds())

	if e.monitor != nil {
		e.monitor.SetStatus(req.SubagentID, StatusFailed, nil, cause.Error())
	}
	return ExecutionOutcome{
		Status:     StatusFailed,
		SubagentID: req.SubagentID,
		Error:      cause.Error(),
	}
}

func (e *Executor) recordStep(ctx context.Context, req ExecuteRequest, stepName string, result Result, parentStepID string) string {
	if e.recorder == nil {
		return ""
	}
	return e.recorder.RecordStep(ctx, brain.StepRecord{
		SubagentID:   req.SubagentID,
		StepName:     stepName,
		DataType:     string(result.DataType),
		Status:       result.Status,
		Data:         result.Data,
		FileURL:      result.FileURL,
		FilePath:     result.FilePath,
		StreamURL:    result.StreamURL,
		Metadata:     result.Metadata,
		TenantID:     req.Isolation.TenantID,
		SessionID:    req.Isolation.SessionID,
		TraceID:      req.Isolation.TraceID,
		ParentStepID: parentStepID,
	})
}

func (e *Executor) agentInstance(agentType string, config map[string]interface{}, env *IsolatedEnvironment) (Agent, error) {
	e.mu.RLock()
	factory, ok := e.agents[agentType]
	e.mu.RUnlock()

	if ok {
		return factory(config, env)
	}

	// Unknown agent types fall back to a placeholder so orchestration
	// flows can be exercised before the real agent ships. Under enforce
	// policy the fallback is refused: executing arbitrary unregistered
	// types would bypass the policy's agent_type matching.
	if e.policies != nil && e.policies.EnforceMode() {
		return nil, fmt.Errorf("unknown agent type %q refused under enforce policy", agentType)
	}
	e.logger.Warn("Agent type not registered, using placeholder",
		zap.String("agent_type", agentType))
	return &placeholderAgent{config: config, env: env, logger: e.logger}, nil
}

func (e *Executor) checkPolicy(ctx context.Context, req ExecuteRequest) (ExecutionOutcome, bool) {
	if e.policies == nil {
		return ExecutionOutcome{}, false
	}
	decision, err := e.policies.Evaluate(ctx, policy.Input{
		AgentType: req.AgentType,
		TenantID:  req.Isolation.TenantID,
		UserID:    req.Isolation.ParentAgentID,
		SessionID: req.Isolation.SessionID,
		Task:      req.Task,
	})
	if err != nil {
		e.logger.Error("Policy evaluation failed",
			zap.String("subagent_id", req.SubagentID), zap.Error(err))
	}
	if decision.Allow {
		return ExecutionOutcome{}, false
	}
	e.logger.Warn("Sub-agent execution denied by policy",
		zap.String("subagent_id", req.SubagentID),
		zap.String("agent_type", req.AgentType),
		zap.String("reason", decision.Reason))
	return ExecutionOutcome{
		Status:     StatusFailed,
		SubagentID: req.SubagentID,
		Error:      fmt.Sprintf("denied by policy: %s", decision.Reason),
	}, true
}

// validateSecurity applies token checks per the enforcement mode.
// Execution counts as a write, so declared scopes must be writable.
func (e *Executor) validateSecurity(req ExecuteRequest) error {
	if e.enforcement == auth.EnforcementOff {
		return nil
	}

	tok := req.Token
	if tok != nil {
		if tok.Expired() {
			return auth.ErrTokenExpired
		}
		if !tok.HasCapability(auth.CapWorkerExecute) {
			return auth.ErrPermissionDenied
		}
		if req.Isolation.TenantID != "" && !tok.AllowsTenant(req.Isolation.TenantID) {
			return auth.ErrTenantDenied
		}
		if !req.Scopes.Empty() && !tok.CanSatisfy(req.Scopes) {
			return auth.ErrScopeDenied
		}
		return nil
	}

	if !req.Scopes.Empty() && e.enforcement == auth.EnforcementEnforce {
		return auth.ErrTokenRequired
	}
	if e.enforcement == auth.EnforcementWarn {
		e.logger.Warn("Sub-agent execution without token (warn mode)",
			zap.String("subagent_id", req.SubagentID))
	}
	return nil
}

func authFailureReason(err error) string {
	switch err {
	case auth.ErrTokenExpired:
		return "expired"
	case auth.ErrPermissionDenied:
		return "permission"
	case auth.ErrTenantDenied:
		return "tenant"
	case auth.ErrScopeDenied:
		return "scope"
	case auth.ErrTokenRequired:
		return "missing_token"
	default:
		return "other"
	}
}

// placeholderAgent echoes its task back. Stands in for agent types that
// have not shipped yet.
type placeholderAgent struct {
	config map[string]interface{}
	env    *IsolatedEnvironment
	logger *zap.Logger
}

func (p *placeholderAgent) Run(_ context.Context, task map[string]interface{}) (Result, error) {
	p.logger.Info("Placeholder agent running",
		zap.String("subagent_id", p.env.Context.SubagentID))
	return Result{
		Status:   StatusCompleted,
		DataType: DataTypeJSON,
		Data: map[string]interface{}{
			"message":     "Placeholder agent executed",
			"task":        task,
			"subagent_id": p.env.Context.SubagentID,
		},
	}, nil
}
