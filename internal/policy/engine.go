package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Mode controls how policy decisions are applied.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeWarn    Mode = "warn"
	ModeEnforce Mode = "enforce"
)

// Input is the request context evaluated against sub-agent policies.
type Input struct {
	AgentType string                 `json:"agent_type"`
	TenantID  string                 `json:"tenant_id"`
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id"`
	Task      map[string]interface{} `json:"task"`
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// Config holds policy engine settings.
type Config struct {
	Enabled    bool
	Mode       Mode
	Path       string
	FailClosed bool
}

// Engine evaluates sub-agent execution requests against rego policies.
type Engine struct {
	cfg      Config
	logger   *zap.Logger
	prepared *rego.PreparedEvalQuery
}

// NewEngine creates a policy engine and loads policies from cfg.Path.
// When disabled, Evaluate always allows.
func NewEngine(cfg Config, logger *zap.Logger) (*Engine, error) {
	e := &Engine{cfg: cfg, logger: logger}
	if !cfg.Enabled || cfg.Mode == ModeOff {
		return e, nil
	}
	if err := e.loadPolicies(); err != nil {
		if cfg.FailClosed {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		logger.Warn("Policy load failed, engine degraded to allow-all",
			zap.String("path", cfg.Path), zap.Error(err))
	}
	return e, nil
}

func (e *Engine) loadPolicies() error {
	entries, err := os.ReadDir(e.cfg.Path)
	if err != nil {
		return fmt.Errorf("read policy dir %s: %w", e.cfg.Path, err)
	}

	var modules []func(*rego.Rego)
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(e.cfg.Path, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read policy %s: %w", path, err)
		}
		modules = append(modules, rego.Module(entry.Name(), string(data)))
		count++
	}
	if count == 0 {
		return fmt.Errorf("no .rego policies found in %s", e.cfg.Path)
	}

	opts := append([]func(*rego.Rego){rego.Query("data.worker.decision")}, modules...)
	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare policy query: %w", err)
	}
	e.prepared = &prepared
	e.logger.Info("Policies loaded", zap.Int("count", count), zap.String("path", e.cfg.Path))
	return nil
}

// EnforceMode reports whether the engine is active and enforcing.
func (e *Engine) EnforceMode() bool {
	return e.cfg.Enabled && e.cfg.Mode == ModeEnforce
}

// Evaluate returns a decision for the given input. In warn mode a deny
// decision is logged and converted to allow. Evaluation errors deny when
// FailClosed is set, otherwise allow.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	if !e.cfg.Enabled || e.cfg.Mode == ModeOff || e.prepared == nil {
		return Decision{Allow: true, Reason: "policy disabled"}, nil
	}

	results, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		if e.cfg.FailClosed {
			return Decision{Allow: false, Reason: "policy evaluation error"}, fmt.Errorf("policy eval: %w", err)
		}
		e.logger.Warn("Policy evaluation error, allowing (fail-open)", zap.Error(err))
		return Decision{Allow: true, Reason: "policy evaluation error (fail-open)"}, nil
	}

	decision := e.parseDecision(results)
	if !decision.Allow && e.cfg.Mode == ModeWarn {
		e.logger.Warn("Policy would deny request (warn mode)",
			zap.String("agent_type", input.AgentType),
			zap.String("tenant_id", input.TenantID),
			zap.String("reason", decision.Reason))
		return Decision{Allow: true, Reason: "warn mode: " + decision.Reason}, nil
	}
	return decision, nil
}

func (e *Engine) parseDecision(results rego.ResultSet) Decision {
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		if e.cfg.FailClosed {
			return Decision{Allow: false, Reason: "no policy decision"}
		}
		return Decision{Allow: true, Reason: "no policy decision (fail-open)"}
	}

	raw, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Allow: false, Reason: "malformed policy decision"}
	}
	decision := Decision{}
	if allow, ok := raw["allow"].(bool); ok {
		decision.Allow = allow
	}
	if reason, ok := raw["reason"].(string); ok {
		decision.Reason = reason
	}
	return decision
}
