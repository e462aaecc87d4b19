package subagents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/auth"
	"github.com/contextunity/contextworker/internal/brain"
)

type recordingAPI struct {
	steps []brain.AddEpisodeRequest
}

func (r *recordingAPI) AddEpisode(_ context.Context, req brain.AddEpisodeRequest) error {
	r.steps = append(r.steps, req)
	return nil
}

func (r *recordingAPI) GetEpisodeStats(context.Context, string) (brain.EpisodeStats, error) {
	return brain.EpisodeStats{}, nil
}

func (r *recordingAPI) GetOldEpisodes(context.Context, string, int, int) ([]brain.Episode, error) {
	return nil, nil
}

func (r *recordingAPI) UpsertFact(context.Context, brain.FactUpsert) error { return nil }

func (r *recordingAPI) RetentionCleanup(context.Context, brain.RetentionCleanupRequest) (int, error) {
	return 0, nil
}

func (r *recordingAPI) Close() error { return nil }

func (r *recordingAPI) stepNames() []string {
	var names []string
	for _, s := range r.steps {
		names = append(names, s.Episode.Metadata["step_name"])
	}
	return names
}

type stubAgent struct {
	result Result
	err    error
}

func (s *stubAgent) Run(context.Context, map[string]interface{}) (Result, error) {
	return s.result, s.err
}

func newTestExecutor(t *testing.T, api brain.API, enforcement string) *Executor {
	t.Helper()
	return NewExecutor(
		NewIsolationManager(nil, zap.NewNop()),
		brain.NewIntegration(api, zap.NewNop()),
		nil,
		NewMonitor(zap.NewNop()),
		enforcement,
		zap.NewNop(),
	)
}

func executeToken(caps ...string) *auth.Token {
	return &auth.Token{
		Subject:      "test",
		Capabilities: caps,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestExecuteRecordsLifecycleSteps(t *testing.T) {
	api := &recordingAPI{}
	ex := newTestExecutor(t, api, auth.EnforcementOff)
	ex.RegisterAgentType("echo", func(_ map[string]interface{}, _ *IsolatedEnvironment) (Agent, error) {
		return &stubAgent{result: Result{Status: StatusCompleted, DataType: DataTypeText, Data: "done"}}, nil
	})

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-1",
		AgentType:  "echo",
		Isolation:  IsolationContext{SubagentID: "sa-1", TenantID: "acme"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "sa-1", outcome.Result.SubagentID)
	assert.Equal(t, []string{"start", "complete"}, api.stepNames())
}

func TestExecuteAgentFailureBecomesFailedOutcome(t *testing.T) {
	api := &recordingAPI{}
	ex := newTestExecutor(t, api, auth.EnforcementOff)
	ex.RegisterAgentType("broken", func(_ map[string]interface{}, _ *IsolatedEnvironment) (Agent, error) {
		return &stubAgent{err: errors.New("model overloaded")}, nil
	})

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-2",
		AgentType:  "broken",
		Isolation:  IsolationContext{SubagentID: "sa-2"},
	})
	require.NoError(t, err, "agent failures are outcomes, not errors")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, "model overloaded", outcome.Error)
	assert.Equal(t, []string{"start", "error"}, api.stepNames())
}

func TestExecuteAuthFailureRecordsNothing(t *testing.T) {
	api := &recordingAPI{}
	ex := newTestExecutor(t, api, auth.EnforcementEnforce)

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-3",
		AgentType:  "echo",
		Token:      executeToken(auth.CapWorkerRead), // missing worker:execute
		Isolation:  IsolationContext{SubagentID: "sa-3"},
	})
	require.ErrorIs(t, err, auth.ErrPermissionDenied)
	assert.Empty(t, api.steps, "denied executions must leave no trace in Brain")
}

func TestExecuteExpiredTokenDenied(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementEnforce)

	tok := executeToken(auth.CapWorkerExecute)
	tok.ExpiresAt = time.Now().Add(-time.Minute)

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-4",
		AgentType:  "echo",
		Token:      tok,
		Isolation:  IsolationContext{SubagentID: "sa-4"},
	})
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestExecuteScopesWithoutTokenDeniedInEnforce(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementEnforce)

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-5",
		AgentType:  "echo",
		Scopes:     auth.SecurityScopes{Write: []string{auth.CapMemoryWrite}},
		Isolation:  IsolationContext{SubagentID: "sa-5"},
	})
	assert.ErrorIs(t, err, auth.ErrTokenRequired)
}

func TestExecuteScopesWithoutTokenAllowedInWarn(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementWarn)
	ex.RegisterAgentType("echo", func(_ map[string]interface{}, _ *IsolatedEnvironment) (Agent, error) {
		return &stubAgent{result: Result{Status: StatusCompleted, DataType: DataTypeText}}, nil
	})

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-6",
		AgentType:  "echo",
		Scopes:     auth.SecurityScopes{Write: []string{auth.CapMemoryWrite}},
		Isolation:  IsolationContext{SubagentID: "sa-6"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, outcome.Status)
}

func TestExecuteTenantMismatchDenied(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementEnforce)

	tok := executeToken(auth.CapWorkerExecute)
	tok.Tenants = []string{"acme"}

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-7",
		AgentType:  "echo",
		Token:      tok,
		Isolation:  IsolationContext{SubagentID: "sa-7", TenantID: "globex"},
	})
	assert.ErrorIs(t, err, auth.ErrTenantDenied)
}

func TestExecuteUnknownAgentUsesPlaceholder(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementOff)

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-8",
		AgentType:  "not-shipped-yet",
		Task:       map[string]interface{}{"prompt": "hi"},
		Isolation:  IsolationContext{SubagentID: "sa-8"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, outcome.Status)

	data, ok := outcome.Result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Placeholder agent executed", data["message"])
	assert.Equal(t, "sa-8", data["subagent_id"])
}

func TestExecuteRecordingAgentIntermediateSteps(t *testing.T) {
	api := &recordingAPI{}
	ex := newTestExecutor(t, api, auth.EnforcementOff)
	ex.RegisterAgentType("stepper", func(_ map[string]interface{}, _ *IsolatedEnvironment) (Agent, error) {
		return &stepperAgent{}, nil
	})

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-9",
		AgentType:  "stepper",
		Isolation:  IsolationContext{SubagentID: "sa-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "fetch", "complete"}, api.stepNames())
}

func TestExecuteUpdatesMonitor(t *testing.T) {
	ex := newTestExecutor(t, &recordingAPI{}, auth.EnforcementOff)
	ex.RegisterAgentType("echo", func(_ map[string]interface{}, _ *IsolatedEnvironment) (Agent, error) {
		return &stubAgent{result: Result{Status: StatusCompleted, DataType: DataTypeText}}, nil
	})

	_, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-10",
		AgentType:  "echo",
		Isolation:  IsolationContext{SubagentID: "sa-10"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ex.monitor.GetStatus("sa-10").Status)
}

func newRedisExecutor(t *testing.T, mr *miniredis.Miniredis) *Executor {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewExecutor(
		NewIsolationManager(rdb, zap.NewNop()),
		brain.NewIntegration(&recordingAPI{}, zap.NewNop()),
		nil,
		NewMonitor(zap.NewNop()),
		auth.EnforcementOff,
		zap.NewNop(),
	)
}

func TestExecuteSweepsEnvironmentOnAgentFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	ex := newRedisExecutor(t, mr)

	// The agent writes scratch state under its cache prefix, then dies.
	ex.RegisterAgentType("broken", func(_ map[string]interface{}, env *IsolatedEnvironment) (Agent, error) {
		mr.Set(env.CacheKeyPrefix+"scratch", "tmp")
		return &stubAgent{err: errors.New("boom")}, nil
	})
	require.NoError(t, mr.Set("other:keep", "v"))

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-sweep",
		AgentType:  "broken",
		Isolation:  IsolationContext{SubagentID: "sa-sweep"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)

	assert.False(t, mr.Exists("sa-sweep:scratch"), "failed executions still sweep their environment")
	assert.True(t, mr.Exists("other:keep"), "keys outside the execution prefix survive")
}

func TestExecuteSweepsEnvironmentOnSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	ex := newRedisExecutor(t, mr)

	ex.RegisterAgentType("writer", func(_ map[string]interface{}, env *IsolatedEnvironment) (Agent, error) {
		mr.Set(env.CacheKeyPrefix+"scratch", "tmp")
		return &stubAgent{result: Result{Status: StatusCompleted, DataType: DataTypeText}}, nil
	})

	outcome, err := ex.Execute(context.Background(), ExecuteRequest{
		SubagentID: "sa-ok",
		AgentType:  "writer",
		Isolation:  IsolationContext{SubagentID: "sa-ok"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.False(t, mr.Exists("sa-ok:scratch"))
}

type stepperAgent struct{}

func (s *stepperAgent) Run(context.Context, map[string]interface{}) (Result, error) {
	return Result{Status: StatusCompleted, DataType: DataTypeText}, nil
}

func (s *stepperAgent) RunWithRecording(_ context.Context, _ map[string]interface{}, record StepFunc) (Result, error) {
	record("fetch", Result{Status: StatusRunning, DataType: DataTypeText, Data: "fetching"})
	return Result{Status: StatusCompleted, DataType: DataTypeText, Data: "done"}, nil
}
