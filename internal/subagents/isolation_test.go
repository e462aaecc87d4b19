package subagents

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateEnvironmentWithSession(t *testing.T) {
	m := NewIsolationManager(nil, zap.NewNop())
	env := m.CreateEnvironment(IsolationContext{
		TenantID:   "acme",
		SessionID:  "sess-1",
		SubagentID: "sa-1",
	})

	assert.Equal(t, "sess-1:", env.CacheKeyPrefix)
	assert.Equal(t, "acme", env.StorageSchema)
	assert.Equal(t, "sess-1", env.CheckpointThreadID)
}

func TestCreateEnvironmentWithoutSession(t *testing.T) {
	m := NewIsolationManager(nil, zap.NewNop())
	env := m.CreateEnvironment(IsolationContext{SubagentID: "X"})

	assert.Equal(t, "X:", env.CacheKeyPrefix)
	assert.Equal(t, "X", env.CheckpointThreadID)
	assert.Equal(t, DefaultStorageSchema, env.StorageSchema)
}

func TestCleanupDropsSubagentScopedKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	m := NewIsolationManager(rdb, zap.NewNop())
	env := m.CreateEnvironment(IsolationContext{SubagentID: "sa-9"})

	require.NoError(t, mr.Set("sa-9:scratch", "v"))
	require.NoError(t, mr.Set("sa-9:cache", "v"))
	require.NoError(t, mr.Set("other:scratch", "v"))

	m.CleanupEnvironment(context.Background(), env)

	assert.False(t, mr.Exists("sa-9:scratch"))
	assert.False(t, mr.Exists("sa-9:cache"))
	assert.True(t, mr.Exists("other:scratch"), "foreign prefixes must be untouched")
}

func TestCleanupLeavesSessionScopedKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	m := NewIsolationManager(rdb, zap.NewNop())
	env := m.CreateEnvironment(IsolationContext{SessionID: "sess-1", SubagentID: "sa-9"})

	require.NoError(t, mr.Set("sess-1:history", "v"))

	m.CleanupEnvironment(context.Background(), env)

	assert.True(t, mr.Exists("sess-1:history"),
		"session keys belong to the conversation, not the execution")
}
