package subagents

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStorageSchema is the schema used when no tenant is present.
const DefaultStorageSchema = "public"

// IsolatedEnvironment is the per-execution resource namespace derived
// from an IsolationContext. Lives for exactly one execution.
type IsolatedEnvironment struct {
	CacheKeyPrefix     string
	StorageSchema      string
	CheckpointThreadID string
	Context            IsolationContext
}

// IsolationManager derives and cleans up isolated environments.
// The optional Redis client lets cleanup drop per-execution cache keys;
// cleanup is best-effort and never fails the execution.
type IsolationManager struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewIsolationManager creates a manager. rdb may be nil.
func NewIsolationManager(rdb *redis.Client, logger *zap.Logger) *IsolationManager {
	return &IsolationManager{rdb: rdb, logger: logger}
}

// CreateEnvironment derives the resource namespace for one execution:
// cache keys are prefixed with the session (or the subagent id when no
// session exists), storage lives in the tenant's schema, and checkpoints
// thread under the session or subagent id.
func (m *IsolationManager) CreateEnvironment(isoCtx IsolationContext) *IsolatedEnvironment {
	prefix := isoCtx.SubagentID + ":"
	if isoCtx.SessionID != "" {
		prefix = isoCtx.SessionID + ":"
	}

	schema := isoCtx.TenantID
	if schema == "" {
		schema = DefaultStorageSchema
	}

	threadID := isoCtx.SessionID
	if threadID == "" {
		threadID = isoCtx.SubagentID
	}

	m.logger.Info("Creating isolated environment",
		zap.String("subagent_id", isoCtx.SubagentID),
		zap.String("cache_key_prefix", prefix),
		zap.String("storage_schema", schema),
		zap.String("checkpoint_thread_id", threadID))

	return &IsolatedEnvironment{
		CacheKeyPrefix:     prefix,
		StorageSchema:      schema,
		CheckpointThreadID: threadID,
		Context:            isoCtx,
	}
}

// CleanupEnvironment tears down the environment. Drops cache keys under
// the execution's prefix when a Redis client is configured. Errors are
// logged, never returned: cleanup must not fail an execution that
// already produced its result.
func (m *IsolationManager) CleanupEnvironment(ctx context.Context, env *IsolatedEnvironment) {
	m.logger.Info("Cleaning up isolated environment",
		zap.String("subagent_id", env.Context.SubagentID))

	if m.rdb == nil {
		return
	}

	// Only sweep subagent-scoped prefixes: a session prefix may be shared
	// with the parent conversation and outlives this execution.
	if env.CacheKeyPrefix != env.Context.SubagentID+":" {
		return
	}

	iter := m.rdb.Scan(ctx, 0, env.CacheKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		m.logger.Warn("Cache key scan failed during cleanup",
			zap.String("prefix", env.CacheKeyPrefix), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		m.logger.Warn("Cache key deletion failed during cleanup",
			zap.String("prefix", env.CacheKeyPrefix), zap.Error(err))
		return
	}
	m.logger.Debug("Dropped execution cache keys",
		zap.String("prefix", env.CacheKeyPrefix), zap.Int("count", len(keys)))
}
