// Package brain is the worker-side client for the Brain episodic memory
// service: step recording during sub-agent execution and the retention
// job's read/distill/delete cycle.
package brain

import "time"

// Episode is one episodic memory record.
type Episode struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	TenantID  string            `json:"tenant_id"`
	SessionID string            `json:"session_id,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// EpisodeStats summarizes a tenant's episodic store.
type EpisodeStats struct {
	TenantID string `json:"tenant_id"`
	Total    int    `json:"total"`
}

// FactUpsert is a distilled fact written to entity memory.
type FactUpsert struct {
	TenantID   string  `json:"tenant_id"`
	UserID     string  `json:"user_id"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceID   string  `json:"source_id"`
}

// AddEpisodeRequest records a new episode.
type AddEpisodeRequest struct {
	Episode    Episode  `json:"episode"`
	Provenance []string `json:"provenance,omitempty"`
	TraceID    string   `json:"trace_id,omitempty"`
}

// RetentionCleanupRequest deletes episodes past the retention window,
// optionally restricted to specific episode ids.
type RetentionCleanupRequest struct {
	TenantID      string   `json:"tenant_id"`
	OlderThanDays int      `json:"older_than_days"`
	EpisodeIDs    []string `json:"episode_ids,omitempty"`
}

// RetentionCleanupResponse reports how many episodes were deleted.
type RetentionCleanupResponse struct {
	DeletedCount int `json:"deleted_count"`
}
