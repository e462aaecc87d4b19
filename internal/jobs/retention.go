// Package jobs holds background maintenance jobs run on a schedule or
// from the command line.
package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/brain"
	"github.com/contextunity/contextworker/internal/metrics"
)

// RetentionParams configures one retention run.
type RetentionParams struct {
	TenantID  string `json:"tenant_id"`
	Days      int    `json:"days"`
	BatchSize int    `json:"batch_size"`
	Distill   bool   `json:"distill"`
	DryRun    bool   `json:"dry_run"`
}

func (p *RetentionParams) applyDefaults() {
	if p.TenantID == "" {
		p.TenantID = "default"
	}
	if p.Days <= 0 {
		p.Days = 30
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
}

// RetentionReport summarizes what a retention run did.
type RetentionReport struct {
	TenantID       string    `json:"tenant_id"`
	RetentionDays  int       `json:"retention_days"`
	TotalBefore    int       `json:"total_before"`
	DeletedCount   int       `json:"deleted_count"`
	DistilledFacts int       `json:"distilled_facts"`
	DurationMS     int64     `json:"duration_ms"`
	DryRun         bool      `json:"dry_run"`
	Timestamp      time.Time `json:"timestamp"`
}

// RunRetention deletes episodes older than the retention window,
// optionally distilling facts from them first. A tenant with no
// episodes short-circuits to an empty report.
func RunRetention(ctx context.Context, api brain.API, params RetentionParams, logger *zap.Logger) (RetentionReport, error) {
	params.applyDefaults()
	start := time.Now()

	stats, err := api.GetEpisodeStats(ctx, params.TenantID)
	if err != nil {
		return RetentionReport{}, fmt.Errorf("get episode stats: %w", err)
	}

	logger.Info("Retention job started",
		zap.String("tenant_id", params.TenantID),
		zap.Int("retention_days", params.Days),
		zap.Int("total_episodes", stats.Total))

	report := RetentionReport{
		TenantID:      params.TenantID,
		RetentionDays: params.Days,
		TotalBefore:   stats.Total,
		DryRun:        params.DryRun,
		Timestamp:     time.Now().UTC(),
	}
	if stats.Total == 0 {
		return report, nil
	}

	var processedIDs []string
	if params.Distill {
		episodes, err := api.GetOldEpisodes(ctx, params.TenantID, params.Days, params.BatchSize)
		if err != nil {
			return RetentionReport{}, fmt.Errorf("get old episodes: %w", err)
		}
		if len(episodes) > 0 {
			report.DistilledFacts = distillEpisodes(ctx, api, episodes, params.TenantID, params.DryRun, logger)
			for _, ep := range episodes {
				if ep.ID != "" {
					processedIDs = append(processedIDs, ep.ID)
				}
			}
			logger.Info("Distilled facts from old episodes",
				zap.Int("facts", report.DistilledFacts),
				zap.Int("episodes", len(episodes)))
		}
	}

	if !params.DryRun {
		deleted, err := api.RetentionCleanup(ctx, brain.RetentionCleanupRequest{
			TenantID:      params.TenantID,
			OlderThanDays: params.Days,
			// When facts were distilled, delete only those episodes so
			// undistilled ones survive to the next run.
			EpisodeIDs: processedIDs,
		})
		if err != nil {
			return RetentionReport{}, fmt.Errorf("retention cleanup: %w", err)
		}
		report.DeletedCount = deleted
		metrics.RetentionEpisodesDeleted.Add(float64(deleted))
	}

	report.DurationMS = time.Since(start).Milliseconds()
	logger.Info("Retention job complete",
		zap.Int("deleted", report.DeletedCount),
		zap.Int("distilled", report.DistilledFacts),
		zap.Int64("duration_ms", report.DurationMS))
	return report, nil
}

// distillEpisodes extracts facts per user and upserts them into entity
// memory. One failed upsert never blocks the others.
func distillEpisodes(ctx context.Context, api brain.API, episodes []brain.Episode, tenantID string, dryRun bool, logger *zap.Logger) int {
	byUser := make(map[string][]brain.Episode)
	var userOrder []string
	for _, ep := range episodes {
		uid := ep.UserID
		if uid == "" {
			uid = "unknown"
		}
		if _, seen := byUser[uid]; !seen {
			userOrder = append(userOrder, uid)
		}
		byUser[uid] = append(byUser[uid], ep)
	}

	sourceID := "retention:" + time.Now().UTC().Format("20060102")
	count := 0
	for _, userID := range userOrder {
		userEpisodes := byUser[userID]
		facts := extractFactsSimple(userEpisodes)

		if dryRun {
			logger.Info("Dry run: would distill facts",
				zap.String("user_id", userID),
				zap.Int("facts", len(facts)),
				zap.Int("episodes", len(userEpisodes)))
			count += len(facts)
			continue
		}

		for key, value := range facts {
			err := api.UpsertFact(ctx, brain.FactUpsert{
				TenantID:   tenantID,
				UserID:     userID,
				Key:        key,
				Value:      value,
				Confidence: 0.8, // distilled facts carry lower confidence
				SourceID:   sourceID,
			})
			if err != nil {
				logger.Warn("Failed to upsert distilled fact",
					zap.String("user_id", userID),
					zap.String("key", key),
					zap.Error(err))
				continue
			}
			count++
			metrics.RetentionFactsDistilled.Inc()
		}
	}
	return count
}

// extractFactsSimple derives summary facts from a user's episodes by
// heuristic: interaction counts, date range, distinct sessions.
func extractFactsSimple(episodes []brain.Episode) map[string]string {
	facts := map[string]string{
		"total_interactions": fmt.Sprintf("%d", len(episodes)),
	}

	var first, last time.Time
	for _, ep := range episodes {
		if ep.CreatedAt.IsZero() {
			continue
		}
		if first.IsZero() || ep.CreatedAt.Before(first) {
			first = ep.CreatedAt
		}
		if last.IsZero() || ep.CreatedAt.After(last) {
			last = ep.CreatedAt
		}
	}
	if !first.IsZero() {
		facts["first_interaction"] = first.UTC().Format(time.RFC3339)
		facts["last_interaction"] = last.UTC().Format(time.RFC3339)
	}

	sessions := make(map[string]struct{})
	for _, ep := range episodes {
		if ep.SessionID != "" {
			sessions[ep.SessionID] = struct{}{}
		}
	}
	if len(sessions) > 0 {
		facts["session_count"] = fmt.Sprintf("%d", len(sessions))
	}
	return facts
}
