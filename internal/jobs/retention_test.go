package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/brain"
)

type fakeBrain struct {
	stats      brain.EpisodeStats
	statsErr   error
	old        []brain.Episode
	facts      []brain.FactUpsert
	upsertErr  map[string]error // key → error
	cleanups   []brain.RetentionCleanupRequest
	cleanupRet int
}

func (f *fakeBrain) AddEpisode(context.Context, brain.AddEpisodeRequest) error { return nil }

func (f *fakeBrain) GetEpisodeStats(context.Context, string) (brain.EpisodeStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeBrain) GetOldEpisodes(context.Context, string, int, int) ([]brain.Episode, error) {
	return f.old, nil
}

func (f *fakeBrain) UpsertFact(_ context.Context, fact brain.FactUpsert) error {
	if err := f.upsertErr[fact.Key]; err != nil {
		return err
	}
	f.facts = append(f.facts, fact)
	return nil
}

func (f *fakeBrain) RetentionCleanup(_ context.Context, req brain.RetentionCleanupRequest) (int, error) {
	f.cleanups = append(f.cleanups, req)
	return f.cleanupRet, nil
}

func (f *fakeBrain) Close() error { return nil }

func TestRunRetentionEmptyTenantShortCircuits(t *testing.T) {
	fb := &fakeBrain{stats: brain.EpisodeStats{Total: 0}}
	report, err := RunRetention(context.Background(), fb, RetentionParams{TenantID: "acme"}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalBefore)
	assert.Equal(t, 0, report.DeletedCount)
	assert.Empty(t, fb.cleanups, "nothing to delete means no cleanup call")
}

func TestRunRetentionDeletesWithoutDistill(t *testing.T) {
	fb := &fakeBrain{stats: brain.EpisodeStats{Total: 250}, cleanupRet: 250}
	report, err := RunRetention(context.Background(), fb, RetentionParams{TenantID: "acme", Days: 14}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 250, report.DeletedCount)
	require.Len(t, fb.cleanups, 1)
	assert.Equal(t, 14, fb.cleanups[0].OlderThanDays)
	assert.Empty(t, fb.cleanups[0].EpisodeIDs, "no distillation means bulk delete by age")
}

func TestRunRetentionDistillsThenDeletesProcessedOnly(t *testing.T) {
	now := time.Now().UTC()
	fb := &fakeBrain{
		stats:      brain.EpisodeStats{Total: 3},
		cleanupRet: 2,
		old: []brain.Episode{
			{ID: "e1", UserID: "u1", SessionID: "s1", CreatedAt: now.Add(-48 * time.Hour)},
			{ID: "e2", UserID: "u1", SessionID: "s2", CreatedAt: now.Add(-24 * time.Hour)},
		},
	}

	report, err := RunRetention(context.Background(), fb, RetentionParams{
		TenantID: "acme", Distill: true,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 4, report.DistilledFacts, "count, first, last, sessions")
	require.Len(t, fb.cleanups, 1)
	assert.Equal(t, []string{"e1", "e2"}, fb.cleanups[0].EpisodeIDs,
		"only distilled episodes may be deleted")

	byKey := map[string]string{}
	for _, f := range fb.facts {
		byKey[f.Key] = f.Value
		assert.Equal(t, 0.8, f.Confidence)
		assert.Equal(t, "u1", f.UserID)
	}
	assert.Equal(t, "2", byKey["total_interactions"])
	assert.Equal(t, "2", byKey["session_count"])
}

func TestRunRetentionDryRunDeletesNothing(t *testing.T) {
	fb := &fakeBrain{
		stats: brain.EpisodeStats{Total: 5},
		old:   []brain.Episode{{ID: "e1", UserID: "u1"}},
	}

	report, err := RunRetention(context.Background(), fb, RetentionParams{
		TenantID: "acme", Distill: true, DryRun: true,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 0, report.DeletedCount)
	assert.Empty(t, fb.cleanups)
	assert.Empty(t, fb.facts, "dry run counts facts without writing them")
	assert.Equal(t, 1, report.DistilledFacts)
}

func TestRunRetentionFactFailureIsolated(t *testing.T) {
	fb := &fakeBrain{
		stats:     brain.EpisodeStats{Total: 2},
		old:       []brain.Episode{{ID: "e1", UserID: "u1", SessionID: "s1", CreatedAt: time.Now()}},
		upsertErr: map[string]error{"total_interactions": errors.New("entity store down")},
	}

	report, err := RunRetention(context.Background(), fb, RetentionParams{
		TenantID: "acme", Distill: true,
	}, zap.NewNop())
	require.NoError(t, err, "a failed fact upsert must not fail the run")
	assert.Equal(t, 3, report.DistilledFacts, "remaining facts still land")
}

func TestRunRetentionStatsErrorFailsRun(t *testing.T) {
	fb := &fakeBrain{statsErr: errors.New("brain unreachable")}
	_, err := RunRetention(context.Background(), fb, RetentionParams{}, zap.NewNop())
	assert.Error(t, err)
}

func TestExtractFactsSimpleEmpty(t *testing.T) {
	facts := extractFactsSimple(nil)
	assert.Equal(t, map[string]string{"total_interactions": "0"}, facts)
}

func TestExtractFactsDateRange(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	facts := extractFactsSimple([]brain.Episode{
		{CreatedAt: late},
		{CreatedAt: early},
	})
	assert.Equal(t, early.Format(time.RFC3339), facts["first_interaction"])
	assert.Equal(t, late.Format(time.RFC3339), facts["last_interaction"])
	assert.NotContains(t, facts, "session_count", "no sessions seen, no fact emitted")
}
