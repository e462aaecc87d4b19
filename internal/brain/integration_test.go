package brain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	episodes []AddEpisodeRequest
	addErr   error
}

func (f *fakeAPI) AddEpisode(_ context.Context, req AddEpisodeRequest) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.episodes = append(f.episodes, req)
	return nil
}

func (f *fakeAPI) GetEpisodeStats(context.Context, string) (EpisodeStats, error) {
	return EpisodeStats{}, nil
}

func (f *fakeAPI) GetOldEpisodes(context.Context, string, int, int) ([]Episode, error) {
	return nil, nil
}

func (f *fakeAPI) UpsertFact(context.Context, FactUpsert) error { return nil }

func (f *fakeAPI) RetentionCleanup(context.Context, RetentionCleanupRequest) (int, error) {
	return 0, nil
}

func (f *fakeAPI) Close() error { return nil }

func TestRecordStepWritesEpisode(t *testing.T) {
	api := &fakeAPI{}
	integ := NewIntegration(api, zap.NewNop())

	id := integ.RecordStep(context.Background(), StepRecord{
		SubagentID: "sa-1",
		StepName:   "execute",
		DataType:   "text",
		Status:     "completed",
		Data:       "hello",
		TenantID:   "acme",
		SessionID:  "sess-9",
		Metadata:   map[string]string{"model": "small"},
	})

	assert.NotEmpty(t, id)
	require.Len(t, api.episodes, 1)
	ep := api.episodes[0].Episode
	assert.Equal(t, "sa-1", ep.UserID, "subagent id doubles as episode user id")
	assert.Equal(t, "acme", ep.TenantID)
	assert.Equal(t, "[execute] hello", ep.Content)
	assert.Equal(t, "completed", ep.Metadata["status"])
	assert.Equal(t, "small", ep.Metadata["model"])
	assert.Equal(t, []string{"subagent:sa-1:step:execute"}, api.episodes[0].Provenance)
}

func TestRecordStepNeverFails(t *testing.T) {
	api := &fakeAPI{addErr: errors.New("brain unreachable")}
	integ := NewIntegration(api, zap.NewNop())

	id := integ.RecordStep(context.Background(), StepRecord{
		SubagentID: "sa-2",
		StepName:   "execute",
		DataType:   "text",
	})
	assert.NotEmpty(t, id, "recording failure must still yield a local episode id")
}

func TestRecordStepNilAPIStillReturnsID(t *testing.T) {
	integ := NewIntegration(nil, zap.NewNop())
	id := integ.RecordStep(context.Background(), StepRecord{SubagentID: "sa-3", StepName: "start"})
	assert.NotEmpty(t, id)
}

func TestRecordStepDefaultsTenant(t *testing.T) {
	api := &fakeAPI{}
	integ := NewIntegration(api, zap.NewNop())

	integ.RecordStep(context.Background(), StepRecord{SubagentID: "sa-4", StepName: "start", DataType: "text"})
	require.Len(t, api.episodes, 1)
	assert.Equal(t, "default", api.episodes[0].Episode.TenantID)
}

func TestFormatStepContentByDataType(t *testing.T) {
	cases := []struct {
		name string
		rec  StepRecord
		want string
	}{
		{"code", StepRecord{StepName: "gen", DataType: "code", Data: "x = 1"}, "[gen] Generated code:\nx = 1"},
		{"image url wins", StepRecord{StepName: "img", DataType: "image", FileURL: "https://x/img.png", FilePath: "/tmp/img.png"}, "[img] Generated image: https://x/img.png"},
		{"image path fallback", StepRecord{StepName: "img", DataType: "image", FilePath: "/tmp/img.png"}, "[img] Generated image: /tmp/img.png"},
		{"streaming", StepRecord{StepName: "chat", DataType: "streaming_text", StreamURL: "wss://x/s"}, "[chat] Streaming response: wss://x/s"},
		{"unknown falls back to status", StepRecord{StepName: "odd", DataType: "binary", Status: "completed"}, "[odd] completed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatStepContent(tc.rec))
		})
	}
}
