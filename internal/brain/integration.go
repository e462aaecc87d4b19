package brain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/metrics"
)

// StepRecord is one sub-agent lifecycle step to be written to episodic
// memory. Fields mirror the execution result rather than referencing it
// so this package stays free of executor types.
type StepRecord struct {
	SubagentID   string
	StepName     string
	DataType     string // text|json|code|image|audio|video|streaming_text
	Status       string
	Data         interface{}
	FileURL      string
	FilePath     string
	StreamURL    string
	Metadata     map[string]string
	TenantID     string
	SessionID    string
	TraceID      string
	ParentStepID string
}

// Integration records sub-agent steps in Brain. Recording never fails
// the caller: errors are logged and a locally generated episode id is
// returned regardless, so execution can always be correlated later.
type Integration struct {
	api    API
	logger *zap.Logger
}

// NewIntegration creates a step recorder backed by the given Brain API.
// A nil api disables recording (steps still get local episode ids).
func NewIntegration(api API, logger *zap.Logger) *Integration {
	return &Integration{api: api, logger: logger}
}

// RecordStep writes one step to episodic memory and returns its episode
// id. Always returns a non-empty id, even when Brain is down.
func (i *Integration) RecordStep(ctx context.Context, rec StepRecord) string {
	episodeID := uuid.New().String()

	if i.api == nil {
		i.logger.Debug("Brain client not configured, skipping step recording",
			zap.String("subagent_id", rec.SubagentID),
			zap.String("step", rec.StepName))
		return episodeID
	}

	tenantID := rec.TenantID
	if tenantID == "" {
		tenantID = "default"
	}

	meta := map[string]string{
		"subagent_id": rec.SubagentID,
		"step_name":   rec.StepName,
		"data_type":   rec.DataType,
		"status":      rec.Status,
	}
	if rec.ParentStepID != "" {
		meta["parent_step_id"] = rec.ParentStepID
	}
	for k, v := range rec.Metadata {
		meta[k] = v
	}

	req := AddEpisodeRequest{
		Episode: Episode{
			ID:        episodeID,
			UserID:    rec.SubagentID,
			TenantID:  tenantID,
			SessionID: rec.SessionID,
			Content:   formatStepContent(rec),
			Metadata:  meta,
		},
		Provenance: []string{fmt.Sprintf("subagent:%s:step:%s", rec.SubagentID, rec.StepName)},
		TraceID:    rec.TraceID,
	}

	if err := i.api.AddEpisode(ctx, req); err != nil {
		metrics.BrainStepsRecorded.WithLabelValues(rec.StepName, "error").Inc()
		i.logger.Error("Failed to record step in Brain",
			zap.String("subagent_id", rec.SubagentID),
			zap.String("step", rec.StepName),
			zap.Error(err))
		return episodeID
	}

	metrics.BrainStepsRecorded.WithLabelValues(rec.StepName, "ok").Inc()
	i.logger.Info("Recorded sub-agent step in Brain",
		zap.String("subagent_id", rec.SubagentID),
		zap.String("step", rec.StepName),
		zap.String("episode_id", episodeID))
	return episodeID
}

// formatStepContent renders the step into human-readable episode text,
// shaped by the result's data type.
func formatStepContent(rec StepRecord) string {
	switch rec.DataType {
	case "text":
		return fmt.Sprintf("[%s] %v", rec.StepName, rec.Data)
	case "json":
		pretty, err := json.MarshalIndent(rec.Data, "", "  ")
		if err != nil {
			return fmt.Sprintf("[%s] %v", rec.StepName, rec.Data)
		}
		return fmt.Sprintf("[%s] %s", rec.StepName, pretty)
	case "code":
		return fmt.Sprintf("[%s] Generated code:\n%v", rec.StepName, rec.Data)
	case "image":
		return fmt.Sprintf("[%s] Generated image: %s", rec.StepName, firstNonEmpty(rec.FileURL, rec.FilePath))
	case "audio":
		return fmt.Sprintf("[%s] Generated audio: %s", rec.StepName, firstNonEmpty(rec.FileURL, rec.FilePath))
	case "video":
		return fmt.Sprintf("[%s] Generated video: %s", rec.StepName, firstNonEmpty(rec.FileURL, rec.FilePath))
	case "streaming_text":
		return fmt.Sprintf("[%s] Streaming response: %s", rec.StepName, rec.StreamURL)
	default:
		return fmt.Sprintf("[%s] %s", rec.StepName, rec.Status)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
