// Package subagents executes delegated agent tasks in isolated
// environments, with security validation up front and lifecycle steps
// recorded in Brain.
package subagents

// DataType classifies what a sub-agent produced.
type DataType string

const (
	DataTypeText          DataType = "text"
	DataTypeStreamingText DataType = "streaming_text"
	DataTypeImage         DataType = "image"
	DataTypeVideo         DataType = "video"
	DataTypeAudio         DataType = "audio"
	DataTypeSpatial       DataType = "spatial"
	DataTypeBinary        DataType = "binary"
	DataTypeJSON          DataType = "json"
	DataTypeCode          DataType = "code"
	DataTypeFile          DataType = "file"
)

// Execution statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStreaming = "streaming"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
	StatusUnknown   = "unknown"
)

// Result is what a sub-agent produced, shaped by its data type.
type Result struct {
	SubagentID string      `json:"subagent_id"`
	Status     string      `json:"status"`
	DataType   DataType    `json:"data_type"`
	Data       interface{} `json:"data,omitempty"`

	// Streaming outputs
	StreamURL   string `json:"stream_url,omitempty"`
	StreamToken string `json:"stream_token,omitempty"`

	// File outputs
	FilePath string `json:"file_path,omitempty"`
	FileURL  string `json:"file_url,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsolationContext identifies who a sub-agent runs for.
type IsolationContext struct {
	TenantID      string `json:"tenant_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
	ParentAgentID string `json:"parent_agent_id,omitempty"`
	SubagentID    string `json:"subagent_id"`
}

// ExecutionOutcome is the structured outcome returned to callers.
// Failures inside the agent become a "failed" outcome; only
// authorization errors surface as Go errors from the executor.
type ExecutionOutcome struct {
	Status     string  `json:"status"`
	SubagentID string  `json:"subagent_id"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
}
