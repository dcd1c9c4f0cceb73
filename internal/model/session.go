package model

import "time"

// SessionStatus is the lifecycle state of an extraction session.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusRunning SessionStatus = "running"
	StatusSuccess SessionStatus = "success"
	StatusFailure SessionStatus = "failure"
	StatusPartial SessionStatus = "partial"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusPartial:
		return true
	default:
		return false
	}
}

// StepTag identifies a phase of the extraction workflow.
type StepTag string

// Workflow steps in expected order. StepError is reachable from any step.
const (
	StepInit              StepTag = "init"
	StepPreProcessing     StepTag = "pre_processing"
	StepAPIConnect        StepTag = "api_connect"
	StepMetadataRequest   StepTag = "metadata_request"
	StepMetadataResponse  StepTag = "metadata_response"
	StepLineItemsRequest  StepTag = "line_items_request"
	StepLineItemsResponse StepTag = "line_items_response"
	StepParsing           StepTag = "parsing"
	StepValidation        StepTag = "validation"
	StepComplete          StepTag = "complete"
	StepError             StepTag = "error"
)

// TokenMetrics is the usage breakdown attached to a request/response event.
type TokenMetrics struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TraceEvent is one immutable entry in a session's trace. Elapsed and delta
// values are computed when the event is logged, never retroactively.
type TraceEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Step      StepTag        `json:"step"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Tokens    *TokenMetrics  `json:"tokens,omitempty"`

	ElapsedMs         int64 `json:"elapsed_ms"`
	DeltaMsFromPrevMs int64 `json:"delta_ms_from_previous"`
}

// SessionMetrics aggregates usage across a session.
type SessionMetrics struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	DurationMs   int64   `json:"duration_ms"`
}

// TimeoutConfig carries advisory ceilings used to render countdowns. Neither
// value aborts an in-flight call.
type TimeoutConfig struct {
	ServerCeiling  time.Duration `json:"server_ceiling"`
	PerCallCeiling time.Duration `json:"per_call_ceiling"`
}

// ExtractionSession records one extraction attempt end to end. Status only
// moves forward: running to exactly one of success, failure, or partial.
type ExtractionSession struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	Status      SessionStatus `json:"status"`
	CurrentStep StepTag       `json:"current_step"`
	Events      []TraceEvent  `json:"events"`

	Metrics      SessionMetrics `json:"metrics"`
	PayloadBytes int64          `json:"payload_bytes"`
	FileCount    int            `json:"file_count"`
	Timeouts     TimeoutConfig  `json:"timeouts"`
}

// Clone returns a deep copy so observers cannot mutate the live session.
func (s *ExtractionSession) Clone() *ExtractionSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Events = make([]TraceEvent, len(s.Events))
	copy(cp.Events, s.Events)
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// PartialExtractionData is a best-effort snapshot of whatever was parsed
// before a failure. Its lifecycle is independent of the session: it survives
// a failed run and is cleared on the next successful run or an explicit
// history clear.
type PartialExtractionData struct {
	Metadata  *InvoiceRecord `json:"metadata,omitempty"`
	LineItems []LineItem     `json:"lineItems,omitempty"`
	SavedAt   time.Time      `json:"savedAt"`
}

// Empty reports whether no partial content was captured.
func (p *PartialExtractionData) Empty() bool {
	return p == nil || (p.Metadata == nil && len(p.LineItems) == 0)
}
