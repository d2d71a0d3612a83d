// Package trace records the append-only execution trace of a run and
// summarizes it.
//
// Each run has one trace.jsonl file under its run directory. Lines are
// self-contained JSON objects; the file is only ever appended to.
package trace

import (
	"encoding/json"
)

// Kind is the type of a trace event.
type Kind string

const (
	RunStart      Kind = "run_start"
	RunEnd        Kind = "run_end"
	PhaseStart    Kind = "phase_start"
	PhaseEnd      Kind = "phase_end"
	ArtifactRead  Kind = "artifact_read"
	ArtifactWrite Kind = "artifact_write"
	GateResult    Kind = "gate_result"
	Retry         Kind = "retry"
	AgentCall     Kind = "agent_call"
	Error         Kind = "error"
)

// Event statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusRetry = "retry"
)

// Event is one trace record.
type Event struct {
	TS          string         `json:"ts"`
	RunID       string         `json:"run_id"`
	Event       Kind           `json:"event"`
	Phase       string         `json:"phase"`
	Status      string         `json:"status,omitempty"`
	ArtifactRef string         `json:"artifact_ref,omitempty"`
	GateID      string         `json:"gate_id,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	Message     string         `json:"message,omitempty"`
	TokensIn    *float64       `json:"tokens_in,omitempty"`
	TokensOut   *float64       `json:"tokens_out,omitempty"`
	CostUSD     *float64       `json:"cost_usd,omitempty"`
	DurationMS  *float64       `json:"duration_ms,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	raw map[string]any
}

// Raw returns the decoded line an event was read from, or nil for events
// built in memory.
func (e Event) Raw() map[string]any {
	return e.raw
}

// UnmarshalJSON decodes leniently: fields with unexpected types are left
// empty rather than failing the whole line, and the raw object is kept for
// schema validation.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{
		TS:          str(raw["ts"]),
		RunID:       str(raw["run_id"]),
		Event:       Kind(str(raw["event"])),
		Phase:       str(raw["phase"]),
		Status:      str(raw["status"]),
		ArtifactRef: str(raw["artifact_ref"]),
		GateID:      str(raw["gate_id"]),
		ToolName:    str(raw["tool_name"]),
		Message:     str(raw["message"]),
		TokensIn:    num(raw["tokens_in"]),
		TokensOut:   num(raw["tokens_out"]),
		CostUSD:     num(raw["cost_usd"]),
		DurationMS:  num(raw["duration_ms"]),
		raw:         raw,
	}
	if m, ok := raw["metadata"].(map[string]any); ok {
		e.Metadata = m
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) *float64 {
	if n, ok := v.(float64); ok {
		return &n
	}
	return nil
}
