package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/policy"
)

// Feature flag names read by the runner.
const (
	FlagTrace          = "trace_v1"
	FlagEvaluation     = "evaluation_v1"
	FlagContextBudget  = "context_budget_v1"
	FlagTraceability   = "traceability_v1"
	FlagDriftBenchmark = "drift_benchmark_v1"
)

const defaultFilesMax = 64

// PipelineConfig is the "config" section of pipeline-state.json. It is
// loaded once per invocation and passed explicitly to the runner.
type PipelineConfig struct {
	FeatureFlags        map[string]Flag     `json:"feature_flags,omitempty"`
	OrchestrationPolicy OrchestrationPolicy `json:"orchestration_policy"`
	ContextBudgets      map[string]Budget   `json:"context_budgets,omitempty"`
}

// OrchestrationPolicy holds the fanout tradeoff settings. Nil fields fall
// back to the policy engine's defaults.
type OrchestrationPolicy = policy.Policy

// Flag is a leniently parsed feature flag: JSON booleans, or the strings
// 1/true/yes/on and 0/false/no/off. Anything else is false.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Flag(ParseFlag(v))
	return nil
}

// ParseFlag applies the lenient flag rules to a decoded JSON value.
func ParseFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(t) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

// Enabled reports whether the named flag is on.
func (c *PipelineConfig) Enabled(name string) bool {
	if c == nil {
		return false
	}
	return bool(c.FeatureFlags[name])
}

// SetFlag sets a feature flag, allocating the map when needed.
func (c *PipelineConfig) SetFlag(name string, on bool) {
	if c.FeatureFlags == nil {
		c.FeatureFlags = make(map[string]Flag)
	}
	c.FeatureFlags[name] = Flag(on)
}

// Budget is a raw context budget: either a bare token count or an object
// with token/file limits.
type Budget struct {
	raw json.RawMessage
}

// NewBudget builds a Budget from any JSON-encodable value.
func NewBudget(v any) (Budget, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Budget{}, err
	}
	return Budget{raw: data}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Budget) UnmarshalJSON(data []byte) error {
	b.raw = append(b.raw[:0], data...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b Budget) MarshalJSON() ([]byte, error) {
	if len(b.raw) == 0 {
		return []byte("null"), nil
	}
	return b.raw, nil
}

// ContextBudget is a resolved per-phase context limit.
type ContextBudget struct {
	TokenMax float64 `json:"token_max"`
	FilesMax int     `json:"files_max"`
}

// resolve interprets the raw budget. Numbers are token limits with the
// default file limit; objects read token_max|max_tokens|token_estimate and
// files_max|max_files.
func (b Budget) resolve() (ContextBudget, bool) {
	var v any
	if len(b.raw) == 0 || json.Unmarshal(b.raw, &v) != nil {
		return ContextBudget{}, false
	}
	switch t := v.(type) {
	case float64:
		return ContextBudget{TokenMax: t, FilesMax: defaultFilesMax}, true
	case map[string]any:
		tokens := finiteOr(coalesce(t["token_max"], t["max_tokens"], t["token_estimate"]), 0)
		files := math.Trunc(finiteOr(coalesce(t["files_max"], t["max_files"]), defaultFilesMax))
		return ContextBudget{TokenMax: tokens, FilesMax: int(math.Max(1, files))}, true
	}
	return ContextBudget{}, false
}

// BudgetFor returns the context budget configured for a phase, falling back
// to the phase's budget key (build_lead for build).
func (c *PipelineConfig) BudgetFor(p pipeline.Phase) (ContextBudget, bool) {
	if c == nil || c.ContextBudgets == nil {
		return ContextBudget{}, false
	}
	for _, key := range []string{string(p), p.BudgetKey()} {
		if b, ok := c.ContextBudgets[key]; ok && !b.isNull() {
			return b.resolve()
		}
	}
	return ContextBudget{}, false
}

func (b Budget) isNull() bool {
	return len(b.raw) == 0 || string(b.raw) == "null"
}

func coalesce(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// finiteOr converts JSON numbers and numeric strings, falling back when the
// value is not a finite number.
func finiteOr(v any, fallback float64) float64 {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case bool:
		if t {
			n = 1
		}
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fallback
		}
		n = parsed
	default:
		return fallback
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fallback
	}
	return n
}

// LoadPipelineConfig reads the config section of pipeline-state.json. A
// missing document is E_BAD_INPUT; run init-run first.
func (w *Workspace) LoadPipelineConfig() (*PipelineConfig, error) {
	doc, found, err := w.readPipelineDocument()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errcode.BadInputf("pipeline state not found: %s", w.PipelineStatePath())
	}
	cfg := &PipelineConfig{}
	if raw, ok := doc["config"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, errcode.Wrap(errcode.BadInput, "parse pipeline config", err)
		}
	}
	return cfg, nil
}

// PipelineConfigExists reports whether pipeline-state.json is present.
func (w *Workspace) PipelineConfigExists() (bool, error) {
	_, found, err := w.readPipelineDocument()
	return found, err
}

// SavePipelineConfig replaces the config section, preserving any other top
// level keys written by external tools.
func (w *Workspace) SavePipelineConfig(cfg *PipelineConfig) error {
	doc, _, err := w.readPipelineDocument()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline config: %w", err)
	}
	doc["config"] = raw
	return WriteJSON(w.PipelineStatePath(), doc)
}

func (w *Workspace) readPipelineDocument() (map[string]json.RawMessage, bool, error) {
	var doc map[string]json.RawMessage
	found, err := ReadJSON(w.PipelineStatePath(), &doc)
	if err != nil {
		return nil, found, err
	}
	return doc, found, nil
}
