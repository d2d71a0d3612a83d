package taskset

import (
	"errors"

	"github.com/fyrsmithlabs/pipegate/internal/gate"
)

// Drift statuses a profile may force on synthesized drift claims.
const (
	DriftVerified     = "verified"
	DriftPartial      = "partial"
	DriftViolated     = "violated"
	DriftUnverifiable = "unverifiable"
)

// Drift adjudication modes.
const (
	DriftModeHeuristic     = "heuristic"
	DriftModeDualExtractor = "dual-extractor"
)

// Profile steers one stage of a run. Unset fields fall back to the runner's
// defaults.
type Profile struct {
	GateStatus string `json:"gate_status,omitempty" yaml:"gate_status,omitempty"`

	RequestedFanout  *float64 `json:"requested_fanout,omitempty" yaml:"requested_fanout,omitempty"`
	QualityGain      *float64 `json:"quality_gain,omitempty" yaml:"quality_gain,omitempty"`
	CostPerAgentUSD  *float64 `json:"cost_per_agent_usd,omitempty" yaml:"cost_per_agent_usd,omitempty"`
	CoordinationCost *float64 `json:"coordination_cost,omitempty" yaml:"coordination_cost,omitempty"`

	FilesLoaded            *float64 `json:"files_loaded,omitempty" yaml:"files_loaded,omitempty"`
	TokenEstimate          *float64 `json:"token_estimate,omitempty" yaml:"token_estimate,omitempty"`
	CharCountEstimate      *float64 `json:"char_count_estimate,omitempty" yaml:"char_count_estimate,omitempty"`
	ContextManifestPresent *bool    `json:"context_manifest_present,omitempty" yaml:"context_manifest_present,omitempty"`

	TraceabilityGap bool   `json:"traceability_gap,omitempty" yaml:"traceability_gap,omitempty"`
	DriftStatus     string `json:"drift_status,omitempty" yaml:"drift_status,omitempty"`
	DriftMode       string `json:"drift_mode,omitempty" yaml:"drift_mode,omitempty"`
}

// Merge overlays next on p: every field set in next replaces p's value.
func (p Profile) Merge(next Profile) Profile {
	out := p
	if next.GateStatus != "" {
		out.GateStatus = next.GateStatus
	}
	overlay(&out.RequestedFanout, next.RequestedFanout)
	overlay(&out.QualityGain, next.QualityGain)
	overlay(&out.CostPerAgentUSD, next.CostPerAgentUSD)
	overlay(&out.CoordinationCost, next.CoordinationCost)
	overlay(&out.FilesLoaded, next.FilesLoaded)
	overlay(&out.TokenEstimate, next.TokenEstimate)
	overlay(&out.CharCountEstimate, next.CharCountEstimate)
	if next.ContextManifestPresent != nil {
		out.ContextManifestPresent = next.ContextManifestPresent
	}
	if next.TraceabilityGap {
		out.TraceabilityGap = true
	}
	if next.DriftStatus != "" {
		out.DriftStatus = next.DriftStatus
	}
	if next.DriftMode != "" {
		out.DriftMode = next.DriftMode
	}
	return out
}

func overlay(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// DesiredStatus is the gate status the profile asks for, or pass.
func (p Profile) DesiredStatus() gate.Status {
	if s, err := gate.ParseStatus(p.GateStatus); err == nil {
		return s
	}
	return gate.StatusPass
}

// ManifestPresent reports whether a context manifest should be attached.
func (p Profile) ManifestPresent() bool {
	return p.ContextManifestPresent == nil || *p.ContextManifestPresent
}

func (p Profile) validate() error {
	if p.GateStatus != "" {
		if _, err := gate.ParseStatus(p.GateStatus); err != nil {
			return errors.New("gate_status must be pass|warn|fail")
		}
	}
	if p.RequestedFanout != nil && *p.RequestedFanout < 1 {
		return errors.New("requested_fanout must be >= 1")
	}
	switch p.DriftStatus {
	case "", DriftVerified, DriftPartial, DriftViolated, DriftUnverifiable:
	default:
		return errors.New("drift_status must be verified|partial|violated|unverifiable")
	}
	switch p.DriftMode {
	case "", DriftModeHeuristic, DriftModeDualExtractor:
	default:
		return errors.New("drift_mode must be heuristic|dual-extractor")
	}
	return nil
}
