package store

import (
	"time"

	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
)

// RunState is the per-run record advanced by the runner after every phase.
type RunState struct {
	RunID          string            `json:"run_id"`
	ConfigID       pipeline.ConfigID `json:"config_id,omitempty"`
	CurrentPhase   pipeline.Phase    `json:"current_phase,omitempty"`
	CompletedGates []string          `json:"completed_gates"`
	Artifacts      Artifacts         `json:"artifacts"`
	WorkspaceHead  string            `json:"workspace_head,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Artifacts maps artifact kinds to workspace-relative references.
type Artifacts struct {
	Brief          string   `json:"brief,omitempty"`
	Design         string   `json:"design,omitempty"`
	Review         string   `json:"review,omitempty"`
	Plan           string   `json:"plan,omitempty"`
	DriftReports   []string `json:"drift_reports,omitempty"`
	QualityReports []string `json:"quality_reports,omitempty"`
}

// NewRunState returns an empty state for runID.
func NewRunState(runID string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		RunID:          runID,
		CompletedGates: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordArtifact stores ref in the slot the phase writes. Drift and quality
// reports accumulate; the other slots are replaced.
func (s *RunState) RecordArtifact(p pipeline.Phase, ref string) {
	switch p.ArtifactKey() {
	case "brief":
		s.Artifacts.Brief = ref
	case "design":
		s.Artifacts.Design = ref
	case "review":
		s.Artifacts.Review = ref
	case "plan":
		s.Artifacts.Plan = ref
	case "drift_reports":
		s.Artifacts.DriftReports = append(s.Artifacts.DriftReports, ref)
	case "quality_reports":
		s.Artifacts.QualityReports = append(s.Artifacts.QualityReports, ref)
	}
}

// LatestDriftReport returns the most recent drift report reference.
func (s *RunState) LatestDriftReport() string {
	if n := len(s.Artifacts.DriftReports); n > 0 {
		return s.Artifacts.DriftReports[n-1]
	}
	return ""
}

// CompleteGate appends gateID to the completed set, keeping first-seen order
// and dropping duplicates.
func (s *RunState) CompleteGate(gateID string) {
	for _, id := range s.CompletedGates {
		if id == gateID {
			return
		}
	}
	s.CompletedGates = append(s.CompletedGates, gateID)
}

// LoadRunState reads a run's state, returning a fresh state when none has
// been written yet.
func (w *Workspace) LoadRunState(runID string) (*RunState, error) {
	path, err := w.RunStatePath(runID)
	if err != nil {
		return nil, err
	}
	state := NewRunState(runID)
	found, err := ReadJSON(path, state)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewRunState(runID), nil
	}
	state.RunID = runID
	if state.CompletedGates == nil {
		state.CompletedGates = []string{}
	}
	return state, nil
}

// RunStateExists reports whether the run has persisted state.
func (w *Workspace) RunStateExists(runID string) (bool, error) {
	path, err := w.RunStatePath(runID)
	if err != nil {
		return false, err
	}
	var doc map[string]any
	return ReadJSON(path, &doc)
}

// SaveRunState persists state atomically.
func (w *Workspace) SaveRunState(state *RunState) error {
	path, err := w.RunStatePath(state.RunID)
	if err != nil {
		return err
	}
	state.UpdatedAt = time.Now().UTC()
	return WriteJSON(path, state)
}
