package store

import (
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/sanitize"
)

// GateKind distinguishes the gate files a phase may produce.
type GateKind string

const (
	GatePrimary       GateKind = "phase"
	GateContextBudget GateKind = "context_budget"
	GateTraceability  GateKind = "traceability"
)

// GateFileName returns the deterministic gate file name for a phase.
func GateFileName(p pipeline.Phase, kind GateKind) string {
	switch kind {
	case GateContextBudget:
		return string(p) + "-context-budget-gate.json"
	case GateTraceability:
		return string(p) + "-traceability-gate.json"
	}
	if p == pipeline.PostBuild {
		return "postbuild-gate.json"
	}
	return string(p) + "-gate.json"
}

// GateID returns the gate id written into a phase's gate of the given kind.
func GateID(p pipeline.Phase, kind GateKind) string {
	switch kind {
	case GateContextBudget:
		return string(p) + "-context-budget-gate"
	case GateTraceability:
		return string(p) + "-traceability-gate"
	}
	return string(p) + "-gate"
}

// GatePath validates fileName and resolves it under the run's gates dir.
func (w *Workspace) GatePath(runID, fileName string) (string, error) {
	if err := sanitize.ValidateGateFileName(fileName); err != nil {
		return "", err
	}
	if _, err := w.EnsureRunDirs(runID); err != nil {
		return "", err
	}
	return w.resolveRun(runID, gatesDir, fileName)
}

// WriteGate persists a gate document.
func (w *Workspace) WriteGate(runID, fileName string, gate any) error {
	path, err := w.GatePath(runID, fileName)
	if err != nil {
		return err
	}
	return WriteJSON(path, gate)
}

// ReadGate loads a gate document into v. found is false when no gate has
// been written under that name.
func (w *Workspace) ReadGate(runID, fileName string, v any) (found bool, err error) {
	path, err := w.GatePath(runID, fileName)
	if err != nil {
		return false, err
	}
	return ReadJSON(path, v)
}
