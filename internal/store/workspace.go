// Package store owns the on-disk layout of a pipegate workspace.
//
// Layout:
//
//	<root>/.pipeline/
//	├── pipeline-state.json           ← shared config document
//	└── runs/{run_id}/
//	    ├── run-state.json
//	    ├── trace.jsonl
//	    ├── trace.summary.json
//	    ├── gates/
//	    ├── drift-reports/
//	    └── quality-reports/
//
// Runs never share a mutable file except pipeline-state.json, which is
// replaced atomically (last writer wins).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/sanitize"
)

const (
	pipelineDirName   = ".pipeline"
	pipelineStateFile = "pipeline-state.json"
	runStateFile      = "run-state.json"
	traceFile         = "trace.jsonl"
	summaryFile       = "trace.summary.json"
	gatesDir          = "gates"
)

// Workspace is a canonicalized workspace root.
type Workspace struct {
	Root string
}

// Open canonicalizes root and verifies it is a directory.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errcode.Wrap(errcode.BadInput, "open workspace", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, errcode.Wrap(errcode.BadInput, "open workspace", err)
	}
	if !info.IsDir() {
		return nil, errcode.BadInputf("workspace root is not a directory: %s", root)
	}
	return &Workspace{Root: real}, nil
}

// PipelineDir returns <root>/.pipeline.
func (w *Workspace) PipelineDir() string {
	return filepath.Join(w.Root, pipelineDirName)
}

// PipelineStatePath returns the shared config document path.
func (w *Workspace) PipelineStatePath() string {
	return filepath.Join(w.PipelineDir(), pipelineStateFile)
}

// RunDir returns the directory of a run after validating its id.
func (w *Workspace) RunDir(runID string) (string, error) {
	return w.resolveRun(runID)
}

// resolveRun confines .pipeline/runs/<runID>/<elems...> to the workspace
// root, so a run or gates directory replaced by a symlink cannot redirect
// writes outside it.
func (w *Workspace) resolveRun(runID string, elems ...string) (string, error) {
	if err := sanitize.ValidateRunID(runID); err != nil {
		return "", err
	}
	parts := append([]string{pipelineDirName, "runs", runID}, elems...)
	return w.Resolve(filepath.Join(parts...))
}

// EnsureRunDirs creates the run directory skeleton and returns the run dir.
func (w *Workspace) EnsureRunDirs(runID string) (string, error) {
	dir, err := w.RunDir(runID)
	if err != nil {
		return "", err
	}
	for _, sub := range []string{gatesDir, "drift-reports", "quality-reports"} {
		subDir, err := w.resolveRun(runID, sub)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(subDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return dir, nil
}

// TracePath returns the run's trace log path.
func (w *Workspace) TracePath(runID string) (string, error) {
	return w.resolveRun(runID, traceFile)
}

// SummaryPath returns the run's persisted trace summary path.
func (w *Workspace) SummaryPath(runID string) (string, error) {
	return w.resolveRun(runID, summaryFile)
}

// RunStatePath returns the run's state file path.
func (w *Workspace) RunStatePath(runID string) (string, error) {
	return w.resolveRun(runID, runStateFile)
}

// Resolve confines a workspace-relative reference to the root.
func (w *Workspace) Resolve(ref string) (string, error) {
	return sanitize.ResolveWithin(w.Root, ref)
}

// Relative returns the workspace-relative form of abs.
func (w *Workspace) Relative(abs string) (string, error) {
	return sanitize.Relative(w.Root, abs)
}

// ResolveArtifact resolves an artifact reference for a run. References
// starting with ".pipeline/" are workspace-relative; anything else is
// relative to the run directory. The run directories are created first.
func (w *Workspace) ResolveArtifact(runID, ref string) (string, error) {
	if ref == "" {
		return "", errcode.BadInputf("artifact reference is required")
	}
	if strings.HasPrefix(filepath.ToSlash(ref), pipelineDirName+"/") {
		return w.Resolve(ref)
	}
	dir, err := w.EnsureRunDirs(runID)
	if err != nil {
		return "", err
	}
	// Confine to the run directory first, then re-resolve from the root.
	if _, err := sanitize.ResolveWithin(dir, ref); err != nil {
		return "", err
	}
	return w.resolveRun(runID, ref)
}
