// Package taskset loads evaluation tasksets and derives per-phase stage
// profiles from them.
//
// A taskset lists tasks with their must-requirement ids and optional
// overrides keyed by phase, and by config id then phase. The runner merges
// both into a Profile that steers gate status, fanout inputs and artifact
// synthesis for one stage.
package taskset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/store"
)

// DefaultRequirementID stands in when a task names no must requirements.
const DefaultRequirementID = "REQ-001"

// Taskset is a named list of evaluation tasks.
type Taskset struct {
	ID          string `json:"taskset_id" yaml:"taskset_id"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Tasks       []Task `json:"tasks" yaml:"tasks"`
}

// Task is one evaluation task.
type Task struct {
	ID                 string                        `json:"id" yaml:"id"`
	Title              string                        `json:"title" yaml:"title"`
	MustRequirementIDs []string                      `json:"must_requirement_ids" yaml:"must_requirement_ids"`
	StageOverrides     map[string]Profile            `json:"stage_overrides,omitempty" yaml:"stage_overrides,omitempty"`
	ConfigOverrides    map[string]map[string]Profile `json:"config_overrides,omitempty" yaml:"config_overrides,omitempty"`
}

// Selection is a loaded taskset with the task chosen for a run.
type Selection struct {
	Taskset *Taskset
	Task    *Task

	// Path is the taskset's workspace-relative path.
	Path string
}

// Load reads the taskset at ref (JSON, or YAML for .yaml/.yml) inside the
// workspace, validates it and selects taskID, or the first task when taskID
// is empty.
func Load(ws *store.Workspace, ref, taskID string) (*Selection, error) {
	abs, err := ws.Resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errcode.BadInputf("taskset not found: %s", ref)
		}
		return nil, fmt.Errorf("failed to read taskset: %w", err)
	}
	ts, err := Parse(data, filepath.Ext(abs))
	if err != nil {
		return nil, err
	}
	if len(ts.Tasks) == 0 {
		return nil, errcode.BadInputf("taskset has no tasks: %s", ref)
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}

	task, err := ts.Select(taskID)
	if err != nil {
		return nil, err
	}
	rel, err := ws.Relative(abs)
	if err != nil {
		return nil, err
	}
	return &Selection{Taskset: ts, Task: task, Path: rel}, nil
}

// Parse decodes a taskset. ext selects YAML for ".yaml" and ".yml"; anything
// else is JSON.
func Parse(data []byte, ext string) (*Taskset, error) {
	var ts Taskset
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ts); err != nil {
			return nil, errcode.BadInputf("invalid taskset YAML: %v", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&ts); err != nil {
			return nil, errcode.BadInputf("invalid taskset JSON: %v", err)
		}
	}
	return &ts, nil
}

// Select returns the task with id, or the first task when id is empty.
func (ts *Taskset) Select(id string) (*Task, error) {
	if len(ts.Tasks) == 0 {
		return nil, errcode.BadInputf("taskset has no tasks: %s", ts.ID)
	}
	if id == "" {
		return &ts.Tasks[0], nil
	}
	for i := range ts.Tasks {
		if ts.Tasks[i].ID == id {
			return &ts.Tasks[i], nil
		}
	}
	return nil, errcode.BadInputf("task id not found in taskset: %s", id)
}

// Validate checks the structural rules a taskset must satisfy.
func (ts *Taskset) Validate() error {
	if ts.ID == "" {
		return errcode.BadInputf("taskset_id is required")
	}
	if len(ts.Tasks) == 0 {
		return errcode.BadInputf("tasks must be a non-empty array")
	}
	for _, task := range ts.Tasks {
		if task.ID == "" {
			return errcode.BadInputf("task.id is required")
		}
		if task.Title == "" {
			return errcode.BadInputf("task.title is required for %s", task.ID)
		}
		if len(task.MustRequirementIDs) == 0 {
			return errcode.BadInputf("task.must_requirement_ids must be non-empty for %s", task.ID)
		}
		if err := validateStageMap(task.StageOverrides, fmt.Sprintf("task(%s).stage_overrides", task.ID)); err != nil {
			return err
		}
		for configID, stages := range task.ConfigOverrides {
			if _, err := pipeline.ParseConfigID(configID); err != nil || configID == "" {
				return errcode.BadInputf("task(%s).config_overrides has unsupported config %s", task.ID, configID)
			}
			label := fmt.Sprintf("task(%s).config_overrides.%s", task.ID, configID)
			if err := validateStageMap(stages, label); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStageMap(stages map[string]Profile, label string) error {
	for phase, p := range stages {
		if _, err := pipeline.Parse(phase); err != nil {
			return errcode.BadInputf("%s contains unsupported phase: %s", label, phase)
		}
		if err := p.validate(); err != nil {
			return errcode.BadInputf("%s.%s.%v", label, phase, err)
		}
	}
	return nil
}

// RequirementIDs returns the task's non-empty must-requirement ids, or
// DefaultRequirementID when there are none. A nil task yields the default.
func (t *Task) RequirementIDs() []string {
	if t == nil {
		return []string{DefaultRequirementID}
	}
	ids := make([]string, 0, len(t.MustRequirementIDs))
	for _, id := range t.MustRequirementIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{DefaultRequirementID}
	}
	return ids
}

// Profile merges the task's stage override for phase with its config
// override for configID and phase; config values win. A nil task yields
// an empty profile.
func (t *Task) Profile(configID pipeline.ConfigID, phase pipeline.Phase) Profile {
	if t == nil {
		return Profile{}
	}
	base := t.StageOverrides[string(phase)]
	return base.Merge(t.ConfigOverrides[string(configID)][string(phase)])
}
