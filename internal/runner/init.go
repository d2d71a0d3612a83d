package runner

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/pipeline"
	"github.com/fyrsmithlabs/pipegate/internal/policy"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/trace"
	"github.com/fyrsmithlabs/pipegate/internal/vcs"
)

// InitRequest starts a run.
type InitRequest struct {
	// RunID defaults to a generated id.
	RunID    string
	ConfigID string

	// Mode is enforce (the default) or shadow. Shadow turns every gating
	// feature flag off so gates only warn.
	Mode string
}

// InitResult is the output of InitRun.
type InitResult struct {
	Success       bool                 `json:"success"`
	RunID         string               `json:"run_id"`
	ConfigID      pipeline.ConfigID    `json:"config_id"`
	Mode          string               `json:"mode"`
	WorkspaceHead string               `json:"workspace_head,omitempty"`
	Config        store.PipelineConfig `json:"config"`
}

// ApplyPreset sets the feature flags and fanout caps of a configuration id.
// Trace and evaluation are always on; the gating flags follow the config id
// in enforce mode and are off in shadow mode.
func ApplyPreset(cfg *store.PipelineConfig, id pipeline.ConfigID, mode string) {
	cfg.SetFlag(store.FlagTrace, true)
	cfg.SetFlag(store.FlagEvaluation, true)

	shadow := mode == modeShadow
	cfg.SetFlag(store.FlagContextBudget, !shadow && id == pipeline.PhasedWithContextBudgets)
	cfg.SetFlag(store.FlagTraceability, !shadow && id != pipeline.BaselineSingleAgent)
	cfg.SetFlag(store.FlagDriftBenchmark, !shadow && id == pipeline.PhasedDualExtractorDrift)

	reviewers, builders := 2.0, 2.0
	switch id {
	case pipeline.PhasedPlusReviewers:
		reviewers = 3
	case pipeline.BaselineSingleAgent:
		reviewers, builders = 1, 1
	}
	cfg.OrchestrationPolicy.MaxReviewers = policy.Float(reviewers)
	cfg.OrchestrationPolicy.MaxBuilders = policy.Float(builders)
}

// InitRun applies the config id's preset to the shared pipeline config,
// writes the run state stamped with the workspace's git HEAD and records
// run_start.
func (r *Runner) InitRun(ctx context.Context, req InitRequest) (*InitResult, error) {
	configID, err := pipeline.ParseConfigID(req.ConfigID)
	if err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = modeEnforce
	}
	if mode != modeEnforce && mode != modeShadow {
		return nil, errcode.BadInputf("--mode must be one of: enforce, shadow")
	}
	runID := req.RunID
	if runID == "" {
		runID = r.newRunID()
	}
	ctx = logging.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)

	exists, err := r.ws.PipelineConfigExists()
	if err != nil {
		return nil, err
	}
	cfg := store.PipelineConfig{}
	if exists {
		loaded, err := r.ws.LoadPipelineConfig()
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	ApplyPreset(&cfg, configID, mode)
	if err := r.ws.SavePipelineConfig(&cfg); err != nil {
		return nil, err
	}
	r.config = cfg

	head, err := vcs.Head(r.ws.Root)
	if err != nil {
		log.Warn(ctx, "could not read workspace HEAD", zap.Error(err))
	}

	rn, err := r.openRun(runID)
	if err != nil {
		return nil, err
	}
	rn.state.ConfigID = configID
	if head != "" {
		rn.state.WorkspaceHead = head
	}
	if err := r.ws.SaveRunState(rn.state); err != nil {
		return nil, err
	}

	started, err := rn.log.Has(trace.RunStart)
	if err != nil {
		return nil, err
	}
	if !started {
		meta := map[string]any{
			"source":    eventSource,
			"config_id": string(configID),
			"mode":      mode,
		}
		if head != "" {
			meta["workspace_head"] = head
		}
		if branch := vcs.Branch(r.ws.Root); branch != "" {
			meta["branch"] = branch
		}
		if err := r.emit(ctx, rn, trace.Event{
			Event:    trace.RunStart,
			Phase:    string(pipeline.Arm),
			Status:   trace.StatusOK,
			Metadata: meta,
		}); err != nil {
			return nil, err
		}
	}

	log.Info(ctx, "run initialized",
		zap.String("config_id", string(configID)),
		zap.String("mode", mode),
		zap.Bool("created_pipeline_state", !exists),
	)
	return &InitResult{
		Success:       true,
		RunID:         runID,
		ConfigID:      configID,
		Mode:          mode,
		WorkspaceHead: head,
		Config:        cfg,
	}, nil
}

func (r *Runner) newRunID() string {
	stamp := r.now().UTC().Format("20060102T150405Z")
	return "run-" + stamp + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}
