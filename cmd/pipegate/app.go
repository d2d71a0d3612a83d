package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipegate/internal/config"
	"github.com/fyrsmithlabs/pipegate/internal/drift"
	"github.com/fyrsmithlabs/pipegate/internal/errcode"
	"github.com/fyrsmithlabs/pipegate/internal/events"
	"github.com/fyrsmithlabs/pipegate/internal/logging"
	"github.com/fyrsmithlabs/pipegate/internal/runner"
	"github.com/fyrsmithlabs/pipegate/internal/schema"
	"github.com/fyrsmithlabs/pipegate/internal/store"
	"github.com/fyrsmithlabs/pipegate/internal/telemetry"
	"github.com/fyrsmithlabs/pipegate/pkg/secrets"
)

const shutdownTimeout = 5 * time.Second

// app holds the process-wide collaborators shared by every command.
type app struct {
	workspace  string
	configPath string
	logLevel   string
	logFormat  string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	ws        *store.Workspace
	scrubber  secrets.Scrubber
	publisher *events.NATSPublisher
}

// setup loads configuration and builds the workspace, secret scrubber,
// logger and telemetry.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath, a.workspace)
	if err != nil {
		return errcode.Wrap(errcode.BadInput, "", err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg

	a.ws, err = store.Open(cfg.Workspace.Root)
	if err != nil {
		return err
	}

	a.scrubber = secrets.Nop()
	if cfg.Secrets.Enabled {
		a.scrubber, err = secrets.New(secrets.Options{
			WorkspaceRoot: a.ws.Root,
			AllowlistFile: cfg.Secrets.AllowlistFile,
		})
		if err != nil {
			return err
		}
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return errcode.Wrap(errcode.BadInput, "", err)
	}
	logCfg.Redaction.Scrubber = a.scrubber
	a.logger, err = logging.NewLogger(logCfg, nil)
	if err != nil {
		return err
	}

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return errcode.Wrap(errcode.BadInput, "", err)
	}
	for _, reason := range a.telemetry.Degraded() {
		a.logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
	}
	return nil
}

// withLogger attaches the process logger to ctx.
func (a *app) withLogger(ctx context.Context) context.Context {
	if a.logger == nil {
		return ctx
	}
	return logging.WithLogger(ctx, a.logger)
}

// runner builds a Runner over the workspace. Commands other than init-run
// require the pipeline document to exist.
func (a *app) runner(ctx context.Context, requireConfig bool) (*runner.Runner, error) {
	pipelineCfg := store.PipelineConfig{}
	exists, err := a.ws.PipelineConfigExists()
	if err != nil {
		return nil, err
	}
	if exists || requireConfig {
		loaded, err := a.ws.LoadPipelineConfig()
		if err != nil {
			return nil, err
		}
		pipelineCfg = *loaded
	}

	instruments, err := telemetry.NewInstruments(a.telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to create instruments: %w", err)
	}
	opts := []runner.Option{
		runner.WithInstruments(instruments),
		runner.WithScrubber(a.scrubber),
	}

	if a.cfg.Drift.Command != "" {
		opts = append(opts, runner.WithDetector(&drift.CommandDetector{
			Command:       a.cfg.Drift.Command,
			Args:          a.cfg.Drift.Args,
			WorkspaceRoot: a.ws.Root,
			Timeout:       a.cfg.Drift.Timeout.Duration(),
		}))
	}

	if a.cfg.Events.NATSURL != "" {
		nc, err := events.Connect(a.cfg.Events.NATSURL)
		if err != nil {
			return nil, errcode.Wrap(errcode.MissingDependency, "", err)
		}
		a.publisher = events.NewNATSPublisher(nc, a.cfg.Events.SubjectPrefix)
		opts = append(opts, runner.WithPublisher(a.publisher))
	}

	logging.FromContext(ctx).Debug(ctx, "runner configured",
		zap.String("workspace", a.ws.Root),
		zap.Bool("secrets", a.cfg.Secrets.Enabled),
		zap.Bool("drift_command", a.cfg.Drift.Command != ""),
		zap.Bool("events", a.publisher != nil),
	)
	return runner.New(a.ws, pipelineCfg, a.validator(), opts...)
}

func (a *app) validator() schema.Validator {
	return schema.NewJSONSchemaValidator(a.cfg.SchemaRoot())
}

// print writes v to stdout as indented JSON.
func (a *app) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintf(a.stdout, "%s\n", data)
	return err
}

// close flushes published events, telemetry and the logger.
func (a *app) close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "failed to flush trace events", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
