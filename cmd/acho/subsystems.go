package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/acho-dev/acho/pkg/audit"
	"github.com/acho-dev/acho/pkg/config"
	"github.com/acho-dev/acho/pkg/decision"
	"github.com/acho-dev/acho/pkg/gate"
	"github.com/acho-dev/acho/pkg/manifest"
	"github.com/acho-dev/acho/pkg/standards"
	"github.com/acho-dev/acho/pkg/workflow"
)

// subsystems bundles everything a governed command needs, wired once per
// invocation.
type subsystems struct {
	cfg      *config.Config
	logger   *zap.Logger
	manifest *manifest.Manifest
	layers   []standards.Layer
	auditLog *audit.FileLog
	store    *decision.Store
	engine   *gate.Engine
	vcs      workflow.VCS
	workflow *workflow.Workflow
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	c := zap.NewProductionConfig()
	c.Level = zap.NewAtomicLevelAt(lvl)
	c.OutputPaths = []string{"stderr"}
	logger, err := c.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// loadLayers reads every configured policy layer plus the built-in default.
// Missing files are healthy empty layers; unreadable ones carry an error and
// fail manifest assembly closed.
func loadLayers(cfg *config.Config) []standards.Layer {
	return []standards.Layer{
		standards.LoadLayerFile(standards.LayerLocal, cfg.LocalManifest()),
		standards.LoadLayerFile(standards.LayerRepository, cfg.RepoManifest()),
		standards.LoadLayerFile(standards.LayerTeam, cfg.TeamManifest),
		standards.LoadLayerFile(standards.LayerOrganization, cfg.OrgManifest),
		manifest.DefaultLayer(),
	}
}

// setup wires the full stack for a governed command. interactive selects
// the terminal prompter; ACHO_UNATTENDED selects auto-approval.
func setup(stdin io.Reader, stdout, stderr io.Writer, interactive bool) (*subsystems, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	layers := loadLayers(cfg)
	m, err := manifest.FromLayers(layers)
	if err != nil {
		return nil, fmt.Errorf("assemble policy: %w", err)
	}

	auditLog, err := audit.OpenFile(cfg.AuditPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	// Non-interactive without explicit unattended consent must not
	// self-approve: an exhausted scripted prompter cancels, and the
	// engine records cancels as denials.
	var prompter gate.Prompter
	switch {
	case cfg.Unattended:
		prompter = gate.AutoApprove{}
	case interactive:
		prompter = newStdinPrompter(stdin, stdout)
	default:
		prompter = &gate.Scripted{}
	}

	runner := gate.ExecRunner{Timeout: cfg.ToolTimeout, Dir: cfg.RepoDir}
	engine, err := gate.NewEngine(m.GateConfig(), runner, prompter, auditLog, logger)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("build gate engine: %w", err)
	}

	store := decision.NewStore(cfg.DecisionPath(), logger)
	vcs := &gitVCS{dir: cfg.RepoDir}
	wf, err := workflow.New(workflow.Params{
		Gates:         engine,
		Decisions:     store,
		Log:           auditLog,
		VCS:           vcs,
		Prompter:      prompter,
		PolicyVersion: m.Version,
		ExportDir:     cfg.StateDir,
		Logger:        logger,
	})
	if err != nil {
		auditLog.Close()
		return nil, err
	}

	return &subsystems{
		cfg:      cfg,
		logger:   logger,
		manifest: m,
		layers:   layers,
		auditLog: auditLog,
		store:    store,
		engine:   engine,
		vcs:      vcs,
		workflow: wf,
	}, nil
}

func (s *subsystems) close() {
	_ = s.auditLog.Close()
	_ = s.logger.Sync()
}
