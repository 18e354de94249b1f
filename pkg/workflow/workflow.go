// Package workflow orchestrates the three governed commands — commit,
// commit+push, and create-PR — as a state machine over the gate engine,
// the decision store, and the audit log. Gates must pass before any state
// transition that mutates the VCS; a gate failure short-circuits the whole
// workflow and surfaces the engine's remediation.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acho-dev/acho/pkg/audit"
	"github.com/acho-dev/acho/pkg/decision"
	"github.com/acho-dev/acho/pkg/gate"
)

// State is the workflow position within a single command invocation.
type State string

const (
	StateInitial         State = "initial"
	StateUpstreamChecked State = "upstream-checked"
	StateWarnShown       State = "warn-shown"
	StateAutoPushOffered State = "auto-push-offered"
	StateModeSelected    State = "mode-selected"
	StateCompleted       State = "completed"
	StateAborted         State = "aborted"
)

// Status is the overall command result for the presentation layer.
type Status string

const (
	StatusSuccess Status = "success"
	StatusBlocked Status = "blocked-by-gate"
	StatusAborted Status = "aborted"
)

// Mode is a continuation mode for the PR-only/unpushed-branch sub-flow.
type Mode string

const (
	// ModeDeferPR makes no VCS mutation and persists the choice so
	// future runs do not re-prompt until expiry or a material change.
	ModeDeferPR Mode = "defer-pr"
	// ModeAttemptPR calls the remote create-PR collaborator anyway and
	// surfaces whatever failure it returns.
	ModeAttemptPR Mode = "attempt-pr-anyway"
	// ModeExportPayload writes a local description of the intended PR
	// without contacting the remote.
	ModeExportPayload Mode = "export-pr-payload"
)

// Modes lists the continuation modes in presentation order.
var Modes = []Mode{ModeDeferPR, ModeAttemptPR, ModeExportPayload}

// Outcome is what each governed entry point returns.
type Outcome struct {
	Status      Status
	FinalState  State
	Mode        Mode
	PRURL       string
	ExportPath  string
	Remediation []string
}

// policyPRMode keys persisted continuation-mode decisions.
const policyPRMode = "pr.unpushed-mode"

// DefaultDeferTTL bounds how long a defer-pr decision is reused.
const DefaultDeferTTL = 14 * 24 * time.Hour

// transitions lists legal successor states. Any state may abort.
// warn-shown may enter mode-selected directly when a stored decision
// short-circuits the auto-push offer.
var transitions = map[State][]State{
	StateInitial:         {StateUpstreamChecked, StateCompleted},
	StateUpstreamChecked: {StateCompleted, StateWarnShown},
	StateWarnShown:       {StateAutoPushOffered, StateModeSelected},
	StateAutoPushOffered: {StateCompleted, StateModeSelected},
	StateModeSelected:    {StateCompleted},
}

func legal(from, to State) bool {
	if to == StateAborted {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Workflow runs the governed commands for one repository.
type Workflow struct {
	gates     *gate.Engine
	decisions *decision.Store
	log       audit.Log
	vcs       VCS
	prompter  gate.Prompter

	policyVersion string
	exportDir     string
	deferTTL      time.Duration
	logger        *zap.Logger
	clock         func() time.Time
}

// Params collects the collaborators a Workflow needs.
type Params struct {
	Gates         *gate.Engine
	Decisions     *decision.Store
	Log           audit.Log
	VCS           VCS
	Prompter      gate.Prompter
	PolicyVersion string
	ExportDir     string
	DeferTTL      time.Duration
	Logger        *zap.Logger
}

// New validates the collaborators and builds a Workflow.
func New(p Params) (*Workflow, error) {
	switch {
	case p.Gates == nil:
		return nil, fmt.Errorf("workflow: gate engine is required")
	case p.Decisions == nil:
		return nil, fmt.Errorf("workflow: decision store is required")
	case p.Log == nil:
		return nil, fmt.Errorf("workflow: audit log is required")
	case p.VCS == nil:
		return nil, fmt.Errorf("workflow: vcs client is required")
	case p.Prompter == nil:
		return nil, fmt.Errorf("workflow: prompter is required")
	}
	if p.DeferTTL <= 0 {
		p.DeferTTL = DefaultDeferTTL
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Workflow{
		gates:         p.Gates,
		decisions:     p.Decisions,
		log:           p.Log,
		vcs:           p.VCS,
		prompter:      p.Prompter,
		policyVersion: p.PolicyVersion,
		exportDir:     p.ExportDir,
		deferTTL:      p.DeferTTL,
		logger:        p.Logger,
		clock:         time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (w *Workflow) WithClock(clock func() time.Time) *Workflow {
	w.clock = clock
	return w
}

// begin audits the command start. It runs ahead of the first gate
// evaluation or VCS call so a dead audit log fails the command before any
// side effect, not after.
func (w *Workflow) begin(ctx context.Context, command string, st State) error {
	if err := w.log.Append(ctx, audit.EventWorkflow, "workflow", map[string]any{
		"command": command, "state": string(st),
	}); err != nil {
		return fmt.Errorf("workflow: start unaudited: %w", err)
	}
	return nil
}

// transition moves the state machine and audits the move. An audit write
// failure fails the transition: an untraced workflow step must not happen.
func (w *Workflow) transition(ctx context.Context, command string, st *State, next State, details map[string]any) error {
	if !legal(*st, next) {
		return fmt.Errorf("workflow: illegal transition %s -> %s", *st, next)
	}
	d := map[string]any{"command": command, "from": string(*st), "state": string(next)}
	for k, v := range details {
		d[k] = v
	}
	if err := w.log.Append(ctx, audit.EventWorkflow, "workflow", d); err != nil {
		return fmt.Errorf("workflow: transition unaudited: %w", err)
	}
	*st = next
	return nil
}

// abort drives any state to aborted. The abort itself is audited best
// effort: the operation is already failing and must not be masked by a
// second failure.
func (w *Workflow) abort(ctx context.Context, command string, st *State, reason string) Outcome {
	if err := w.transition(ctx, command, st, StateAborted, map[string]any{"reason": reason}); err != nil {
		w.logger.Error("abort transition unaudited", zap.String("command", command), zap.Error(err))
		*st = StateAborted
	}
	return Outcome{Status: StatusAborted, FinalState: StateAborted, Remediation: []string{reason}}
}

// blockedByGate aborts the workflow with the gate engine's remediation.
func (w *Workflow) blockedByGate(ctx context.Context, command string, st *State, run *gate.RunResult) Outcome {
	if err := w.transition(ctx, command, st, StateAborted, map[string]any{
		"reason": "blocked-by-gate", "stage": string(run.Stage),
	}); err != nil {
		w.logger.Error("abort transition unaudited", zap.String("command", command), zap.Error(err))
		*st = StateAborted
	}
	return Outcome{
		Status:      StatusBlocked,
		FinalState:  StateAborted,
		Remediation: run.Remediation(),
	}
}

// evaluateStage runs the gate engine for a stage and folds the three
// possible results: evaluation error (audit failure, fail closed), blocked,
// or clear.
func (w *Workflow) evaluateStage(ctx context.Context, command string, st *State, stage gate.Stage, cs gate.ChangeSet) (*gate.RunResult, *Outcome) {
	run, err := w.gates.Evaluate(ctx, stage, cs)
	if err != nil {
		out := w.abort(ctx, command, st, fmt.Sprintf("gate evaluation failed: %v; repair the audit log and re-run", err))
		return nil, &out
	}
	if run.Blocked {
		out := w.blockedByGate(ctx, command, st, run)
		return run, &out
	}
	return run, nil
}

// changeSet snapshots the staged changes for gate evaluation.
func (w *Workflow) changeSet(ctx context.Context, message string) (gate.ChangeSet, error) {
	branch, err := w.vcs.CurrentBranch(ctx)
	if err != nil {
		return gate.ChangeSet{}, fmt.Errorf("determine current branch: %w", err)
	}
	files, err := w.vcs.StagedFiles(ctx)
	if err != nil {
		return gate.ChangeSet{}, fmt.Errorf("list staged files: %w", err)
	}
	return gate.ChangeSet{Branch: branch, Files: files, Message: message}, nil
}

// modeFingerprint hashes exactly the inputs whose change must force a
// fresh mode prompt: branch, head commit, and policy version.
func (w *Workflow) modeFingerprint(branch, head string) (string, error) {
	return decision.Fingerprint(map[string]any{
		"branch":         branch,
		"head":           head,
		"policy_version": w.policyVersion,
	})
}
