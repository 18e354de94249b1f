package gate

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acho-dev/acho/pkg/audit"
)

// Engine evaluates the gate set and the sensitive-operation rules for one
// repository configuration. Construction compiles every trigger predicate
// and rule pattern so configuration errors surface before the first run.
type Engine struct {
	cfg      Config
	triggers *TriggerEvaluator
	runner   ToolRunner
	prompter Prompter
	log      audit.Log
	logger   *zap.Logger
	clock    func() time.Time
}

// NewEngine builds an engine from a resolved configuration.
func NewEngine(cfg Config, runner ToolRunner, prompter Prompter, log audit.Log, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	triggers, err := NewTriggerEvaluator()
	if err != nil {
		return nil, err
	}
	for _, g := range cfg.Gates {
		if g.Level == LevelConditional {
			if g.Trigger == "" {
				return nil, fmt.Errorf("gate %s: conditional gate has no trigger", g.ID)
			}
			if err := triggers.Compile(g.ID, g.Trigger); err != nil {
				return nil, err
			}
		}
	}
	for i := range cfg.SensitiveRules {
		if err := cfg.SensitiveRules[i].compile(); err != nil {
			return nil, err
		}
	}

	return &Engine{
		cfg:      cfg,
		triggers: triggers,
		runner:   runner,
		prompter: prompter,
		log:      log,
		logger:   logger,
		clock:    time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// BranchProtected reports whether branch matches a protected name or glob.
func (e *Engine) BranchProtected(branch string) bool {
	for _, pat := range e.cfg.ProtectedBranches {
		if pat == branch {
			return true
		}
		if ok, err := path.Match(pat, branch); err == nil && ok {
			return true
		}
	}
	return false
}

// Evaluate runs every gate declared for stage plus the sensitive-operation
// scan against the change set. The returned error is reserved for audit
// write failures, which fail the whole evaluation; policy outcomes live in
// the RunResult.
func (e *Engine) Evaluate(ctx context.Context, stage Stage, cs ChangeSet) (*RunResult, error) {
	run := &RunResult{Stage: stage}

	// Branch protection precedes everything for mutating stages and is
	// never overridable here.
	if (stage == StagePreCommit || stage == StagePrePush) && e.BranchProtected(cs.Branch) {
		res := Result{
			GateID:   "branch-protection",
			Outcome:  OutcomeFail,
			Class:    ClassProtectedBranch,
			Blocking: true,
			Remediation: fmt.Sprintf(
				"branch %q is protected; create a feature branch and open a reviewed merge instead", cs.Branch),
			Timestamp: e.clock(),
		}
		run.Results = append(run.Results, res)
		run.Blocked = true
		if err := e.auditGate(ctx, stage, cs, res); err != nil {
			return nil, err
		}
	}

	for _, g := range e.cfg.Gates {
		if g.Stage != stage {
			continue
		}

		blocking := true
		switch g.Level {
		case LevelWarn:
			blocking = false
		case LevelConditional:
			triggered, err := e.triggers.Triggered(g.ID, cs)
			if err != nil {
				// Fail closed: an unevaluable trigger runs the gate.
				e.logger.Warn("trigger evaluation failed, running gate",
					zap.String("gate", g.ID), zap.Error(err))
				triggered = true
			}
			if !triggered {
				res := Result{GateID: g.ID, Outcome: OutcomeSkipped, Timestamp: e.clock()}
				run.Results = append(run.Results, res)
				if err := e.auditGate(ctx, stage, cs, res); err != nil {
					return nil, err
				}
				continue
			}
		}

		res := e.runCheck(ctx, g)
		res.Blocking = blocking && res.Outcome == OutcomeFail
		run.Results = append(run.Results, res)
		if res.Blocking {
			run.Blocked = true
		}
		if err := e.auditGate(ctx, stage, cs, res); err != nil {
			return nil, err
		}
	}

	// Sensitive-operation scan runs independently of the declared gates.
	for _, m := range scan(e.cfg.SensitiveRules, cs) {
		res, err := e.confirmSensitive(ctx, stage, cs, m)
		if err != nil {
			return nil, err
		}
		run.Results = append(run.Results, res)
		if res.Blocking {
			run.Blocked = true
		}
	}

	return run, nil
}

// runCheck executes one gate's tool and classifies the outcome.
func (e *Engine) runCheck(ctx context.Context, g Definition) Result {
	res := Result{GateID: g.ID, Timestamp: e.clock()}

	tr := e.runner.Run(ctx, g.Tool, g.Args...)
	switch tr.Status {
	case ToolOK:
		res.Outcome = OutcomePass
	case ToolNotFound:
		res.Outcome = OutcomeFail
		res.Class = ClassToolMissing
		res.Remediation = fmt.Sprintf("gate %s requires %q, which is not installed or not on PATH; install it and re-run", g.ID, g.Tool)
	case ToolInfraError:
		res.Outcome = OutcomeFail
		res.Class = ClassToolError
		res.Remediation = fmt.Sprintf("gate %s: %q could not run to completion (%v); fix the tool installation or its timeout and re-run", g.ID, g.Tool, tr.Err)
	case ToolCheckFailed:
		res.Outcome = OutcomeFail
		res.Class = ClassCheckFailed
		remediation := g.Remediation
		if remediation == "" {
			remediation = fmt.Sprintf("gate %s failed; fix the reported findings and re-run", g.ID)
		}
		if out := strings.TrimSpace(tr.Output); out != "" {
			remediation += "\n" + out
		}
		res.Remediation = remediation
	}
	return res
}

// confirmSensitive drives the approve/deny/explain loop for one detection.
// Approve and deny are terminal; explain (and an approval missing its
// justification) re-asks without a terminal outcome. A cancelled prompt is
// a denial, never a silent drop. Exactly one audit event is emitted per
// detection, whatever the outcome.
func (e *Engine) confirmSensitive(ctx context.Context, stage Stage, cs ChangeSet, m Match) (Result, error) {
	prompt := SensitivePrompt{
		Category:    m.Rule.Category,
		Pattern:     m.Rule.Pattern,
		Subject:     m.Subject,
		Description: m.Rule.Description,
	}

	var answer SensitiveAnswer
	for {
		ans, err := e.prompter.AskSensitive(ctx, prompt)
		if err != nil {
			answer = SensitiveAnswer{Choice: ChoiceDeny, Justification: "prompt cancelled"}
			break
		}
		if ans.Choice == ChoiceExplain {
			continue
		}
		if ans.Choice == ChoiceApprove && strings.TrimSpace(ans.Justification) == "" {
			continue
		}
		answer = ans
		break
	}

	res := Result{
		GateID:    "sensitive:" + m.Rule.Pattern,
		Timestamp: e.clock(),
	}
	if answer.Choice == ChoiceApprove {
		res.Outcome = OutcomePass
	} else {
		res.Outcome = OutcomeFail
		res.Class = ClassSensitiveDenied
		res.Blocking = true
		res.Remediation = fmt.Sprintf("%s operation on %q was denied; unstage it or re-run and approve with a justification", m.Rule.Category, m.Subject)
	}

	details := map[string]any{
		"stage":         string(stage),
		"branch":        cs.Branch,
		"category":      string(m.Rule.Category),
		"pattern":       m.Rule.Pattern,
		"subject":       m.Subject,
		"decision":      string(answer.Choice),
		"justification": answer.Justification,
	}
	if err := e.log.Append(ctx, audit.EventSensitive, "gate-engine", details); err != nil {
		return Result{}, fmt.Errorf("gate: sensitive decision unaudited, failing evaluation: %w", err)
	}
	return res, nil
}

func (e *Engine) auditGate(ctx context.Context, stage Stage, cs ChangeSet, res Result) error {
	details := map[string]any{
		"gate":    res.GateID,
		"stage":   string(stage),
		"branch":  cs.Branch,
		"outcome": string(res.Outcome),
	}
	if res.Class != ClassNone {
		details["class"] = string(res.Class)
	}
	if res.Remediation != "" {
		details["remediation"] = res.Remediation
	}
	if err := e.log.Append(ctx, audit.EventGate, "gate-engine", details); err != nil {
		return fmt.Errorf("gate: outcome unaudited, failing evaluation: %w", err)
	}
	return nil
}
