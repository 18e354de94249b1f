package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/acho-dev/acho/pkg/gate"
)

// CommitOptions configures RunCommit. The full command is commit+push;
// Only stops after the commit.
type CommitOptions struct {
	Message string
	Only    bool
}

// PROptions configures RunPr. Only skips the push step, which engages the
// unpushed-branch continuation flow when no current upstream exists.
type PROptions struct {
	Title string
	Body  string
	Only  bool
}

// AchoOptions configures RunAcho, the end-to-end command
// (commit, push, create PR). Only stops one step short of the PR.
type AchoOptions struct {
	Message string
	Title   string
	Body    string
	Only    bool
}

// RunCommit governs a commit (optionally commit+push). Pre-commit gates
// must clear before the commit; pre-push gates before any push.
func (w *Workflow) RunCommit(ctx context.Context, opts CommitOptions) Outcome {
	const command = "commit"
	st := StateInitial

	if err := w.begin(ctx, command, st); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	cs, err := w.changeSet(ctx, opts.Message)
	if err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	if _, out := w.evaluateStage(ctx, command, &st, gate.StagePreCommit, cs); out != nil {
		return *out
	}
	if err := w.vcs.Commit(ctx, opts.Message); err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("commit failed: %v", err))
	}

	if !opts.Only {
		if _, out := w.evaluateStage(ctx, command, &st, gate.StagePrePush, cs); out != nil {
			out.Remediation = append(out.Remediation,
				"the commit was created locally; fix the findings and push separately")
			return *out
		}
		if err := w.vcs.Push(ctx, cs.Branch); err != nil {
			return w.abort(ctx, command, &st, fmt.Sprintf("push failed: %v", err))
		}
	}

	if err := w.transition(ctx, command, &st, StateCompleted, map[string]any{"pushed": !opts.Only}); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}
	return Outcome{Status: StatusSuccess, FinalState: StateCompleted}
}

// RunAcho governs the full pipeline: commit, push, create PR.
func (w *Workflow) RunAcho(ctx context.Context, opts AchoOptions) Outcome {
	const command = "acho"
	st := StateInitial

	if err := w.begin(ctx, command, st); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	cs, err := w.changeSet(ctx, opts.Message)
	if err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	if _, out := w.evaluateStage(ctx, command, &st, gate.StagePreCommit, cs); out != nil {
		return *out
	}
	if err := w.vcs.Commit(ctx, opts.Message); err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("commit failed: %v", err))
	}
	if _, out := w.evaluateStage(ctx, command, &st, gate.StagePrePush, cs); out != nil {
		out.Remediation = append(out.Remediation,
			"the commit was created locally; fix the findings and push separately")
		return *out
	}
	if err := w.vcs.Push(ctx, cs.Branch); err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("push failed: %v", err))
	}

	if opts.Only {
		if err := w.transition(ctx, command, &st, StateCompleted, map[string]any{"pr": false}); err != nil {
			return w.abort(ctx, command, &st, err.Error())
		}
		return Outcome{Status: StatusSuccess, FinalState: StateCompleted}
	}

	if _, out := w.evaluateStage(ctx, command, &st, gate.StagePreMerge, cs); out != nil {
		return *out
	}
	url, err := w.vcs.CreatePR(ctx, PRRequest{Branch: cs.Branch, Title: opts.Title, Body: opts.Body})
	if err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("create PR failed: %v", err))
	}
	if err := w.transition(ctx, command, &st, StateCompleted, map[string]any{"pr": true, "url": url}); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}
	return Outcome{Status: StatusSuccess, FinalState: StateCompleted, PRURL: url}
}

// RunPr governs PR creation. The full command pushes first; the -only
// variant skips the push, and a branch with no current upstream then
// enters the continuation sub-flow: warn, offer auto-push, and on decline
// select exactly one continuation mode (memoized across runs).
func (w *Workflow) RunPr(ctx context.Context, opts PROptions) Outcome {
	const command = "pr"
	st := StateInitial

	if err := w.begin(ctx, command, st); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	branch, err := w.vcs.CurrentBranch(ctx)
	if err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("determine current branch: %v", err))
	}
	head, err := w.vcs.HeadCommit(ctx)
	if err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("determine head commit: %v", err))
	}
	cs := gate.ChangeSet{Branch: branch, Message: opts.Title}

	// PR creation is governed by the pre-merge stage; any push below is
	// additionally governed by pre-push.
	if _, out := w.evaluateStage(ctx, command, &st, gate.StagePreMerge, cs); out != nil {
		return *out
	}

	info, err := w.vcs.Upstream(ctx, branch)
	if err != nil {
		return w.abort(ctx, command, &st, fmt.Sprintf("query upstream for %q: %v", branch, err))
	}
	if err := w.transition(ctx, command, &st, StateUpstreamChecked, map[string]any{
		"branch": branch, "upstream": info.Exists, "ahead": info.Ahead,
	}); err != nil {
		return w.abort(ctx, command, &st, err.Error())
	}

	if info.Current() {
		return w.createPR(ctx, command, &st, PRRequest{Branch: branch, Title: opts.Title, Body: opts.Body})
	}

	if !opts.Only {
		if _, out := w.evaluateStage(ctx, command, &st, gate.StagePrePush, cs); out != nil {
			return *out
		}
		if err := w.vcs.Push(ctx, branch); err != nil {
			return w.abort(ctx, command, &st, fmt.Sprintf("push failed: %v", err))
		}
		return w.createPR(ctx, command, &st, PRRequest{Branch: branch, Title: opts.Title, Body: opts.Body})
	}

	return w.continueUnpushed(ctx, command, &st, cs, info, PRRequest{Branch: branch, Title: opts.Title, Body: opts.Body}, head)
}

// continueUnpushed drives the PR-only/unpushed-branch sub-flow.
func (w *Workflow) continueUnpushed(ctx context.Context, command string, st *State, cs gate.ChangeSet, info UpstreamInfo, req PRRequest, head string) Outcome {
	reason := "no upstream"
	if info.Exists {
		reason = fmt.Sprintf("local branch is %d commit(s) ahead of upstream", info.Ahead)
	}
	if err := w.transition(ctx, command, st, StateWarnShown, map[string]any{"reason": reason}); err != nil {
		return w.abort(ctx, command, st, err.Error())
	}

	// A memoized decision short-circuits straight to its terminal action:
	// no auto-push offer, no mode prompt.
	fp, err := w.modeFingerprint(req.Branch, head)
	if err != nil {
		return w.abort(ctx, command, st, fmt.Sprintf("compute decision fingerprint: %v", err))
	}
	if d, ok := w.decisions.Get(policyPRMode, fp); ok {
		w.logger.Info("reusing stored continuation mode",
			zap.String("branch", req.Branch), zap.String("mode", d.Mode))
		if err := w.transition(ctx, command, st, StateModeSelected, map[string]any{
			"mode": d.Mode, "reused": true,
		}); err != nil {
			return w.abort(ctx, command, st, err.Error())
		}
		return w.finishMode(ctx, command, st, Mode(d.Mode), cs, req, fp, true)
	}

	if err := w.transition(ctx, command, st, StateAutoPushOffered, nil); err != nil {
		return w.abort(ctx, command, st, err.Error())
	}
	accept, err := w.prompter.AskYesNo(ctx, fmt.Sprintf(
		"branch %q is not visible upstream (%s); push it now and create the PR?", req.Branch, reason))
	if err != nil {
		return w.abort(ctx, command, st, "cancelled at auto-push offer")
	}

	if accept {
		if _, out := w.evaluateStage(ctx, command, st, gate.StagePrePush, cs); out != nil {
			return *out
		}
		if err := w.vcs.Push(ctx, req.Branch); err != nil {
			return w.abort(ctx, command, st, fmt.Sprintf("push failed: %v", err))
		}
		return w.createPR(ctx, command, st, req)
	}

	modes := make([]string, len(Modes))
	for i, m := range Modes {
		modes[i] = string(m)
	}
	choice, err := w.prompter.AskMode(ctx, "how should the PR proceed without a pushed branch?", modes)
	if err != nil {
		return w.abort(ctx, command, st, "cancelled at mode selection")
	}
	mode := Mode(choice)
	valid := false
	for _, m := range Modes {
		if m == mode {
			valid = true
		}
	}
	if !valid {
		return w.abort(ctx, command, st, fmt.Sprintf("unknown continuation mode %q", choice))
	}

	if err := w.transition(ctx, command, st, StateModeSelected, map[string]any{"mode": choice}); err != nil {
		return w.abort(ctx, command, st, err.Error())
	}
	return w.finishMode(ctx, command, st, mode, cs, req, fp, false)
}

// finishMode executes a continuation mode's terminal action.
func (w *Workflow) finishMode(ctx context.Context, command string, st *State, mode Mode, cs gate.ChangeSet, req PRRequest, fp string, reused bool) Outcome {
	switch mode {
	case ModeDeferPR:
		if !reused {
			if err := w.decisions.Put(policyPRMode, fp, string(mode), "user deferred PR creation", w.deferTTL); err != nil {
				// Persistence failure only costs a re-prompt next run.
				w.logger.Warn("could not persist continuation decision", zap.Error(err))
			}
		}
		if err := w.transition(ctx, command, st, StateCompleted, map[string]any{"mode": string(mode)}); err != nil {
			return w.abort(ctx, command, st, err.Error())
		}
		return Outcome{Status: StatusSuccess, FinalState: StateCompleted, Mode: mode}

	case ModeAttemptPR:
		url, err := w.vcs.CreatePR(ctx, req)
		out := Outcome{Status: StatusSuccess, FinalState: StateCompleted, Mode: mode, PRURL: url}
		details := map[string]any{"mode": string(mode)}
		if err != nil {
			// Surface the remote's own failure; the workflow still ran
			// the mode the user chose.
			out.Remediation = []string{fmt.Sprintf("remote create-PR failed: %v", err)}
			details["remote_error"] = err.Error()
		}
		if terr := w.transition(ctx, command, st, StateCompleted, details); terr != nil {
			return w.abort(ctx, command, st, terr.Error())
		}
		return out

	case ModeExportPayload:
		path, err := w.exportPayload(req)
		if err != nil {
			return w.abort(ctx, command, st, fmt.Sprintf("export PR payload: %v", err))
		}
		if err := w.transition(ctx, command, st, StateCompleted, map[string]any{
			"mode": string(mode), "path": path,
		}); err != nil {
			return w.abort(ctx, command, st, err.Error())
		}
		return Outcome{Status: StatusSuccess, FinalState: StateCompleted, Mode: mode, ExportPath: path}
	}
	return w.abort(ctx, command, st, fmt.Sprintf("unknown continuation mode %q", mode))
}

func (w *Workflow) createPR(ctx context.Context, command string, st *State, req PRRequest) Outcome {
	url, err := w.vcs.CreatePR(ctx, req)
	if err != nil {
		return w.abort(ctx, command, st, fmt.Sprintf("create PR failed: %v", err))
	}
	if err := w.transition(ctx, command, st, StateCompleted, map[string]any{"url": url}); err != nil {
		return w.abort(ctx, command, st, err.Error())
	}
	return Outcome{Status: StatusSuccess, FinalState: StateCompleted, PRURL: url}
}

func (w *Workflow) exportPayload(req PRRequest) (string, error) {
	dir := w.exportDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	payload := struct {
		PRRequest
		CreatedAt string `json:"created_at"`
	}{PRRequest: req, CreatedAt: w.clock().UTC().Format("2006-01-02T15:04:05Z07:00")}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("pr-payload-%s.json", strings.ReplaceAll(req.Branch, "/", "-"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
