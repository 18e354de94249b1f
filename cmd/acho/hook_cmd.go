package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/acho-dev/acho/pkg/gate"
)

var hookStages = map[string]gate.Stage{
	"pre-commit":    gate.StagePreCommit,
	"pre-push":      gate.StagePrePush,
	"pre-merge":     gate.StagePreMerge,
	"session-start": gate.StageSessionStart,
	"session-end":   gate.StageSessionEnd,
}

// runHookCmd evaluates one lifecycle stage directly, for use from git
// hooks. Non-interactive: sensitive confirmations auto-deny unless
// ACHO_UNATTENDED is set.
//
// Exit codes:
//
//	0 = stage clear
//	1 = blocked
//	2 = runtime error
func runHookCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hook", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cmd.NArg() < 1 {
		fmt.Fprintln(stderr, "Usage: acho hook <pre-commit|pre-push|pre-merge|session-start|session-end>")
		return 2
	}
	stage, ok := hookStages[cmd.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown stage %q\n", cmd.Arg(0))
		return 2
	}

	sys, err := setup(os.Stdin, stdout, stderr, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer sys.close()

	ctx := context.Background()
	branch, err := sys.vcs.CurrentBranch(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	files, err := sys.vcs.StagedFiles(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	run, err := sys.engine.Evaluate(ctx, stage, gate.ChangeSet{Branch: branch, Files: files})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if run.Blocked {
		fmt.Fprintf(stderr, "❌ %s blocked\n", stage)
		for _, r := range run.Remediation() {
			fmt.Fprintf(stderr, "  - %s\n", r)
		}
		return 1
	}
	fmt.Fprintf(stdout, "✅ %s clear (%d gates)\n", stage, len(run.Results))
	return 0
}
