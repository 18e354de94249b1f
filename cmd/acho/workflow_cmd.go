package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/acho-dev/acho/pkg/workflow"
)

// Exit codes shared by the governed commands:
//
//	0 = completed
//	1 = blocked by a gate
//	2 = aborted or runtime error
func renderOutcome(out workflow.Outcome, stdout, stderr io.Writer) int {
	switch out.Status {
	case workflow.StatusSuccess:
		fmt.Fprintln(stdout, "✅ completed")
		if out.Mode != "" {
			fmt.Fprintf(stdout, "mode: %s\n", out.Mode)
		}
		if out.PRURL != "" {
			fmt.Fprintf(stdout, "PR: %s\n", out.PRURL)
		}
		if out.ExportPath != "" {
			fmt.Fprintf(stdout, "payload: %s\n", out.ExportPath)
		}
		for _, r := range out.Remediation {
			fmt.Fprintf(stdout, "note: %s\n", r)
		}
		return 0
	case workflow.StatusBlocked:
		fmt.Fprintln(stderr, "❌ blocked by gate")
		for _, r := range out.Remediation {
			fmt.Fprintf(stderr, "  - %s\n", r)
		}
		return 1
	default:
		fmt.Fprintln(stderr, "aborted")
		for _, r := range out.Remediation {
			fmt.Fprintf(stderr, "  - %s\n", r)
		}
		return 2
	}
}

func runCommitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("commit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		message string
		only    bool
	)
	cmd.StringVar(&message, "m", "", "Commit message (REQUIRED)")
	cmd.BoolVar(&only, "only", false, "Commit without pushing")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if message == "" {
		fmt.Fprintln(stderr, "Error: -m <message> is required")
		return 2
	}

	sys, err := setup(os.Stdin, stdout, stderr, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer sys.close()

	out := sys.workflow.RunCommit(context.Background(), workflow.CommitOptions{
		Message: message, Only: only,
	})
	return renderOutcome(out, stdout, stderr)
}

func runPrCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("pr", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		title string
		body  string
		only  bool
	)
	cmd.StringVar(&title, "title", "", "PR title (REQUIRED)")
	cmd.StringVar(&body, "body", "", "PR body")
	cmd.BoolVar(&only, "only", false, "Create the PR without pushing first")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if title == "" {
		fmt.Fprintln(stderr, "Error: --title is required")
		return 2
	}

	sys, err := setup(os.Stdin, stdout, stderr, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer sys.close()

	out := sys.workflow.RunPr(context.Background(), workflow.PROptions{
		Title: title, Body: body, Only: only,
	})
	return renderOutcome(out, stdout, stderr)
}

func runAchoCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("acho", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		message string
		title   string
		body    string
		only    bool
	)
	cmd.StringVar(&message, "m", "", "Commit message (REQUIRED)")
	cmd.StringVar(&title, "title", "", "PR title (defaults to the commit message)")
	cmd.StringVar(&body, "body", "", "PR body")
	cmd.BoolVar(&only, "only", false, "Commit and push without creating a PR")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if message == "" {
		fmt.Fprintln(stderr, "Error: -m <message> is required")
		return 2
	}
	if title == "" {
		title = message
	}

	sys, err := setup(os.Stdin, stdout, stderr, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer sys.close()

	out := sys.workflow.RunAcho(context.Background(), workflow.AchoOptions{
		Message: message, Title: title, Body: body, Only: only,
	})
	return renderOutcome(out, stdout, stderr)
}
