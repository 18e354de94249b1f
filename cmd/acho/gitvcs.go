package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/acho-dev/acho/pkg/workflow"
)

// gitVCS implements workflow.VCS against the local git binary and the gh
// CLI for PR creation.
type gitVCS struct {
	dir string
}

func (g *gitVCS) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errb.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return strings.TrimSpace(out.String()), nil
}

func (g *gitVCS) CurrentBranch(ctx context.Context) (string, error) {
	return g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *gitVCS) HeadCommit(ctx context.Context) (string, error) {
	return g.git(ctx, "rev-parse", "HEAD")
}

func (g *gitVCS) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *gitVCS) Upstream(ctx context.Context, branch string) (workflow.UpstreamInfo, error) {
	_, err := g.git(ctx, "rev-parse", "--abbrev-ref", branch+"@{upstream}")
	if err != nil {
		// No upstream configured is a fact, not a failure.
		return workflow.UpstreamInfo{Exists: false}, nil
	}
	out, err := g.git(ctx, "rev-list", "--left-right", "--count", branch+"@{upstream}..."+branch)
	if err != nil {
		return workflow.UpstreamInfo{}, err
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return workflow.UpstreamInfo{}, fmt.Errorf("unexpected rev-list output %q", out)
	}
	behind, err := strconv.Atoi(fields[0])
	if err != nil {
		return workflow.UpstreamInfo{}, err
	}
	ahead, err := strconv.Atoi(fields[1])
	if err != nil {
		return workflow.UpstreamInfo{}, err
	}
	return workflow.UpstreamInfo{Exists: true, Ahead: ahead, Behind: behind}, nil
}

func (g *gitVCS) Commit(ctx context.Context, message string) error {
	_, err := g.git(ctx, "commit", "-m", message)
	return err
}

func (g *gitVCS) Push(ctx context.Context, branch string) error {
	_, err := g.git(ctx, "push", "--set-upstream", "origin", branch)
	return err
}

func (g *gitVCS) CreatePR(ctx context.Context, req workflow.PRRequest) (string, error) {
	args := []string{"pr", "create", "--head", req.Branch, "--title", req.Title}
	if req.Body != "" {
		args = append(args, "--body", req.Body)
	} else {
		args = append(args, "--body", "")
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = g.dir
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errb.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("gh pr create: %s", msg)
	}
	return strings.TrimSpace(out.String()), nil
}
