package workflow

import "context"

// UpstreamInfo reports a branch's relation to its upstream.
type UpstreamInfo struct {
	Exists bool
	Ahead  int
	Behind int
}

// Current reports whether the upstream exists and has every local commit.
func (u UpstreamInfo) Current() bool { return u.Exists && u.Ahead == 0 }

// PRRequest describes the pull request the workflow wants created.
type PRRequest struct {
	Branch string `json:"branch"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// VCS is the version-control collaborator. The workflow decides what
// should happen; the client executes the side effects and supplies
// upstream facts. Implementations live outside this core.
type VCS interface {
	CurrentBranch(ctx context.Context) (string, error)
	HeadCommit(ctx context.Context) (string, error)
	StagedFiles(ctx context.Context) ([]string, error)
	Upstream(ctx context.Context, branch string) (UpstreamInfo, error)
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
	CreatePR(ctx context.Context, req PRRequest) (string, error)
}
