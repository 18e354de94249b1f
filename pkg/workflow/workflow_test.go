package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acho-dev/acho/pkg/audit"
	"github.com/acho-dev/acho/pkg/decision"
	"github.com/acho-dev/acho/pkg/gate"
)

// fakeVCS records every mutation the workflow requests.
type fakeVCS struct {
	branch   string
	head     string
	staged   []string
	upstream UpstreamInfo

	commitErr error
	pushErr   error
	prURL     string
	prErr     error

	commits []string
	pushes  []string
	prs     []PRRequest
}

func (f *fakeVCS) CurrentBranch(context.Context) (string, error) { return f.branch, nil }
func (f *fakeVCS) HeadCommit(context.Context) (string, error)    { return f.head, nil }
func (f *fakeVCS) StagedFiles(context.Context) ([]string, error) { return f.staged, nil }
func (f *fakeVCS) Upstream(context.Context, string) (UpstreamInfo, error) {
	return f.upstream, nil
}

func (f *fakeVCS) Commit(_ context.Context, message string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, message)
	return nil
}

func (f *fakeVCS) Push(_ context.Context, branch string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, branch)
	return nil
}

func (f *fakeVCS) CreatePR(_ context.Context, req PRRequest) (string, error) {
	if f.prErr != nil {
		return "", f.prErr
	}
	f.prs = append(f.prs, req)
	return f.prURL, nil
}

func (f *fakeVCS) mutations() int { return len(f.commits) + len(f.pushes) + len(f.prs) }

type passRunner struct{}

func (passRunner) Run(context.Context, string, ...string) gate.ToolResult {
	return gate.ToolResult{Status: gate.ToolOK}
}

type failingLog struct{}

func (failingLog) Append(context.Context, audit.EventType, string, map[string]any) error {
	return audit.ErrWriteFailed
}

type testEnv struct {
	wf    *Workflow
	vcs   *fakeVCS
	store *decision.Store
	log   *audit.MemoryLog
}

func newTestWorkflow(t *testing.T, cfg gate.Config, vcs *fakeVCS, prompter gate.Prompter, log audit.Log) testEnv {
	t.Helper()
	if prompter == nil {
		prompter = &gate.Scripted{}
	}
	mem, _ := log.(*audit.MemoryLog)
	if log == nil {
		mem = audit.NewMemoryLog(nil)
		log = mem
	}
	engine, err := gate.NewEngine(cfg, passRunner{}, prompter, log, nil)
	require.NoError(t, err)

	store := decision.NewStore(filepath.Join(t.TempDir(), "decisions.json"), nil)
	wf, err := New(Params{
		Gates:         engine,
		Decisions:     store,
		Log:           log,
		VCS:           vcs,
		Prompter:      prompter,
		PolicyVersion: "1.0.0",
		ExportDir:     t.TempDir(),
	})
	require.NoError(t, err)
	return testEnv{wf: wf, vcs: vcs, store: store, log: mem}
}

func featureVCS() *fakeVCS {
	return &fakeVCS{
		branch: "feature/widgets",
		head:   "abc123",
		staged: []string{"widgets.go"},
		prURL:  "https://example.test/pr/7",
	}
}

func TestCommitPushesByDefault(t *testing.T) {
	vcs := featureVCS()
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	out := env.wf.RunCommit(context.Background(), CommitOptions{Message: "add widgets"})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, StateCompleted, out.FinalState)
	assert.Equal(t, []string{"add widgets"}, vcs.commits)
	assert.Equal(t, []string{"feature/widgets"}, vcs.pushes)
}

func TestCommitOnlySkipsPush(t *testing.T) {
	vcs := featureVCS()
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	out := env.wf.RunCommit(context.Background(), CommitOptions{Message: "add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Len(t, vcs.commits, 1)
	assert.Empty(t, vcs.pushes)
}

func TestCommitBlockedOnProtectedBranch(t *testing.T) {
	vcs := featureVCS()
	vcs.branch = "main"
	env := newTestWorkflow(t, gate.Config{ProtectedBranches: []string{"main"}}, vcs, nil, nil)

	out := env.wf.RunCommit(context.Background(), CommitOptions{Message: "hotfix"})

	assert.Equal(t, StatusBlocked, out.Status)
	assert.Equal(t, StateAborted, out.FinalState)
	assert.NotEmpty(t, out.Remediation)
	assert.Zero(t, vcs.mutations())
}

func TestCommitBlockedByMandatoryGate(t *testing.T) {
	vcs := featureVCS()
	cfg := gate.Config{Gates: []gate.Definition{{
		ID: "lint", Stage: gate.StagePreCommit, Level: gate.LevelMandatory,
		Tool: "golangci-lint", Remediation: "run golangci-lint locally",
	}}}
	env := newTestWorkflow(t, cfg, vcs, nil, nil)
	// The pass runner clears the gate; a failing run must block instead.
	engine, err := gate.NewEngine(cfg, failRunner{}, &gate.Scripted{}, audit.NewMemoryLog(nil), nil)
	require.NoError(t, err)
	env.wf.gates = engine

	out := env.wf.RunCommit(context.Background(), CommitOptions{Message: "wip"})

	assert.Equal(t, StatusBlocked, out.Status)
	assert.Contains(t, strings.Join(out.Remediation, "\n"), "golangci-lint")
	assert.Zero(t, vcs.mutations())
}

type failRunner struct{}

func (failRunner) Run(context.Context, string, ...string) gate.ToolResult {
	return gate.ToolResult{Status: gate.ToolCheckFailed, Output: "findings"}
}

func TestPrWithCurrentUpstreamCreatesDirectly(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: true, Ahead: 0}
	prompter := &gate.Scripted{}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "https://example.test/pr/7", out.PRURL)
	assert.Empty(t, vcs.pushes)
	assert.Zero(t, prompter.YesNoAsked)
	assert.Zero(t, prompter.ModesAsked)
}

func TestPrFullPushesBeforeCreating(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets"})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []string{"feature/widgets"}, vcs.pushes)
	require.Len(t, vcs.prs, 1)
	assert.Equal(t, "Add widgets", vcs.prs[0].Title)
}

// PR-only on a branch with no upstream: decline the auto-push, defer the
// PR. No VCS mutation happens, exactly one decision is persisted, and an
// immediate re-run reuses it without any prompt.
func TestPrOnlyDeferThenReuse(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, ModeDeferPR, out.Mode)
	assert.Zero(t, vcs.mutations())
	assert.Equal(t, 1, prompter.YesNoAsked)
	assert.Equal(t, 1, prompter.ModesAsked)

	fp, err := env.wf.modeFingerprint("feature/widgets", "abc123")
	require.NoError(t, err)
	d, ok := env.store.Get(policyPRMode, fp)
	require.True(t, ok)
	assert.Equal(t, string(ModeDeferPR), d.Mode)

	// Re-run: an empty scripted prompter cancels any question it is
	// asked, so success proves the stored decision short-circuited both
	// prompts.
	rerun := &gate.Scripted{}
	wf2, err := New(Params{
		Gates:         env.wf.gates,
		Decisions:     env.store,
		Log:           audit.NewMemoryLog(nil),
		VCS:           vcs,
		Prompter:      rerun,
		PolicyVersion: "1.0.0",
	})
	require.NoError(t, err)

	out2 := wf2.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	assert.Equal(t, StatusSuccess, out2.Status)
	assert.Equal(t, ModeDeferPR, out2.Mode)
	assert.Zero(t, vcs.mutations())
	assert.Zero(t, rerun.YesNoAsked)
	assert.Zero(t, rerun.ModesAsked)
}

func TestPrOnlyDecisionNotReusedAfterNewCommits(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: true, Ahead: 2}
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	require.Equal(t, StatusSuccess, out.Status)

	// A new head commit changes the fingerprint, so the next run must
	// prompt again.
	vcs.head = "def456"
	prompter2 := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	wf2, err := New(Params{
		Gates:         env.wf.gates,
		Decisions:     env.store,
		Log:           audit.NewMemoryLog(nil),
		VCS:           vcs,
		Prompter:      prompter2,
		PolicyVersion: "1.0.0",
	})
	require.NoError(t, err)

	out2 := wf2.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	assert.Equal(t, StatusSuccess, out2.Status)
	assert.Equal(t, 1, prompter2.YesNoAsked)
	assert.Equal(t, 1, prompter2.ModesAsked)
}

func TestPrOnlyAutoPushAccepted(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	prompter := &gate.Scripted{YesNo: []bool{true}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []string{"feature/widgets"}, vcs.pushes)
	assert.Len(t, vcs.prs, 1)
	assert.Equal(t, "https://example.test/pr/7", out.PRURL)
	assert.Zero(t, prompter.ModesAsked)
}

func TestPrOnlyAttemptAnywaySurfacesRemoteError(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	vcs.prErr = errors.New("422 head branch not found")
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"attempt-pr-anyway"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, StateCompleted, out.FinalState)
	assert.Equal(t, ModeAttemptPR, out.Mode)
	require.NotEmpty(t, out.Remediation)
	assert.Contains(t, out.Remediation[0], "422")
	assert.Empty(t, vcs.pushes)
}

func TestPrOnlyExportWritesPayload(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"export-pr-payload"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Body: "details", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, ModeExportPayload, out.Mode)
	require.NotEmpty(t, out.ExportPath)

	data, err := os.ReadFile(out.ExportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"feature/widgets"`)
	assert.Contains(t, string(data), "Add widgets")
	assert.Zero(t, vcs.mutations())
}

func TestPrOnlyCancelAtModeSelectionAborts(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	prompter := &gate.Scripted{YesNo: []bool{false}} // no mode scripted: cancel
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})

	assert.Equal(t, StatusAborted, out.Status)
	assert.Equal(t, StateAborted, out.FinalState)
	assert.Zero(t, vcs.mutations())
}

func TestAchoRunsFullPipeline(t *testing.T) {
	vcs := featureVCS()
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	out := env.wf.RunAcho(context.Background(), AchoOptions{
		Message: "add widgets", Title: "Add widgets",
	})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Len(t, vcs.commits, 1)
	assert.Len(t, vcs.pushes, 1)
	assert.Len(t, vcs.prs, 1)
	assert.Equal(t, "https://example.test/pr/7", out.PRURL)
}

func TestAchoOnlyStopsBeforePR(t *testing.T) {
	vcs := featureVCS()
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	out := env.wf.RunAcho(context.Background(), AchoOptions{Message: "add widgets", Only: true})

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Len(t, vcs.commits, 1)
	assert.Len(t, vcs.pushes, 1)
	assert.Empty(t, vcs.prs)
}

func TestAuditFailureAbortsWorkflow(t *testing.T) {
	vcs := featureVCS()
	engine, err := gate.NewEngine(gate.Config{}, passRunner{}, &gate.Scripted{}, failingLog{}, nil)
	require.NoError(t, err)
	wf, err := New(Params{
		Gates:     engine,
		Decisions: decision.NewStore(filepath.Join(t.TempDir(), "d.json"), nil),
		Log:       failingLog{},
		VCS:       vcs,
		Prompter:  &gate.Scripted{},
	})
	require.NoError(t, err)

	out := wf.RunCommit(context.Background(), CommitOptions{Message: "add widgets"})

	// The dead log must stop the command before the first VCS mutation,
	// not after the commit and push already happened.
	assert.Equal(t, StatusAborted, out.Status)
	assert.Zero(t, vcs.mutations())
	require.NotEmpty(t, out.Remediation)
	assert.Contains(t, out.Remediation[0], "unaudited")
}

func TestWorkflowTransitionsAreAudited(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	log := audit.NewMemoryLog(nil)
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, log)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	require.Equal(t, StatusSuccess, out.Status)

	var states []string
	for _, e := range log.Events() {
		if e.Type != audit.EventWorkflow {
			continue
		}
		if s, ok := e.Details["state"].(string); ok {
			states = append(states, s)
		}
	}
	assert.Equal(t, []string{
		string(StateInitial),
		string(StateUpstreamChecked),
		string(StateWarnShown),
		string(StateAutoPushOffered),
		string(StateModeSelected),
		string(StateCompleted),
	}, states)
}

func TestIllegalTransitionRejected(t *testing.T) {
	vcs := featureVCS()
	env := newTestWorkflow(t, gate.Config{}, vcs, nil, nil)

	st := StateCompleted
	err := env.wf.transition(context.Background(), "commit", &st, StateWarnShown, nil)
	assert.Error(t, err)
	assert.Equal(t, StateCompleted, st)
}

func TestDeferTTLExpiryForcesReprompt(t *testing.T) {
	vcs := featureVCS()
	vcs.upstream = UpstreamInfo{Exists: false}
	prompter := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	env := newTestWorkflow(t, gate.Config{}, vcs, prompter, nil)

	out := env.wf.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	require.Equal(t, StatusSuccess, out.Status)

	// Move the store's clock past the defer TTL: the decision has
	// expired and the next run prompts again.
	env.store.WithClock(func() time.Time { return time.Now().Add(DefaultDeferTTL + time.Hour) })

	prompter2 := &gate.Scripted{YesNo: []bool{false}, Modes: []string{"defer-pr"}}
	wf2, err := New(Params{
		Gates:         env.wf.gates,
		Decisions:     env.store,
		Log:           audit.NewMemoryLog(nil),
		VCS:           vcs,
		Prompter:      prompter2,
		PolicyVersion: "1.0.0",
	})
	require.NoError(t, err)

	out2 := wf2.RunPr(context.Background(), PROptions{Title: "Add widgets", Only: true})
	assert.Equal(t, StatusSuccess, out2.Status)
	assert.Equal(t, 1, prompter2.YesNoAsked)
}
