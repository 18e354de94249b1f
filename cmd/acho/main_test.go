package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acho-dev/acho/pkg/audit"
	"github.com/acho-dev/acho/pkg/config"
	"github.com/acho-dev/acho/pkg/standards"
)

func TestRunUnknownCommand(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "frobnicate"}, &out, &errb)
	assert.Equal(t, 2, code)
	assert.Contains(t, errb.String(), "Unknown command")
}

func TestRunHelp(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "help"}, &out, &errb)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "GOVERNED COMMANDS")
}

func TestRunVersion(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "version"}, &out, &errb)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), version)
}

func TestCommitRequiresMessage(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "commit"}, &out, &errb)
	assert.Equal(t, 2, code)
	assert.Contains(t, errb.String(), "-m")
}

func TestPrRequiresTitle(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "pr"}, &out, &errb)
	assert.Equal(t, 2, code)
	assert.Contains(t, errb.String(), "--title")
}

func TestHookRequiresKnownStage(t *testing.T) {
	var out, errb bytes.Buffer
	code := Run([]string{"acho", "hook", "post-deploy"}, &out, &errb)
	assert.Equal(t, 2, code)
	assert.Contains(t, errb.String(), "unknown stage")
}

func TestAuditVerifyIntactAndTampered(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("ACHO_STATE_DIR", stateDir)

	path := filepath.Join(stateDir, "audit.jsonl")
	log, err := audit.OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, log.Append(context.Background(), audit.EventSystem, "test", map[string]any{"n": 1}))
	require.NoError(t, log.Append(context.Background(), audit.EventSystem, "test", map[string]any{"n": 2}))
	require.NoError(t, log.Close())

	var out, errb bytes.Buffer
	code := Run([]string{"acho", "audit", "verify"}, &out, &errb)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "intact")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"n":1`, `"n":9`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o600))

	out.Reset()
	errb.Reset()
	code = Run([]string{"acho", "audit", "verify"}, &out, &errb)
	assert.Equal(t, 1, code)
	assert.Contains(t, errb.String(), "chain broken")
}

func TestStandardsResolvesDefaultKey(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("ACHO_STATE_DIR", stateDir)
	t.Setenv("ACHO_REPO_DIR", t.TempDir())

	var out, errb bytes.Buffer
	code := Run([]string{"acho", "standards", "protected_branches"}, &out, &errb)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "main")
	assert.Contains(t, out.String(), `"layer": "default"`)
}

func TestLoadLayersReadsConfiguredPaths(t *testing.T) {
	dir := t.TempDir()
	teamPath := filepath.Join(dir, "team.yaml")
	orgPath := filepath.Join(dir, "org.yaml")
	require.NoError(t, os.WriteFile(teamPath, []byte("max_tokens: 8000\n"), 0o600))
	require.NoError(t, os.WriteFile(orgPath, []byte("max_tokens: 10000\n"), 0o600))

	t.Setenv("ACHO_REPO_DIR", t.TempDir())
	t.Setenv("ACHO_STATE_DIR", t.TempDir())
	t.Setenv("ACHO_TEAM_MANIFEST", teamPath)
	t.Setenv("ACHO_ORG_MANIFEST", orgPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	byName := map[standards.LayerName]standards.Layer{}
	for _, l := range loadLayers(cfg) {
		byName[l.Name] = l
	}
	require.NoError(t, byName[standards.LayerTeam].Err)
	require.NoError(t, byName[standards.LayerOrganization].Err)
	assert.Equal(t, 8000, byName[standards.LayerTeam].Doc["max_tokens"])
	assert.Equal(t, 10000, byName[standards.LayerOrganization].Doc["max_tokens"])
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// A hook invocation on a protected branch must block regardless of which
// check tools are installed.
func TestHookBlocksProtectedBranch(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	runGit(t, repo, "init", "-q", "-b", "main")
	runGit(t, repo, "-c", "user.email=dev@example.test", "-c", "user.name=dev",
		"commit", "--allow-empty", "-q", "-m", "init")

	t.Setenv("ACHO_REPO_DIR", repo)
	t.Setenv("ACHO_STATE_DIR", t.TempDir())

	var out, errb bytes.Buffer
	code := Run([]string{"acho", "hook", "pre-commit"}, &out, &errb)
	assert.Equal(t, 1, code)
	assert.Contains(t, errb.String(), "protected")
}

func TestStandardsUnknownKey(t *testing.T) {
	t.Setenv("ACHO_STATE_DIR", t.TempDir())
	t.Setenv("ACHO_REPO_DIR", t.TempDir())

	var out, errb bytes.Buffer
	code := Run([]string{"acho", "standards", "no.such.key"}, &out, &errb)
	assert.Equal(t, 1, code)
}
