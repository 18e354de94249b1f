// Package gate evaluates policy gates against staged changes at VCS
// lifecycle stages. Evaluation is fail-closed throughout: a missing or
// broken check tool blocks, a protected branch blocks unconditionally, and
// anything left unresolved counts as a failure.
package gate

import (
	"time"
)

// Stage is the VCS lifecycle point a gate is tied to.
type Stage string

const (
	StagePreCommit    Stage = "pre-commit"
	StagePrePush      Stage = "pre-push"
	StagePreMerge     Stage = "pre-merge"
	StageSessionStart Stage = "session-start"
	StageSessionEnd   Stage = "session-end"
)

// Level is a gate's enforcement level.
type Level string

const (
	LevelMandatory   Level = "mandatory"
	LevelWarn        Level = "warn"
	LevelConditional Level = "conditional"
)

// FailureClass distinguishes why a gate failed so callers can render
// precise remediation. Infrastructure failures (ToolMissing, ToolError) are
// deliberately distinct from genuine check failures.
type FailureClass string

const (
	ClassNone            FailureClass = ""
	ClassToolMissing     FailureClass = "ToolMissing"
	ClassToolError       FailureClass = "ToolError"
	ClassCheckFailed     FailureClass = "CheckFailed"
	ClassProtectedBranch FailureClass = "ProtectedBranchViolation"
	ClassSensitiveDenied FailureClass = "SensitiveOperationDenied"
)

// OutcomeKind is a single gate's outcome within one run.
type OutcomeKind string

const (
	OutcomePass    OutcomeKind = "pass"
	OutcomeFail    OutcomeKind = "fail"
	OutcomeSkipped OutcomeKind = "skipped"
)

// Definition declares one gate. Conditional gates carry a CEL trigger
// predicate over the staged change set; the gate runs only when it fires.
type Definition struct {
	ID          string   `json:"id" yaml:"id"`
	Stage       Stage    `json:"stage" yaml:"stage"`
	Level       Level    `json:"level" yaml:"level"`
	Tool        string   `json:"tool" yaml:"tool"`
	Args        []string `json:"args,omitempty" yaml:"args,omitempty"`
	Trigger     string   `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Remediation string   `json:"remediation,omitempty" yaml:"remediation,omitempty"`
}

// Result is the ephemeral outcome of one gate within one run. Its durable
// trace is the audit event it produced.
type Result struct {
	GateID      string       `json:"gate_id"`
	Outcome     OutcomeKind  `json:"outcome"`
	Class       FailureClass `json:"class,omitempty"`
	Blocking    bool         `json:"blocking,omitempty"`
	Remediation string       `json:"remediation,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// RunResult aggregates one evaluation run.
type RunResult struct {
	Stage   Stage
	Results []Result
	Blocked bool
}

// Remediation returns the remediation text of every blocking failure.
func (r *RunResult) Remediation() []string {
	var out []string
	for _, res := range r.Results {
		if res.Blocking && res.Remediation != "" {
			out = append(out, res.Remediation)
		}
	}
	return out
}

// ChangeSet is the staged change set under evaluation.
type ChangeSet struct {
	Branch      string
	Files       []string
	Message     string
	CommandText string
}

// Config is the resolved gate configuration for one repository, built from
// the layered standards and the governance manifest.
type Config struct {
	PolicyVersion     string
	ProtectedBranches []string
	Gates             []Definition
	SensitiveRules    []SensitiveRule
}
