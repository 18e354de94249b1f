// Package decision memoizes risk decisions a human has already made so
// repeated invocations do not re-prompt. Reuse is deliberately conservative:
// a record is returned only when it is unexpired and its context fingerprint
// matches exactly; anything else is treated as absent.
package decision

import (
	"time"

	"github.com/acho-dev/acho/pkg/canonicalize"
)

// Decision is one durable, reusable risk decision. Records are never
// mutated in place; the store replaces the whole record set on write.
type Decision struct {
	PolicyID      string    `json:"policy_id"`
	Fingerprint   string    `json:"fingerprint"`
	Mode          string    `json:"mode"`
	Justification string    `json:"justification,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the decision is no longer reusable at now.
func (d Decision) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Fingerprint deterministically hashes exactly the inputs that make a prior
// decision valid to reuse (branch name, head commit, policy version, ...).
// Callers must pass every input whose change should force a fresh prompt.
func Fingerprint(inputs map[string]any) (string, error) {
	return canonicalize.Hash(inputs)
}
