package gate

import (
	"context"
	"errors"
)

// Choice is a sensitive-operation prompt answer. Approve and deny are
// terminal; explain loops back to the same prompt.
type Choice string

const (
	ChoiceApprove Choice = "approve"
	ChoiceDeny    Choice = "deny"
	ChoiceExplain Choice = "explain"
)

// SensitivePrompt describes the detection being confirmed.
type SensitivePrompt struct {
	Category    Category
	Pattern     string
	Subject     string // the staged path or command text that matched
	Description string
}

// SensitiveAnswer is the human's answer. Approval without a justification
// is rejected by the engine.
type SensitiveAnswer struct {
	Choice        Choice
	Justification string
}

// ErrPromptCancelled reports an explicit user cancel. The engine audits a
// cancelled approval as a denial, never drops it.
var ErrPromptCancelled = errors.New("gate: prompt cancelled")

// Prompter is the capability interface for interactive answers. The engine
// and workflow never depend on a concrete terminal; unattended runs inject
// AutoApprove, tests inject Scripted.
type Prompter interface {
	AskSensitive(ctx context.Context, p SensitivePrompt) (SensitiveAnswer, error)
	AskYesNo(ctx context.Context, question string) (bool, error)
	AskMode(ctx context.Context, question string, options []string) (string, error)
}

// AutoApprove answers every prompt affirmatively for unattended/CI use.
// The approval justification names the mode so the audit trail shows no
// human was consulted.
type AutoApprove struct{}

func (AutoApprove) AskSensitive(_ context.Context, _ SensitivePrompt) (SensitiveAnswer, error) {
	return SensitiveAnswer{Choice: ChoiceApprove, Justification: "auto-approved (unattended mode)"}, nil
}

func (AutoApprove) AskYesNo(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (AutoApprove) AskMode(_ context.Context, _ string, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrPromptCancelled
	}
	return options[0], nil
}

// Scripted replays queued answers for tests. An exhausted script cancels.
type Scripted struct {
	Sensitive []SensitiveAnswer
	YesNo     []bool
	Modes     []string

	SensitiveAsked int
	YesNoAsked     int
	ModesAsked     int
}

func (s *Scripted) AskSensitive(_ context.Context, _ SensitivePrompt) (SensitiveAnswer, error) {
	if s.SensitiveAsked >= len(s.Sensitive) {
		return SensitiveAnswer{}, ErrPromptCancelled
	}
	ans := s.Sensitive[s.SensitiveAsked]
	s.SensitiveAsked++
	return ans, nil
}

func (s *Scripted) AskYesNo(_ context.Context, _ string) (bool, error) {
	if s.YesNoAsked >= len(s.YesNo) {
		return false, ErrPromptCancelled
	}
	ans := s.YesNo[s.YesNoAsked]
	s.YesNoAsked++
	return ans, nil
}

func (s *Scripted) AskMode(_ context.Context, _ string, _ []string) (string, error) {
	if s.ModesAsked >= len(s.Modes) {
		return "", ErrPromptCancelled
	}
	ans := s.Modes[s.ModesAsked]
	s.ModesAsked++
	return ans, nil
}
