package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/acho-dev/acho/pkg/gate"
)

// stdinPrompter asks on the terminal. EOF or an explicit "cancel" answer
// maps to gate.ErrPromptCancelled so the engine records a denial.
type stdinPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinPrompter(in io.Reader, out io.Writer) *stdinPrompter {
	return &stdinPrompter{in: bufio.NewReader(in), out: out}
}

func (p *stdinPrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", gate.ErrPromptCancelled
	}
	return strings.TrimSpace(line), nil
}

func (p *stdinPrompter) AskSensitive(_ context.Context, q gate.SensitivePrompt) (gate.SensitiveAnswer, error) {
	fmt.Fprintf(p.out, "\n⚠ sensitive operation detected (%s): %s\n", q.Category, q.Subject)
	if q.Description != "" {
		fmt.Fprintf(p.out, "  %s\n", q.Description)
	}
	for {
		fmt.Fprint(p.out, "[a]pprove / [d]eny / [e]xplain: ")
		line, err := p.readLine()
		if err != nil {
			return gate.SensitiveAnswer{}, err
		}
		switch strings.ToLower(line) {
		case "a", "approve":
			fmt.Fprint(p.out, "justification: ")
			just, err := p.readLine()
			if err != nil {
				return gate.SensitiveAnswer{}, err
			}
			return gate.SensitiveAnswer{Choice: gate.ChoiceApprove, Justification: just}, nil
		case "d", "deny":
			return gate.SensitiveAnswer{Choice: gate.ChoiceDeny}, nil
		case "e", "explain":
			return gate.SensitiveAnswer{Choice: gate.ChoiceExplain}, nil
		case "cancel", "q":
			return gate.SensitiveAnswer{}, gate.ErrPromptCancelled
		}
	}
}

func (p *stdinPrompter) AskYesNo(_ context.Context, question string) (bool, error) {
	for {
		fmt.Fprintf(p.out, "%s [y/n]: ", question)
		line, err := p.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		case "cancel", "q":
			return false, gate.ErrPromptCancelled
		}
	}
}

func (p *stdinPrompter) AskMode(_ context.Context, question string, options []string) (string, error) {
	fmt.Fprintln(p.out, question)
	for i, opt := range options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}
	for {
		fmt.Fprintf(p.out, "choose [1-%d]: ", len(options))
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if line == "cancel" || line == "q" {
			return "", gate.ErrPromptCancelled
		}
		for i, opt := range options {
			if line == fmt.Sprintf("%d", i+1) || line == opt {
				return opt, nil
			}
		}
	}
}
