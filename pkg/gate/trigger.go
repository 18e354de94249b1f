package gate

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/decls"
	"github.com/google/cel-go/common/types"
)

// TriggerEvaluator compiles and evaluates conditional-gate trigger
// predicates. Predicates are CEL expressions over the staged change set:
//
//	files.exists(f, f.endsWith(".sql"))
//	branch.startsWith("hotfix/")
//
// Compilation happens once at configuration load; evaluation is pure.
type TriggerEvaluator struct {
	env      *cel.Env
	programs map[string]cel.Program
}

// NewTriggerEvaluator initializes the CEL environment with the change-set
// attributes available to every trigger.
func NewTriggerEvaluator() (*TriggerEvaluator, error) {
	env, err := cel.NewEnv(
		cel.VariableDecls(
			decls.NewVariable("files", types.NewListType(types.StringType)),
			decls.NewVariable("branch", types.StringType),
			decls.NewVariable("message", types.StringType),
			decls.NewVariable("command", types.StringType),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("gate: create CEL env: %w", err)
	}
	return &TriggerEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile registers the trigger predicate for a gate. A predicate that does
// not compile is a configuration error surfaced immediately, not at run
// time.
func (t *TriggerEvaluator) Compile(gateID, expr string) error {
	ast, issues := t.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("gate %s: trigger compilation failed: %w", gateID, issues.Err())
	}
	prg, err := t.env.Program(ast)
	if err != nil {
		return fmt.Errorf("gate %s: trigger program construction failed: %w", gateID, err)
	}
	t.programs[gateID] = prg
	return nil
}

// Triggered evaluates a gate's predicate against the change set. The
// engine treats an evaluation error as triggered (fail closed).
func (t *TriggerEvaluator) Triggered(gateID string, cs ChangeSet) (bool, error) {
	prg, ok := t.programs[gateID]
	if !ok {
		return false, fmt.Errorf("gate %s: no compiled trigger", gateID)
	}

	files := cs.Files
	if files == nil {
		files = []string{}
	}
	out, _, err := prg.Eval(map[string]any{
		"files":   files,
		"branch":  cs.Branch,
		"message": cs.Message,
		"command": cs.CommandText,
	})
	if err != nil {
		return false, fmt.Errorf("gate %s: trigger evaluation: %w", gateID, err)
	}

	triggered, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("gate %s: trigger is not boolean", gateID)
	}
	return triggered, nil
}
