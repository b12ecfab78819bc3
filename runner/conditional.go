package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/meikuraledutech/flowgraph"
)

// Evaluator decides a boolean expression over named variables.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, vars map[string]any) (bool, error)
}

// GojaEvaluator evaluates JavaScript expressions in a fresh goja runtime.
// Each variable is a global; all of them are also reachable through the
// "vars" object, which is the only way to read qualified names such as
// vars["text_node-1"].
type GojaEvaluator struct {
	Timeout time.Duration
}

// NewGojaEvaluator returns an evaluator that interrupts scripts after
// timeout. A zero timeout disables the limit.
func NewGojaEvaluator(timeout time.Duration) *GojaEvaluator {
	return &GojaEvaluator{Timeout: timeout}
}

// Evaluate runs expr with vars bound as globals and reports its truthiness.
func (e *GojaEvaluator) Evaluate(ctx context.Context, expr string, vars map[string]any) (bool, error) {
	vm := goja.New()
	for name, v := range vars {
		if err := vm.Set(name, v); err != nil {
			return false, fmt.Errorf("set %s: %w", name, err)
		}
	}
	if err := vm.Set("vars", vars); err != nil {
		return false, fmt.Errorf("set vars: %w", err)
	}

	if e.Timeout > 0 {
		timer := time.AfterFunc(e.Timeout, func() { vm.Interrupt("timeout") })
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	v, err := vm.RunString(expr)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return false, cause
			}
			return false, fmt.Errorf("condition interrupted: %v", interrupted.Value())
		}
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	return v.ToBoolean(), nil
}

// ConditionalRunner picks the branch of a conditional node. Structured
// conditions are checked first: every entry of Conditions must hold for
// branch 0, then each entry of Branches is tried as branch 1, 2, ... in
// order. Without structured conditions the expanded expression decides
// between branch 0 and the else branch.
type ConditionalRunner struct {
	eval Evaluator
}

// NewConditionalRunner returns a runner evaluating expressions with eval.
func NewConditionalRunner(eval Evaluator) *ConditionalRunner {
	return &ConditionalRunner{eval: eval}
}

// Run picks the branch index of the node.
func (r *ConditionalRunner) Run(ctx context.Context, s *flowgraph.WorkflowStore, node flowgraph.Node, inputs map[string]any) (map[string]any, error) {
	cfg, err := configOf[*flowgraph.ConditionalConfig](node)
	if err != nil {
		return nil, err
	}

	branch := -1
	switch {
	case len(cfg.Conditions) > 0 || len(cfg.Branches) > 0:
		branch, err = structuredBranch(s, node.ID, cfg, inputs)
		if err != nil {
			return nil, err
		}
	case strings.TrimSpace(cfg.TrueExpression) != "" || strings.TrimSpace(cfg.Expression) != "":
		expr := cfg.TrueExpression
		if expr == "" {
			expr = s.ReplaceVariables(cfg.Expression, node.ID, inputs)
		}
		ok, err := r.eval.Evaluate(ctx, expr, expressionVars(s, inputs))
		if err != nil {
			return nil, err
		}
		if ok {
			branch = 0
		}
	default:
		return nil, fmt.Errorf("conditional node %s has no condition", node.ID)
	}

	return map[string]any{
		"true":    branch >= 0,
		"false":   branch < 0,
		BranchKey: branch,
	}, nil
}

func structuredBranch(s *flowgraph.WorkflowStore, nodeID string, cfg *flowgraph.ConditionalConfig, inputs map[string]any) (int, error) {
	if len(cfg.Conditions) > 0 {
		all := true
		for _, c := range cfg.Conditions {
			ok, err := matches(s, nodeID, c, inputs)
			if err != nil {
				return 0, err
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			return 0, nil
		}
	}
	for i, c := range cfg.Branches {
		ok, err := matches(s, nodeID, c, inputs)
		if err != nil {
			return 0, err
		}
		if ok {
			return i + 1, nil
		}
	}
	return -1, nil
}

// matches evaluates one comparison. The field is looked up in the run
// inputs, then as a {token} against node outputs.
func matches(s *flowgraph.WorkflowStore, nodeID string, c flowgraph.Condition, inputs map[string]any) (bool, error) {
	var actual string
	if v, ok := inputs[c.Field]; ok {
		actual = flowgraph.FormatValue(v)
	} else {
		token := "{" + c.Field + "}"
		if got := s.ReplaceVariables(token, nodeID, inputs); got != token {
			actual = got
		}
	}
	want := c.Value
	op := strings.ToLower(c.Operator)

	switch op {
	case "eq", "equals", "==", "":
		return actual == want, nil
	case "ne", "neq", "not_equals", "!=":
		return actual != want, nil
	case "contains":
		return strings.Contains(actual, want), nil
	case "not_contains":
		return !strings.Contains(actual, want), nil
	case "starts_with":
		return strings.HasPrefix(actual, want), nil
	case "ends_with":
		return strings.HasSuffix(actual, want), nil
	case "empty":
		return strings.TrimSpace(actual) == "", nil
	case "not_empty":
		return strings.TrimSpace(actual) != "", nil
	case "gt", ">", "gte", ">=", "lt", "<", "lte", "<=":
		a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(want), 64)
		if errA != nil || errB != nil {
			return false, fmt.Errorf("condition %s %s %s: operands are not numbers", c.Field, c.Operator, c.Value)
		}
		switch op {
		case "gt", ">":
			return a > b, nil
		case "gte", ">=":
			return a >= b, nil
		case "lt", "<":
			return a < b, nil
		default:
			return a <= b, nil
		}
	default:
		return false, fmt.Errorf("unknown condition operator %q", c.Operator)
	}
}

// expressionVars exposes the run inputs and every node output, the latter
// under their qualified names.
func expressionVars(s *flowgraph.WorkflowStore, inputs map[string]any) map[string]any {
	vars := make(map[string]any, len(inputs))
	for nodeID, outputs := range s.AllNodeOutputValues() {
		for name, v := range outputs {
			vars[flowgraph.QualifiedName(name, nodeID)] = v
		}
	}
	for k, v := range inputs {
		vars[k] = v
	}
	return vars
}
