package expr

import (
	"fmt"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// Evaluate reduces a variable-free tree to a single number. Division by
// zero follows IEEE-754 and is not an error.
func Evaluate(node Node) (float64, error) {
	return evaluate(node, nil)
}

// Evaluate evaluates the root, reporting each applied operation to the
// attached tracer.
func (a *AST) Evaluate() (float64, error) {
	return evaluate(a.Root, a.tracer)
}

func evaluate(node Node, t Tracer) (float64, error) {
	switch n := node.(type) {
	case *NumberNode:
		return n.Value, nil
	case *VariableNode:
		return 0, types.NewUnboundVariableError(n.Name)
	case *BinaryNode:
		return evalBinary(n, t)
	case *EquationNode:
		return 0, types.NewNotAnExpressionError()
	default:
		return 0, fmt.Errorf("unsupported node type: %T", node)
	}
}

func evalBinary(n *BinaryNode, t Tracer) (float64, error) {
	left, err := evaluate(n.Left, t)
	if err != nil {
		return 0, err
	}
	right, err := evaluate(n.Right, t)
	if err != nil {
		return 0, err
	}

	result := n.Op.Apply(left, right)
	emit(t, PhaseEvaluate, "%s %s %s = %s",
		types.FormatNumber(left), n.Op, types.FormatNumber(right), types.FormatNumber(result))
	return result, nil
}

// Substitute returns a fresh tree in which every variable bound in bindings
// is replaced by a number leaf. Unbound variables are kept.
func Substitute(node Node, bindings map[rune]float64) Node {
	switch n := node.(type) {
	case *NumberNode:
		return Num(n.Value)
	case *VariableNode:
		if v, ok := bindings[n.Name]; ok {
			return Num(v)
		}
		return Var(n.Name)
	case *BinaryNode:
		return Bin(Substitute(n.Left, bindings), n.Op, Substitute(n.Right, bindings))
	case *EquationNode:
		return Eq(Substitute(n.Left, bindings), Substitute(n.Right, bindings))
	default:
		return node
	}
}

// Substitute replaces the root with its substituted form and refreshes the
// variable bookkeeping.
func (a *AST) Substitute(bindings map[rune]float64) Node {
	if len(bindings) == 0 {
		return a.Root
	}
	a.replaceRoot(Substitute(a.Root, bindings))
	return a.Root
}

// replaceRoot swaps in a rewritten tree and recomputes the derived fields.
func (a *AST) replaceRoot(root Node) {
	a.Root = root
	_, a.HasEquation = root.(*EquationNode)
	a.variables = Variables(root)
	a.VariableCount = len(a.variables)
}
