package expr

import (
	"fmt"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// MaxIsolationSteps bounds the number of operators Isolate will peel.
const MaxIsolationSteps = 32

// SolveFor rearranges the equation into "v = expression" using a single
// inversion step, replaces the root with the result and returns it.
// The operand holding v must be v itself; deeper shapes are rejected with
// OnlyVariablesCanBeRearranged (see Isolate for the multi-step form).
func (a *AST) SolveFor(v rune) (Node, error) {
	lhs, rhs, err := a.sides(v)
	if err != nil {
		return nil, err
	}

	if b, ok := lhs.(*BinaryNode); ok {
		if b.Op == OpPower {
			return nil, noInverse(v)
		}
		before := rhs
		switch {
		case isVar(b.Right, v) && !ContainsVariable(b.Left, v):
			rhs = invert(b.Op, b.Left, rhs, true)
		case isVar(b.Left, v) && !ContainsVariable(b.Right, v):
			rhs = invert(b.Op, b.Right, rhs, false)
		default:
			return nil, types.NewSolveError(types.KindOnlyVariablesCanBeRearranged,
				fmt.Sprintf("%c is nested too deeply in %s to rearrange in one step", v, b), v)
		}
		emit(a.tracer, PhaseSolve, "%s = %s => %c = %s", b, before, v, rhs)
	}

	return a.finish(v, rhs), nil
}

// Isolate rearranges the equation into "v = expression" by repeatedly
// peeling the outermost operator off the side holding v, simplifying the
// other side after every step. The operand holding v may be any sub-tree.
func (a *AST) Isolate(v rune) (Node, error) {
	lhs, rhs, err := a.sides(v)
	if err != nil {
		return nil, err
	}

	for step := 0; ; step++ {
		b, ok := lhs.(*BinaryNode)
		if !ok {
			break
		}
		if step == MaxIsolationSteps {
			return nil, types.NewSolveError(types.KindIsolationLimit,
				fmt.Sprintf("%c is not isolated after %d steps", v, MaxIsolationSteps), v)
		}
		if b.Op == OpPower {
			return nil, noInverse(v)
		}

		inLeft := ContainsVariable(b.Left, v)
		inRight := ContainsVariable(b.Right, v)
		switch {
		case inLeft && inRight:
			return nil, types.NewSolveError(types.KindOnlyVariablesCanBeRearranged,
				fmt.Sprintf("%c occurs in both operands of %s", v, b), v)
		case inRight:
			rhs = simplify(invert(b.Op, b.Left, rhs, true), a.tracer)
			lhs = b.Right
		default:
			rhs = simplify(invert(b.Op, b.Right, rhs, false), a.tracer)
			lhs = b.Left
		}
		emit(a.tracer, PhaseSolve, "peel %s: %s = %s", b.Op, lhs, rhs)
	}

	return a.finish(v, rhs), nil
}

// sides validates the root and returns the simplified equation sides with
// v on the left.
func (a *AST) sides(v rune) (Node, Node, error) {
	eq, ok := a.Root.(*EquationNode)
	if !ok {
		return nil, nil, types.NewSolveError(types.KindNotAnEquation,
			"only equations can be solved", 0)
	}

	lhs := simplify(eq.Left, a.tracer)
	rhs := simplify(eq.Right, a.tracer)

	inLeft := ContainsVariable(lhs, v)
	inRight := ContainsVariable(rhs, v)
	switch {
	case !inLeft && !inRight:
		return nil, nil, types.NewSolveError(types.KindVariableNotFound,
			fmt.Sprintf("%c does not occur in the equation", v), v)
	case inLeft && inRight:
		return nil, nil, types.NewSolveError(types.KindVariableOnBothSides,
			fmt.Sprintf("%c occurs on both sides of the equation", v), v)
	case inRight:
		emit(a.tracer, PhaseSolve, "swap sides")
		lhs, rhs = rhs, lhs
	}
	return lhs, rhs, nil
}

func (a *AST) finish(v rune, rhs Node) Node {
	a.Root = Eq(Var(v), simplify(rhs, a.tracer))
	a.HasEquation = true
	return a.Root
}

// invert moves c across the equals sign. right reports whether the target
// is the right operand of op, i.e. the equation reads c op v = r.
func invert(op Operator, c, r Node, right bool) Node {
	if right && (op == OpSubtract || op == OpDivide) {
		// c - v = r => v = c - r; c / v = r => v = c / r
		return Bin(c, op, r)
	}
	inv, _ := op.Inverse()
	return Bin(r, inv, c)
}

func isVar(node Node, v rune) bool {
	n, ok := node.(*VariableNode)
	return ok && n.Name == v
}

func noInverse(v rune) error {
	return types.NewSolveError(types.KindNoInverse,
		fmt.Sprintf("cannot isolate %c from an exponent", v), v)
}
