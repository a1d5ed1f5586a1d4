package expr

// Simplify rewrites a tree bottom-up into an equivalent, smaller tree. At
// each binary node, after its children are simplified, the first matching
// rule wins: constant folding, then the additive and multiplicative
// identities, then combining x + x into 2 * x. The result is a fresh tree
// and Simplify(Simplify(t)) is structurally equal to Simplify(t).
func Simplify(node Node) Node {
	return simplify(node, nil)
}

// Simplify replaces the root with its simplified form and returns it.
func (a *AST) Simplify() Node {
	a.Root = simplify(a.Root, a.tracer)
	return a.Root
}

func simplify(node Node, t Tracer) Node {
	switch n := node.(type) {
	case *NumberNode:
		return Num(n.Value)
	case *VariableNode:
		return Var(n.Name)
	case *BinaryNode:
		return simplifyBinary(n, t)
	case *EquationNode:
		return Eq(simplify(n.Left, t), simplify(n.Right, t))
	default:
		return node
	}
}

func simplifyBinary(n *BinaryNode, t Tracer) Node {
	left := simplify(n.Left, t)
	right := simplify(n.Right, t)

	if out, rule, ok := rewrite(left, n.Op, right); ok {
		emit(t, PhaseSimplify, "%s: %s => %s", rule, Bin(left, n.Op, right), out)
		return out
	}
	return Bin(left, n.Op, right)
}

// rewrite applies the first rule matching left op right. Both operands are
// already simplified.
func rewrite(left Node, op Operator, right Node) (Node, string, bool) {
	ln, lnum := left.(*NumberNode)
	rn, rnum := right.(*NumberNode)

	if lnum && rnum {
		return Num(op.Apply(ln.Value, rn.Value)), "fold", true
	}

	switch op {
	case OpAdd:
		if isConst(right, 0) {
			return left, "identity", true
		}
		if isConst(left, 0) {
			return right, "identity", true
		}
	case OpSubtract:
		if isConst(right, 0) {
			return left, "identity", true
		}
		// 0 - x is taken literally as x.
		if isConst(left, 0) {
			return right, "identity", true
		}
	case OpMultiply:
		if isConst(right, 1) {
			return left, "identity", true
		}
		if isConst(left, 1) {
			return right, "identity", true
		}
		if isConst(right, 0) || isConst(left, 0) {
			return Num(0), "identity", true
		}
	}

	if op == OpAdd {
		lv, lok := left.(*VariableNode)
		rv, rok := right.(*VariableNode)
		if lok && rok && lv.Name == rv.Name {
			return Bin(Num(2), OpMultiply, Var(lv.Name)), "like terms", true
		}
	}
	return nil, "", false
}

func isConst(node Node, v float64) bool {
	n, ok := node.(*NumberNode)
	return ok && n.Value == v
}
