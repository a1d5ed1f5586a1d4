package expr

import (
	"math"
	"sort"
)

// Operator is a binary arithmetic operator.
type Operator int

const (
	OpAdd Operator = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpPower
)

// String returns the operator symbol.
func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpPower:
		return "^"
	default:
		return "?"
	}
}

// Apply evaluates l op r with IEEE-754 semantics; division by zero yields
// ±Inf or NaN rather than an error.
func (o Operator) Apply(l, r float64) float64 {
	switch o {
	case OpAdd:
		return l + r
	case OpSubtract:
		return l - r
	case OpMultiply:
		return l * r
	case OpDivide:
		return l / r
	case OpPower:
		return math.Pow(l, r)
	default:
		return math.NaN()
	}
}

// Inverse returns the operator that undoes o. Power has no inverse.
func (o Operator) Inverse() (Operator, bool) {
	switch o {
	case OpAdd:
		return OpSubtract, true
	case OpSubtract:
		return OpAdd, true
	case OpMultiply:
		return OpDivide, true
	case OpDivide:
		return OpMultiply, true
	default:
		return 0, false
	}
}

// precedence is the binding strength used by the formatter.
func (o Operator) precedence() int {
	switch o {
	case OpAdd, OpSubtract:
		return 1
	case OpMultiply, OpDivide:
		return 2
	case OpPower:
		return 3
	default:
		return 0
	}
}

func operatorFor(tt TokenType) (Operator, bool) {
	switch tt {
	case TokenPlus:
		return OpAdd, true
	case TokenMinus:
		return OpSubtract, true
	case TokenStar:
		return OpMultiply, true
	case TokenSlash:
		return OpDivide, true
	case TokenCaret:
		return OpPower, true
	default:
		return 0, false
	}
}

// Node is the interface for all expression tree nodes.
type Node interface {
	nodeType() string
	String() string
}

// NumberNode is a numeric leaf.
type NumberNode struct {
	Value float64
}

func (n *NumberNode) nodeType() string { return "Number" }

// VariableNode is a single-letter variable leaf.
type VariableNode struct {
	Name rune
}

func (n *VariableNode) nodeType() string { return "Variable" }

// BinaryNode applies Op to two exclusively owned sub-trees.
type BinaryNode struct {
	Left  Node
	Op    Operator
	Right Node
}

func (n *BinaryNode) nodeType() string { return "Binary" }

// EquationNode states Left == Right. It only ever appears as a tree root.
type EquationNode struct {
	Left  Node
	Right Node
}

func (n *EquationNode) nodeType() string { return "Equation" }

// Num, Var, Bin and Eq are shorthand constructors.
func Num(v float64) *NumberNode                   { return &NumberNode{Value: v} }
func Var(name rune) *VariableNode                 { return &VariableNode{Name: name} }
func Bin(l Node, op Operator, r Node) *BinaryNode { return &BinaryNode{Left: l, Op: op, Right: r} }
func Eq(l, r Node) *EquationNode                  { return &EquationNode{Left: l, Right: r} }

// Equal reports structural equality. NaN leaves compare equal so that
// rewriting a tree containing 0/0 stays a fixed point.
func Equal(a, b Node) bool {
	switch x := a.(type) {
	case *NumberNode:
		y, ok := b.(*NumberNode)
		if !ok {
			return false
		}
		if math.IsNaN(x.Value) && math.IsNaN(y.Value) {
			return true
		}
		return x.Value == y.Value
	case *VariableNode:
		y, ok := b.(*VariableNode)
		return ok && x.Name == y.Name
	case *BinaryNode:
		y, ok := b.(*BinaryNode)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *EquationNode:
		y, ok := b.(*EquationNode)
		return ok && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case nil:
		return b == nil
	default:
		return false
	}
}

// Clone returns a deep copy of the tree.
func Clone(node Node) Node {
	switch n := node.(type) {
	case *NumberNode:
		return Num(n.Value)
	case *VariableNode:
		return Var(n.Name)
	case *BinaryNode:
		return Bin(Clone(n.Left), n.Op, Clone(n.Right))
	case *EquationNode:
		return Eq(Clone(n.Left), Clone(n.Right))
	default:
		return node
	}
}

// ContainsVariable reports whether name occurs anywhere in the tree.
func ContainsVariable(node Node, name rune) bool {
	switch n := node.(type) {
	case *VariableNode:
		return n.Name == name
	case *BinaryNode:
		return ContainsVariable(n.Left, name) || ContainsVariable(n.Right, name)
	case *EquationNode:
		return ContainsVariable(n.Left, name) || ContainsVariable(n.Right, name)
	default:
		return false
	}
}

// Variables returns the distinct variables of the tree in ascending order.
func Variables(node Node) []rune {
	seen := make(map[rune]struct{})
	collectVariables(node, seen)
	return sortedVariables(seen)
}

func collectVariables(node Node, seen map[rune]struct{}) {
	switch n := node.(type) {
	case *VariableNode:
		seen[n.Name] = struct{}{}
	case *BinaryNode:
		collectVariables(n.Left, seen)
		collectVariables(n.Right, seen)
	case *EquationNode:
		collectVariables(n.Left, seen)
		collectVariables(n.Right, seen)
	}
}

func sortedVariables(seen map[rune]struct{}) []rune {
	out := make([]rune, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AST holds a parsed formula together with what the parser learned about it.
type AST struct {
	Root          Node
	VariableCount int  // distinct variables seen while parsing
	HasEquation   bool // root is an EquationNode

	variables []rune
	tracer    Tracer
}

// Variables returns the distinct variables seen while parsing, ascending.
func (a *AST) Variables() []rune {
	out := make([]rune, len(a.variables))
	copy(out, a.variables)
	return out
}

// SetTracer attaches a tracer that observes Evaluate, Simplify and solving.
// A nil tracer disables tracing.
func (a *AST) SetTracer(t Tracer) {
	a.tracer = t
}

// String renders the current root.
func (a *AST) String() string {
	if a.Root == nil {
		return ""
	}
	return a.Root.String()
}
