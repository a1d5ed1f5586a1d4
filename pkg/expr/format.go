package expr

import (
	"strings"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// String renders the number in its shortest round-trip form.
func (n *NumberNode) String() string { return types.FormatNumber(n.Value) }

// String renders the variable name.
func (n *VariableNode) String() string { return string(n.Name) }

// String renders the node in infix form with the fewest parentheses that
// still describe the same tree. Every level is left-associative, so a right
// operand of equal precedence keeps its parentheses.
func (n *BinaryNode) String() string {
	var sb strings.Builder
	writeOperand(&sb, n.Left, n.Op.precedence(), false)
	sb.WriteByte(' ')
	sb.WriteString(n.Op.String())
	sb.WriteByte(' ')
	writeOperand(&sb, n.Right, n.Op.precedence(), true)
	return sb.String()
}

// String renders "left = right".
func (n *EquationNode) String() string {
	return Format(n.Left) + " = " + Format(n.Right)
}

func writeOperand(sb *strings.Builder, node Node, parent int, right bool) {
	b, ok := node.(*BinaryNode)
	if !ok {
		sb.WriteString(Format(node))
		return
	}
	prec := b.Op.precedence()
	if prec < parent || (right && prec == parent) {
		sb.WriteByte('(')
		sb.WriteString(b.String())
		sb.WriteByte(')')
		return
	}
	sb.WriteString(b.String())
}

// Format renders any node, including nil, as text.
func Format(node Node) string {
	if node == nil {
		return ""
	}
	return node.String()
}

// ValueOf converts a tree into the result type shared with the API layers.
func ValueOf(node Node) types.Value {
	switch n := node.(type) {
	case nil:
		return types.Null
	case *NumberNode:
		return types.NewNumber(n.Value)
	case *EquationNode:
		return types.NewEquation(n.String())
	default:
		return types.NewExpression(node.String())
	}
}
