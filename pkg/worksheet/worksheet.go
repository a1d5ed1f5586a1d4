// Package worksheet defines worksheets: named batches of formula operations
// written in YAML or JSON. These types represent a worksheet after parsing
// and before execution.
package worksheet

import (
	"fmt"
	"strings"
)

// Op is the pipeline operation a step performs.
type Op string

const (
	OpTokenize Op = "tokenize"
	OpParse    Op = "parse"
	OpEvaluate Op = "evaluate"
	OpSimplify Op = "simplify"
	OpSolve    Op = "solve"
	OpIsolate  Op = "isolate"
)

// Ops lists every operation in pipeline order.
var Ops = []Op{OpTokenize, OpParse, OpEvaluate, OpSimplify, OpSolve, OpIsolate}

// ParseOp resolves an operation name. "eval" is accepted for evaluate.
func ParseOp(s string) (Op, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "eval" {
		return OpEvaluate, nil
	}
	for _, op := range Ops {
		if string(op) == name {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation '%s'", s)
}

// TargetsVariable reports whether the operation rearranges for a variable.
func (o Op) TargetsVariable() bool {
	return o == OpSolve || o == OpIsolate
}

// Worksheet is a complete parsed worksheet.
type Worksheet struct {
	// Name identifies the worksheet in reports.
	Name string

	// Description is free text.
	Description string

	// Vars are bindings visible to every step.
	Vars map[rune]float64

	// Steps run in declaration order; results are reported in the same order.
	Steps []*Step
}

// Step is a single operation applied to one formula.
type Step struct {
	// Name is the step identifier, unique within the worksheet.
	Name string

	// Op is the operation to perform.
	Op Op

	// Formula is the formula text handed to the tokenizer.
	Formula string

	// Variable is the solve target. Zero means the formula's first variable.
	Variable rune

	// Expect is the expected string form of the result.
	Expect string

	// HasExpect distinguishes expect: "" from no expectation.
	HasExpect bool

	// Set holds step-local bindings that override worksheet vars.
	Set map[rune]float64

	// Substitute applies bindings before simplify, solve and isolate.
	Substitute bool
}

// UsesBindings reports whether bindings are substituted into the formula
// before the operation runs.
func (s *Step) UsesBindings() bool {
	switch s.Op {
	case OpEvaluate:
		return true
	case OpSimplify, OpSolve, OpIsolate:
		return s.Substitute
	default:
		return false
	}
}
