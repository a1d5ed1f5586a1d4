package types

import (
	"fmt"
)

// Stage names the pipeline stage that produced an error.
type Stage string

const (
	StageLex   Stage = "lex"
	StageParse Stage = "parse"
	StageEval  Stage = "eval"
	StageSolve Stage = "solve"
)

// Kind identifies a specific failure.
type Kind int

const (
	KindUnexpectedSymbol Kind = iota + 1
	KindNumberOutOfRange
	KindFormulaTooLong

	KindMismatchedParens
	KindUnexpectedEnd
	KindExpectedNumberOrVariable
	KindUnexpectedToken
	KindMultipleEquals
	KindNestedEquation
	KindNestingTooDeep

	KindUnboundVariable
	KindNotAnExpression

	KindNotAnEquation
	KindOnlyVariablesCanBeRearranged
	KindVariableNotFound
	KindVariableOnBothSides
	KindNoInverse
	KindIsolationLimit
)

var kindNames = map[Kind]string{
	KindUnexpectedSymbol:             "UnexpectedSymbol",
	KindNumberOutOfRange:             "NumberOutOfRange",
	KindFormulaTooLong:               "FormulaTooLong",
	KindMismatchedParens:             "MismatchedParens",
	KindUnexpectedEnd:                "UnexpectedEnd",
	KindExpectedNumberOrVariable:     "ExpectedNumberOrVariable",
	KindUnexpectedToken:              "UnexpectedToken",
	KindMultipleEquals:               "MultipleEquals",
	KindNestedEquation:               "NestedEquation",
	KindNestingTooDeep:               "NestingTooDeep",
	KindUnboundVariable:              "UnboundVariable",
	KindNotAnExpression:              "NotAnExpression",
	KindNotAnEquation:                "NotAnEquation",
	KindOnlyVariablesCanBeRearranged: "OnlyVariablesCanBeRearranged",
	KindVariableNotFound:             "VariableNotFound",
	KindVariableOnBothSides:          "VariableOnBothSides",
	KindNoInverse:                    "NoInverse",
	KindIsolationLimit:               "IsolationLimit",
}

// String returns the kind name as used in error payloads.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Stage returns the pipeline stage the kind belongs to.
func (k Kind) Stage() Stage {
	switch {
	case k >= KindUnexpectedSymbol && k <= KindFormulaTooLong:
		return StageLex
	case k >= KindMismatchedParens && k <= KindNestingTooDeep:
		return StageParse
	case k >= KindUnboundVariable && k <= KindNotAnExpression:
		return StageEval
	default:
		return StageSolve
	}
}

// Error is the failure type returned by every stage of the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Pos     int    // byte offset in the formula, -1 when not applicable
	Symbol  string // offending character, token or variable name
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at %d)", e.Kind, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports kind equality so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Stage returns the stage that produced the error.
func (e *Error) Stage() Stage {
	return e.Kind.Stage()
}

// ToMap converts the error to the payload shape used by the HTTP and gRPC APIs.
func (e *Error) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"message": e.Message,
		"kind":    e.Kind.String(),
		"stage":   string(e.Stage()),
	}
	if e.Pos >= 0 {
		m["position"] = e.Pos
	}
	if e.Symbol != "" {
		m["symbol"] = e.Symbol
	}
	return m
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnexpectedSymbol             = &Error{Kind: KindUnexpectedSymbol, Pos: -1}
	ErrNumberOutOfRange             = &Error{Kind: KindNumberOutOfRange, Pos: -1}
	ErrFormulaTooLong               = &Error{Kind: KindFormulaTooLong, Pos: -1}
	ErrMismatchedParens             = &Error{Kind: KindMismatchedParens, Pos: -1}
	ErrUnexpectedEnd                = &Error{Kind: KindUnexpectedEnd, Pos: -1}
	ErrExpectedNumberOrVariable     = &Error{Kind: KindExpectedNumberOrVariable, Pos: -1}
	ErrUnexpectedToken              = &Error{Kind: KindUnexpectedToken, Pos: -1}
	ErrMultipleEquals               = &Error{Kind: KindMultipleEquals, Pos: -1}
	ErrNestedEquation               = &Error{Kind: KindNestedEquation, Pos: -1}
	ErrNestingTooDeep               = &Error{Kind: KindNestingTooDeep, Pos: -1}
	ErrUnboundVariable              = &Error{Kind: KindUnboundVariable, Pos: -1}
	ErrNotAnExpression              = &Error{Kind: KindNotAnExpression, Pos: -1}
	ErrNotAnEquation                = &Error{Kind: KindNotAnEquation, Pos: -1}
	ErrOnlyVariablesCanBeRearranged = &Error{Kind: KindOnlyVariablesCanBeRearranged, Pos: -1}
	ErrVariableNotFound             = &Error{Kind: KindVariableNotFound, Pos: -1}
	ErrVariableOnBothSides          = &Error{Kind: KindVariableOnBothSides, Pos: -1}
	ErrNoInverse                    = &Error{Kind: KindNoInverse, Pos: -1}
	ErrIsolationLimit               = &Error{Kind: KindIsolationLimit, Pos: -1}
)

// Common error constructors.

// NewUnexpectedSymbolError reports a character outside the formula alphabet.
func NewUnexpectedSymbolError(ch rune, pos int) *Error {
	return &Error{
		Kind:    KindUnexpectedSymbol,
		Message: fmt.Sprintf("unexpected symbol %q", ch),
		Pos:     pos,
		Symbol:  string(ch),
	}
}

// NewNumberOutOfRangeError reports a literal that does not fit a float64.
func NewNumberOutOfRangeError(literal string, pos int) *Error {
	return &Error{
		Kind:    KindNumberOutOfRange,
		Message: fmt.Sprintf("number %s is out of range", literal),
		Pos:     pos,
		Symbol:  literal,
	}
}

// NewFormulaTooLongError reports input above the length limit.
func NewFormulaTooLongError(length, max int) *Error {
	return &Error{
		Kind:    KindFormulaTooLong,
		Message: fmt.Sprintf("formula length %d exceeds maximum of %d bytes", length, max),
		Pos:     -1,
	}
}

// NewParseError creates a parse-stage error of the given kind.
func NewParseError(kind Kind, msg string, pos int, found string) *Error {
	return &Error{Kind: kind, Message: msg, Pos: pos, Symbol: found}
}

// NewUnboundVariableError reports a free variable during evaluation.
func NewUnboundVariableError(name rune) *Error {
	return &Error{
		Kind:    KindUnboundVariable,
		Message: fmt.Sprintf("variable %c has no value", name),
		Pos:     -1,
		Symbol:  string(name),
	}
}

// NewNotAnExpressionError reports an attempt to evaluate an equation.
func NewNotAnExpressionError() *Error {
	return &Error{Kind: KindNotAnExpression, Message: "equations cannot be evaluated to a number", Pos: -1}
}

// NewSolveError creates a solve-stage error of the given kind.
func NewSolveError(kind Kind, msg string, variable rune) *Error {
	e := &Error{Kind: kind, Message: msg, Pos: -1}
	if variable != 0 {
		e.Symbol = string(variable)
	}
	return e
}
