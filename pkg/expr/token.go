// Package expr implements the formula pipeline: a tokenizer, a
// recursive-descent parser producing an expression tree, and the rewrite
// engine on top of it (evaluation, simplification and solving for a
// variable).
package expr

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Operands
	TokenNumber   TokenType = iota // integer literal
	TokenVariable                  // single-letter variable

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenCaret // ^

	// Structure
	TokenEquals // =
	TokenLParen // (
	TokenRParen // )

	// Special
	TokenEOF // past the end of the sequence; never produced by Tokenize
)

// Token represents a single lexical token.
type Token struct {
	Type  TokenType
	Value string  // raw source text
	Num   float64 // parsed value (for TokenNumber)
	Name  rune    // variable name (for TokenVariable)
	Pos   int     // byte offset in source
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "NUMBER"
	case TokenVariable:
		return "VARIABLE"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenCaret:
		return "CARET"
	case TokenEquals:
		return "EQUALS"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Symbol returns the token as it appears in a formatted token sequence:
// numbers as written, variables as Var(x), everything else as its character.
func (t Token) Symbol() string {
	switch t.Type {
	case TokenNumber:
		return t.Value
	case TokenVariable:
		return fmt.Sprintf("Var(%c)", t.Name)
	case TokenEOF:
		return "EOF"
	default:
		return t.Value
	}
}

// Tokens is an ordered token sequence.
type Tokens []Token

// String renders the sequence with single spaces between symbols, e.g.
// "Var(x) + 32 + 5 / 3 = ) / (".
func (ts Tokens) String() string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.Symbol()
	}
	return strings.Join(parts, " ")
}
