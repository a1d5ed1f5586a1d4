package expr

import (
	"fmt"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// MaxNestingDepth is the maximum allowed parenthesis nesting depth.
const MaxNestingDepth = 64

// Parser is a recursive descent parser over a token sequence.
//
// Grammar (lowest to highest binding):
//
//	assignment := term ('=' term)?
//	term       := factor (('+'|'-') factor)*
//	factor     := exponent (('*'|'/') exponent)*
//	exponent   := primary ('^' primary)*
//	primary    := NUMBER | VARIABLE | '(' term ')'
//
// A parenthesized group is sliced out of the sequence and handed to a fresh
// Parser that only sees the tokens between the matching parentheses.
type Parser struct {
	tokens []Token
	pos    int
	depth  int
	end    int // source offset reported for running out of tokens
	seen   map[rune]struct{}
}

// ParseString tokenizes and parses a formula.
func ParseString(input string) (*AST, error) {
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

// Parse builds an AST from a token sequence.
func Parse(tokens []Token) (*AST, error) {
	p := &Parser{
		tokens: tokens,
		end:    endOffset(tokens),
		seen:   make(map[rune]struct{}),
	}

	root, isEquation, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}

	return &AST{
		Root:          root,
		VariableCount: len(p.seen),
		HasEquation:   isEquation,
		variables:     sortedVariables(p.seen),
	}, nil
}

func endOffset(tokens []Token) int {
	if len(tokens) == 0 {
		return 0
	}
	last := tokens[len(tokens)-1]
	return last.Pos + len(last.Value)
}

// current returns the current token.
func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, Pos: p.end}
	}
	return p.tokens[p.pos]
}

// advance consumes the current token and returns it.
func (p *Parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// parseAssignment is the entry point: an expression optionally followed by
// '=' and a second expression.
func (p *Parser) parseAssignment() (Node, bool, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, false, err
	}

	switch p.current().Type {
	case TokenEOF:
		return left, false, nil
	case TokenEquals:
		p.advance()
	default:
		return nil, false, p.leftover()
	}

	right, err := p.parseTerm()
	if err != nil {
		return nil, false, err
	}

	switch tok := p.current(); tok.Type {
	case TokenEOF:
		return &EquationNode{Left: left, Right: right}, true, nil
	case TokenEquals:
		return nil, false, types.NewParseError(types.KindMultipleEquals,
			"only one '=' is allowed in an equation", tok.Pos, tok.Value)
	default:
		return nil, false, p.leftover()
	}
}

// leftover reports the token that stopped a complete production.
func (p *Parser) leftover() error {
	tok := p.current()
	if tok.Type == TokenRParen {
		return types.NewParseError(types.KindMismatchedParens,
			"')' has no matching '('", tok.Pos, tok.Value)
	}
	return types.NewParseError(types.KindUnexpectedToken,
		fmt.Sprintf("unexpected %s %q", tok.Type, tok.Symbol()), tok.Pos, tok.Symbol())
}

func (p *Parser) parseTerm() (Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenPlus || p.current().Type == TokenMinus {
		op, _ := operatorFor(p.advance().Type)
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Left: left, Op: op, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (Node, error) {
	left, err := p.parseExponent()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenStar || p.current().Type == TokenSlash {
		op, _ := operatorFor(p.advance().Type)
		right, err := p.parseExponent()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Left: left, Op: op, Right: right}
	}
	return left, nil
}

// parseExponent folds '^' to the left like every other level.
func (p *Parser) parseExponent() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenCaret {
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Left: left, Op: OpPower, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		return &NumberNode{Value: tok.Num}, nil
	case TokenVariable:
		p.advance()
		p.seen[tok.Name] = struct{}{}
		return &VariableNode{Name: tok.Name}, nil
	case TokenLParen:
		return p.parseGroup()
	case TokenEOF:
		return nil, types.NewParseError(types.KindUnexpectedEnd,
			"formula ended where a number or variable was expected", tok.Pos, "")
	case TokenRParen:
		return nil, types.NewParseError(types.KindMismatchedParens,
			"')' has no matching '('", tok.Pos, tok.Value)
	default:
		return nil, types.NewParseError(types.KindExpectedNumberOrVariable,
			fmt.Sprintf("expected number or variable, found %q", tok.Value), tok.Pos, tok.Value)
	}
}

// parseGroup slices out the balanced run after '(' and parses it with an
// independent sub-parser. An empty group is the number zero.
func (p *Parser) parseGroup() (Node, error) {
	open := p.advance()
	if p.depth+1 > MaxNestingDepth {
		return nil, types.NewParseError(types.KindNestingTooDeep,
			fmt.Sprintf("parentheses nested deeper than %d", MaxNestingDepth), open.Pos, open.Value)
	}

	start := p.pos
	depth := 1
	for ; p.pos < len(p.tokens); p.pos++ {
		switch p.tokens[p.pos].Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		}
		if depth == 0 {
			break
		}
	}
	if depth != 0 {
		return nil, types.NewParseError(types.KindMismatchedParens,
			"'(' is never closed", open.Pos, open.Value)
	}

	inner := make([]Token, p.pos-start)
	copy(inner, p.tokens[start:p.pos])
	closing := p.advance()

	if len(inner) == 0 {
		return &NumberNode{Value: 0}, nil
	}
	for _, tok := range inner {
		if tok.Type == TokenEquals {
			return nil, types.NewParseError(types.KindNestedEquation,
				"'=' is only allowed at the top level", tok.Pos, tok.Value)
		}
	}

	sub := &Parser{
		tokens: inner,
		depth:  p.depth + 1,
		end:    closing.Pos,
		seen:   p.seen,
	}
	node, err := sub.parseTerm()
	if err != nil {
		return nil, err
	}

	if sub.current().Type != TokenEOF {
		return nil, sub.leftover()
	}
	return node, nil
}
