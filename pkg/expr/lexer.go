package expr

import (
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// MaxFormulaLength is the maximum allowed length in bytes for a single formula.
const MaxFormulaLength = 4096

// Lexer tokenizes a formula string.
type Lexer struct {
	input  string
	pos    int
	tokens []Token

	// pending digit run
	numStart int
	numEnd   int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, numStart: -1}
}

// Tokenize scans the formula and returns its tokens in source order.
func Tokenize(input string) (Tokens, error) {
	return NewLexer(input).Tokenize()
}

// Tokenize scans the entire input and returns all tokens.
func (l *Lexer) Tokenize() (Tokens, error) {
	if len(l.input) > MaxFormulaLength {
		return nil, types.NewFormulaTooLongError(len(l.input), MaxFormulaLength)
	}

	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])

		if r >= '0' && r <= '9' {
			if l.numStart < 0 {
				l.numStart = l.pos
			}
			l.pos += size
			l.numEnd = l.pos
			continue
		}

		// Any non-digit terminates the pending number.
		if err := l.flushNumber(); err != nil {
			return nil, err
		}

		if err := l.scanSymbol(r); err != nil {
			return nil, err
		}
		l.pos += size
	}

	// Input ending in digits.
	if err := l.flushNumber(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

// scanSymbol emits the token for a single non-digit character.
func (l *Lexer) scanSymbol(r rune) error {
	var tt TokenType
	switch r {
	case ' ', '\t', '\r', '\n':
		return nil
	case '+':
		tt = TokenPlus
	case '-':
		tt = TokenMinus
	case '*':
		tt = TokenStar
	case '/':
		tt = TokenSlash
	case '^':
		tt = TokenCaret
	case '=':
		tt = TokenEquals
	case '(':
		tt = TokenLParen
	case ')':
		tt = TokenRParen
	default:
		if unicode.IsLetter(r) {
			l.tokens = append(l.tokens, Token{Type: TokenVariable, Value: string(r), Name: r, Pos: l.pos})
			return nil
		}
		return types.NewUnexpectedSymbolError(r, l.pos)
	}
	l.tokens = append(l.tokens, Token{Type: tt, Value: string(r), Pos: l.pos})
	return nil
}

func (l *Lexer) flushNumber() error {
	if l.numStart < 0 {
		return nil
	}
	raw := l.input[l.numStart:l.numEnd]
	start := l.numStart
	l.numStart = -1

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return types.NewNumberOutOfRangeError(raw, start)
	}
	l.tokens = append(l.tokens, Token{Type: TokenNumber, Value: raw, Num: f, Pos: start})
	return nil
}
