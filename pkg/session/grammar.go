// Package session implements the line-oriented command language shared by
// the REPL and batch mode:
//
//	solve for x: 3 * x = y
//	eval: 3 + 5 * 4
//	let y = 9
//	2 * x + 3 = 7        (bare: solve when it has '=', evaluate otherwise)
package session

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

var commandLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Rest", Pattern: `:[^\n]*`},
	{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Punct", Pattern: `=`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
})

type commandLine struct {
	Let *letCommand `parser:"  @@"`
	Op  *opCommand  `parser:"| @@"`
}

type letCommand struct {
	Name  string  `parser:"'let' @Ident '='"`
	Value float64 `parser:"@Number"`
}

type opCommand struct {
	Op       string      `parser:"@Ident"`
	Variable string      `parser:"('for' @Ident)?"`
	Formula  formulaText `parser:"@Rest"`
}

// formulaText captures everything after the colon.
type formulaText string

func (f *formulaText) Capture(values []string) error {
	*f = formulaText(strings.TrimSpace(strings.TrimPrefix(strings.Join(values, ""), ":")))
	return nil
}

var commandParser = participle.MustBuild[commandLine](
	participle.Lexer(commandLexer),
	participle.Elide("Whitespace"),
)

// Command is one parsed session line.
type Command struct {
	Op       worksheet.Op
	Variable rune // zero picks the formula's first variable
	Formula  string

	// Let is set for "let x = 3"; Op and Formula are then empty.
	Let *Binding
}

// Binding is a variable assignment made with let.
type Binding struct {
	Name  rune
	Value float64
}

func (c *Command) String() string {
	switch {
	case c.Let != nil:
		return fmt.Sprintf("let %c = %g", c.Let.Name, c.Let.Value)
	case c.Variable != 0:
		return fmt.Sprintf("%s for %c: %s", c.Op, c.Variable, c.Formula)
	default:
		return fmt.Sprintf("%s: %s", c.Op, c.Formula)
	}
}

// ParseLine parses one line. Blank lines and '#' comments return nil.
func ParseLine(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}

	parsed, err := commandParser.ParseString("", line)
	if err != nil {
		if strings.Contains(line, ":") {
			return nil, fmt.Errorf("invalid command: %w", err)
		}
		return bare(line), nil
	}

	if parsed.Let != nil {
		name, err := worksheet.ParseVariableName(parsed.Let.Name)
		if err != nil {
			return nil, err
		}
		return &Command{Let: &Binding{Name: name, Value: parsed.Let.Value}}, nil
	}

	op, err := worksheet.ParseOp(parsed.Op.Op)
	if err != nil {
		return nil, err
	}
	cmd := &Command{Op: op, Formula: string(parsed.Op.Formula)}
	if parsed.Op.Variable != "" {
		if !op.TargetsVariable() {
			return nil, fmt.Errorf("'for' is only valid with solve and isolate")
		}
		if cmd.Variable, err = worksheet.ParseVariableName(parsed.Op.Variable); err != nil {
			return nil, err
		}
	}
	return cmd, nil
}

// bare picks an operation for a line without one.
func bare(line string) *Command {
	if strings.Contains(line, "=") {
		return &Command{Op: worksheet.OpSolve, Formula: line}
	}
	return &Command{Op: worksheet.OpEvaluate, Formula: line}
}
