package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		op       worksheet.Op
		variable rune
		formula  string
	}{
		{"solve for x: 3 * x = y", worksheet.OpSolve, 'x', "3 * x = y"},
		{"  isolate for y : y - 2 = x ", worksheet.OpIsolate, 'y', "y - 2 = x"},
		{"eval: 3 + 5 * 4", worksheet.OpEvaluate, 0, "3 + 5 * 4"},
		{"Evaluate:2^3", worksheet.OpEvaluate, 0, "2^3"},
		{"tokenize: x + 32+5/ 3 = ) / (", worksheet.OpTokenize, 0, "x + 32+5/ 3 = ) / ("},
		{"simplify: x + x", worksheet.OpSimplify, 0, "x + x"},
		{"parse: (a + b) * c", worksheet.OpParse, 0, "(a + b) * c"},
		{"2 * x + 3 = 7", worksheet.OpSolve, 0, "2 * x + 3 = 7"},
		{"3 + 5 * 4", worksheet.OpEvaluate, 0, "3 + 5 * 4"},
		{"x", worksheet.OpEvaluate, 0, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseLine(tt.line)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if cmd.Op != tt.op || cmd.Variable != tt.variable || cmd.Formula != tt.formula {
				t.Errorf("got %s (%q), want op=%s var=%q formula=%q", cmd, cmd.Variable, tt.op, tt.variable, tt.formula)
			}
		})
	}
}

func TestParseLet(t *testing.T) {
	cmd, err := ParseLine("let y = -2.5")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cmd.Let == nil || cmd.Let.Name != 'y' || cmd.Let.Value != -2.5 {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.String() != "let y = -2.5" {
		t.Errorf("String: %q", cmd.String())
	}
}

func TestParseLineSkips(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment", "  # indented comment"} {
		cmd, err := ParseLine(line)
		if err != nil || cmd != nil {
			t.Errorf("%q: expected skip, got %v %v", line, cmd, err)
		}
	}
}

func TestParseLineErrors(t *testing.T) {
	tests := []string{
		"integrate: x",
		"evaluate for x: x + 1",
		"solve for xy: xy = 1",
		"let xy = 3",
		"solve for: x = 1",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			if _, err := ParseLine(line); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSessionExecute(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	steps := []struct {
		line string
		want string
	}{
		{"let y = 9", "9"},
		{"eval: 3 * y", "27"},
		{"solve for x: 3 * x = y", "x = y / 3"},
		{"x + 3 = 7", "x = 4"},
		{"simplify: x * 1 + 0", "x"},
		{"let y = 1", "1"},
		{"y + 1", "2"},
	}
	for _, st := range steps {
		res := s.Execute(ctx, st.line)
		if res.Err != nil {
			t.Fatalf("%q: %v", st.line, res.Err)
		}
		if got := res.Value.String(); got != st.want {
			t.Errorf("%q: got %q, want %q", st.line, got, st.want)
		}
	}

	if b := s.Bindings(); len(b) != 1 || b['y'] != 1 {
		t.Errorf("unexpected bindings: %v", b)
	}

	res := s.Execute(ctx, "eval: z")
	if !errors.Is(res.Err, types.ErrUnboundVariable) {
		t.Errorf("expected UnboundVariable, got %v", res.Err)
	}
	if res.LineNo != 8 {
		t.Errorf("line number: got %d", res.LineNo)
	}

	if res := s.Execute(ctx, "# nothing"); !res.Skipped() {
		t.Error("comment should be skipped")
	}
}

func TestSessionVars(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	if vars := s.Vars(); len(vars) != 0 {
		t.Errorf("expected no bindings, got %v", vars)
	}
	for _, line := range []string{"let b = 2", "let a = 10", "let b = 3"} {
		if res := s.Execute(ctx, line); res.Err != nil {
			t.Fatalf("%q: %v", line, res.Err)
		}
	}
	if got := strings.Join(s.Vars(), ", "); got != "a = 10, b = 3" {
		t.Errorf("got %q", got)
	}
}

func TestBatchKeepsInputOrder(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# generated\nlet k = 2\n")
	for i := 1; i <= 50; i++ {
		sb.WriteString("eval: k * ")
		sb.WriteString(types.FormatNumber(float64(i)))
		sb.WriteString("\n")
	}
	sb.WriteString("solve for x: x - 1 = 4\nbogus: 1\n")

	results, err := Batch(context.Background(), strings.NewReader(sb.String()), nil, 4)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if len(results) != 54 {
		t.Fatalf("expected 54 results, got %d", len(results))
	}
	if !results[0].Skipped() {
		t.Error("first line should be skipped")
	}
	for i := 1; i <= 50; i++ {
		res := results[i+1]
		if res.LineNo != i+2 {
			t.Fatalf("result %d has line number %d", i+1, res.LineNo)
		}
		if n, _ := res.Value.AsNumber(); n != float64(2*i) {
			t.Errorf("line %d: got %v, want %d", res.LineNo, res.Value, 2*i)
		}
	}
	if got := results[52].Value.String(); got != "x = 5" {
		t.Errorf("solve: got %q", got)
	}
	if results[53].Err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestBatchLetAppliesForward(t *testing.T) {
	src := "eval: a\nlet a = 1\neval: a\nlet a = 5\neval: a\n"
	results, err := Batch(context.Background(), strings.NewReader(src), nil, 0)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	if !errors.Is(results[0].Err, types.ErrUnboundVariable) {
		t.Errorf("line 1: expected UnboundVariable, got %v", results[0].Err)
	}
	if results[2].Value.String() != "1" || results[4].Value.String() != "5" {
		t.Errorf("unexpected values: %v %v", results[2].Value, results[4].Value)
	}
}
