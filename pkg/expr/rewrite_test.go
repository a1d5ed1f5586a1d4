package expr

import (
	"errors"
	"strings"
	"testing"

	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

func TestSimplifyRules(t *testing.T) {
	tests := []struct {
		input string
		want  Node
	}{
		{"x + 0", Var('x')},
		{"0 + x", Var('x')},
		{"x - 0", Var('x')},
		{"0 - x", Var('x')},
		{"x * 1", Var('x')},
		{"1 * x", Var('x')},
		{"x * 0", Num(0)},
		{"0 * x", Num(0)},
		{"x + x", Bin(Num(2), OpMultiply, Var('x'))},
		{"2 * 3 + x", Bin(Num(6), OpAdd, Var('x'))},
		{"(x + 0) * 1", Var('x')},
		{"(y - y) * 0", Num(0)},
		{"x - x", Bin(Var('x'), OpSubtract, Var('x'))},
		{"x / 1", Bin(Var('x'), OpDivide, Num(1))},
		{"y * (x + x)", Bin(Var('y'), OpMultiply, Bin(Num(2), OpMultiply, Var('x')))},
		{"x + 0 = 3 * 2", Eq(Var('x'), Num(6))},
		{"7", Num(7)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Simplify(mustParse(t, tt.input).Root)
			if !Equal(got, tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSimplifyIdempotent(t *testing.T) {
	inputs := []string{
		"x + 0",
		"x + x",
		"x + x + x",
		"(x + x) + (x + x)",
		"0 / 0 + x",
		"1 / 0 * y",
		"2 ^ x * 1 + 0",
		"(a - 0) * (0 + b) - (c * 1) / (d * 0)",
		"3 * x = y / 3",
		"((x))",
		"x ^ (1 + 1) - 0 * z",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			once := Simplify(mustParse(t, input).Root)
			twice := Simplify(once)
			if !Equal(once, twice) {
				t.Errorf("not idempotent: %s then %s", once, twice)
			}
		})
	}
}

func TestSimplifyReplacesRoot(t *testing.T) {
	ast := mustParse(t, "x * 1")
	got := ast.Simplify()
	if !Equal(ast.Root, got) || !Equal(got, Var('x')) {
		t.Errorf("got root %s, returned %s", ast.Root, got)
	}
}

func TestSolveFor(t *testing.T) {
	tests := []struct {
		input string
		want  Node
	}{
		{"3 * x = 6", Eq(Var('x'), Num(2))},
		{"3 * x = y / 3", Eq(Var('x'), Bin(Bin(Var('y'), OpDivide, Num(3)), OpDivide, Num(3)))},
		{"x * 3 = 6", Eq(Var('x'), Num(2))},
		{"x + 2 = 5", Eq(Var('x'), Num(3))},
		{"2 + x = 5", Eq(Var('x'), Num(3))},
		{"x - 2 = 5", Eq(Var('x'), Num(7))},
		{"x / 2 = 5", Eq(Var('x'), Num(10))},
		{"10 - x = 4", Eq(Var('x'), Num(6))},
		{"12 / x = 4", Eq(Var('x'), Num(3))},
		{"6 = 2 * x", Eq(Var('x'), Num(3))},
		{"2 + 3 = x * 5", Eq(Var('x'), Num(1))},
		{"x = 4 * 2", Eq(Var('x'), Num(8))},
		{"(x + 0) * 1 = y", Eq(Var('x'), Var('y'))},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ast := mustParse(t, tt.input)
			got, err := ast.SolveFor('x')
			if err != nil {
				t.Fatalf("solve error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if !Equal(ast.Root, got) {
				t.Errorf("root not replaced: %s", ast.Root)
			}
		})
	}
}

func TestSolveForErrors(t *testing.T) {
	tests := []struct {
		input string
		want  *types.Error
	}{
		{"x + 1", types.ErrNotAnEquation},
		{"y = 3", types.ErrVariableNotFound},
		{"x = x + 1", types.ErrVariableOnBothSides},
		{"2 * x + 3 = 7", types.ErrOnlyVariablesCanBeRearranged},
		{"x * x = 4", types.ErrOnlyVariablesCanBeRearranged},
		{"x ^ 2 = 4", types.ErrNoInverse},
		{"2 ^ x = 8", types.ErrNoInverse},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ast := mustParse(t, tt.input)
			before := Clone(ast.Root)
			_, err := ast.SolveFor('x')
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want kind %s", err, tt.want.Kind)
			}
			var te *types.Error
			if errors.As(err, &te) && te.Stage() != types.StageSolve {
				t.Errorf("expected solve stage, got %s", te.Stage())
			}
			if !Equal(ast.Root, before) {
				t.Errorf("failed solve modified the root: %s", ast.Root)
			}
		})
	}
}

func TestIsolate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2 * x + 3 = 7", "x = 2"},
		{"(x - 1) / 4 = 2", "x = 9"},
		{"10 - 2 * x = 4", "x = 3"},
		{"y = 3 * (x + 1)", "x = y / 3 - 1"},
		{"3 * x = 6", "x = 2"},
		{"x = 5", "x = 5"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ast := mustParse(t, tt.input)
			got, err := ast.Isolate('x')
			if err != nil {
				t.Fatalf("isolate error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsolateErrors(t *testing.T) {
	tests := []struct {
		input string
		want  *types.Error
	}{
		{"x + 1", types.ErrNotAnEquation},
		{"x * x = 4", types.ErrOnlyVariablesCanBeRearranged},
		{"2 * x ^ 2 = 8", types.ErrNoInverse},
		{"z = 1", types.ErrVariableNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := mustParse(t, tt.input).Isolate('x')
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want kind %s", err, tt.want.Kind)
			}
		})
	}
}

func TestIsolationLimit(t *testing.T) {
	within := "x" + strings.Repeat(" + 1", MaxIsolationSteps) + " = 40"
	got, err := mustParse(t, within).Isolate('x')
	if err != nil {
		t.Fatalf("isolate error: %v", err)
	}
	if !Equal(got, Eq(Var('x'), Num(40-MaxIsolationSteps))) {
		t.Errorf("got %s", got)
	}

	beyond := "x" + strings.Repeat(" + 1", MaxIsolationSteps+1) + " = 40"
	if _, err := mustParse(t, beyond).Isolate('x'); !errors.Is(err, types.ErrIsolationLimit) {
		t.Errorf("expected IsolationLimit, got %v", err)
	}
}
