package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/lemonberrylabs/algebra-workbench/pkg/cache"
	"github.com/lemonberrylabs/algebra-workbench/pkg/expr"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

func runWorksheet(t *testing.T, source string, opts Options) *Report {
	t.Helper()

	ws, err := worksheet.Parse([]byte(source))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	report, err := NewEngine(ws, opts).Execute(context.Background())
	if err != nil {
		t.Fatalf("execution error: %v", err)
	}
	return report
}

func TestExecuteWorksheet(t *testing.T) {
	report := runWorksheet(t, `
name: basics
vars:
  y: 9
steps:
  - precedence:
      evaluate: 3 + 5 * 4
      expect: 23
  - exponent:
      evaluate: 3 ^ 2 + 5 * (4 + 5) * 3
      expect: "144"
  - solve_x:
      solve: 3 * x = y
      for: x
      substitute: true
      expect: "x = 3"
  - symbolic:
      solve: 3 * x = y / 3
      expect: "x = y / 3 / 3"
  - peel:
      isolate: 2 * x + 3 = 7
      for: x
      expect: "x = 2"
  - with_binding:
      evaluate: x * 2 + y
      set: {x: 4}
      expect: 17
  - tokens:
      tokenize: "x + 32+5/ 3 = ) / ("
      expect: "Var(x) + 32 + 5 / 3 = ) / ("
  - tidy:
      simplify: x + x
      expect: "2 * x"
  - tree:
      parse: (a + b) * c
      expect: "(a + b) * c"
`, Options{Parallelism: 4})

	if report.Worksheet != "basics" {
		t.Errorf("expected worksheet name basics, got %q", report.Worksheet)
	}
	if len(report.Steps) != 9 {
		t.Fatalf("expected 9 step reports, got %d", len(report.Steps))
	}
	for _, s := range report.Steps {
		if s.Status != StepSucceeded {
			t.Errorf("step %s: status %s, value %v, err %v", s.Name, s.Status, s.Value, s.Error)
		}
	}
	if !report.OK() {
		t.Error("expected report to be OK")
	}

	// Reports keep declaration order regardless of scheduling.
	want := []string{"precedence", "exponent", "solve_x", "symbolic", "peel", "with_binding", "tokens", "tidy", "tree"}
	for i, name := range want {
		if report.Steps[i].Name != name {
			t.Errorf("step %d: got %s, want %s", i, report.Steps[i].Name, name)
		}
	}
}

func TestStepFailuresAreRecorded(t *testing.T) {
	report := runWorksheet(t, `
steps:
  - bad_symbol:
      evaluate: x @ 2
  - unbound:
      evaluate: x + 1
  - wrong:
      evaluate: 1 + 1
      expect: 3
  - fine:
      evaluate: 2 * 2
`, Options{})

	statuses := []StepStatus{StepFailed, StepFailed, StepMismatch, StepSucceeded}
	for i, want := range statuses {
		if got := report.Steps[i].Status; got != want {
			t.Errorf("step %s: got %s, want %s", report.Steps[i].Name, got, want)
		}
	}

	if !errors.Is(report.Steps[0].Error, types.ErrUnexpectedSymbol) {
		t.Errorf("expected UnexpectedSymbol, got %v", report.Steps[0].Error)
	}
	if m := report.Steps[1].ErrorMap(); m["kind"] != "UnboundVariable" || m["stage"] != "eval" {
		t.Errorf("unexpected error map: %v", m)
	}
	if v, _ := report.Steps[2].Value.AsNumber(); v != 2 {
		t.Errorf("mismatch should keep the value, got %v", report.Steps[2].Value)
	}
	if report.Count(StepFailed) != 2 || report.OK() {
		t.Errorf("unexpected counts: failed=%d ok=%v", report.Count(StepFailed), report.OK())
	}
}

func TestFailFast(t *testing.T) {
	ws, err := worksheet.Parse([]byte(`
steps:
  - broken:
      evaluate: "("
  - later:
      evaluate: 1 + 1
`))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	report, err := NewEngine(ws, Options{Parallelism: 1, FailFast: true}).Execute(context.Background())
	if err == nil {
		t.Fatal("expected fail-fast error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should name the failing step: %v", err)
	}
	if report.Steps[0].Status != StepFailed {
		t.Errorf("expected first step failed, got %s", report.Steps[0].Status)
	}
	if report.Steps[1].Status != StepCancelled {
		t.Errorf("expected second step cancelled, got %s", report.Steps[1].Status)
	}
}

func TestCancelBeforeExecute(t *testing.T) {
	ws, err := worksheet.Parse([]byte("steps:\n  - a: {evaluate: '1'}\n  - b: {evaluate: '2'}"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	engine := NewEngine(ws, Options{})
	engine.Cancel()
	report, err := engine.Execute(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, s := range report.Steps {
		if s.Status != StepCancelled {
			t.Errorf("step %s: expected cancelled, got %s", s.Name, s.Status)
		}
	}
	if engine.StepCount() != 0 {
		t.Errorf("expected no executed steps, got %d", engine.StepCount())
	}
}

func TestMaxSteps(t *testing.T) {
	ws, err := worksheet.Parse([]byte("steps:\n  - a: {evaluate: '1'}\n  - b: {evaluate: '2'}"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if _, err := NewEngine(ws, Options{MaxSteps: 1}).Execute(context.Background()); err == nil {
		t.Error("expected step limit error")
	}
}

func TestManyStepsInParallel(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("steps:\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "  - s%d:\n      solve: %d * x = %d\n      expect: \"x = %d\"\n", i, i+1, 2*(i+1), 2)
	}

	report := runWorksheet(t, sb.String(), Options{Parallelism: 8})
	if !report.OK() {
		for _, s := range report.Steps {
			if s.Status != StepSucceeded {
				t.Errorf("step %s: %s %v %v", s.Name, s.Status, s.Value, s.Error)
			}
		}
	}
}

func TestEngineTracer(t *testing.T) {
	var mu sync.Mutex
	var events []expr.Event
	tracer := expr.TracerFunc(func(ev expr.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	runWorksheet(t, "steps:\n  - a: {evaluate: '1 + 2'}", Options{Tracer: tracer})
	if len(events) != 1 || events[0].Detail != "1 + 2 = 3" {
		t.Errorf("unexpected events: %v", events)
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		op       worksheet.Op
		formula  string
		variable rune
		bindings map[rune]float64
		want     string
	}{
		{worksheet.OpTokenize, "2x", 0, nil, "2 Var(x)"},
		{worksheet.OpParse, "a*(b+c)", 0, nil, "a * (b + c)"},
		{worksheet.OpEvaluate, "x ^ 2", 0, map[rune]float64{'x': 3}, "9"},
		{worksheet.OpSimplify, "x * 1 + y", 0, map[rune]float64{'y': 0}, "x"},
		{worksheet.OpSolve, "3 * x = 6", 0, nil, "x = 2"},
		{worksheet.OpSolve, "a + 2 = b", 'b', nil, "b = a + 2"},
		{worksheet.OpIsolate, "2 * x + 3 = y", 'x', map[rune]float64{'y': 9}, "x = 3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.op)+" "+tt.formula, func(t *testing.T) {
			got, err := Apply(ctx, tt.op, tt.formula, tt.variable, tt.bindings, nil)
			if err != nil {
				t.Fatalf("apply error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := Apply(ctx, worksheet.OpSolve, "1 + 2", 0, nil, nil); !errors.Is(err, types.ErrNotAnEquation) {
		t.Errorf("expected NotAnEquation, got %v", err)
	}
	if _, err := Apply(ctx, worksheet.OpSolve, "1 = 2", 0, nil, nil); !errors.Is(err, types.ErrVariableNotFound) {
		t.Errorf("expected VariableNotFound, got %v", err)
	}
	var unknown *UnknownOpError
	if _, err := Apply(ctx, worksheet.Op("integrate"), "x", 0, nil, nil); !errors.As(err, &unknown) {
		t.Errorf("expected UnknownOpError, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Apply(cancelled, worksheet.OpEvaluate, "1", 0, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDispatcherCache(t *testing.T) {
	c, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache open: %v", err)
	}
	d := &Dispatcher{Cache: c}
	req := Request{Op: worksheet.OpEvaluate, Formula: "6 * 7"}

	v, err := d.Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}

	cached, ok, err := c.Get(cache.Key{Op: "evaluate", Formula: "6 * 7"})
	if err != nil || !ok {
		t.Fatalf("expected cache entry, ok=%v err=%v", ok, err)
	}
	if !cached.Equal(v) {
		t.Errorf("cached %v, computed %v", cached, v)
	}

	// A planted entry proves the second call is served from the cache.
	if err := c.Put(cache.Key{Op: "evaluate", Formula: "6 * 7"}, types.NewNumber(-1)); err != nil {
		t.Fatal(err)
	}
	again, err := d.Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("apply error: %v", err)
	}
	if n, _ := again.AsNumber(); n != -1 {
		t.Errorf("expected cached value -1, got %v", again)
	}

	// Errors are never cached.
	if _, err := d.Apply(context.Background(), Request{Op: worksheet.OpEvaluate, Formula: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := c.Get(cache.Key{Op: "evaluate", Formula: "x"}); ok {
		t.Error("error result was cached")
	}
}

func TestScope(t *testing.T) {
	root := NewScope(map[rune]float64{'x': 1, 'y': 2})
	child := root.NewChildScope()
	child.Set('x', 10)
	child.Set('z', 3)

	if v, _ := child.Get('x'); v != 10 {
		t.Errorf("child x: got %v, want 10", v)
	}
	if v, _ := root.Get('x'); v != 1 {
		t.Errorf("root x: got %v, want 1", v)
	}
	if v, ok := child.Get('y'); !ok || v != 2 {
		t.Errorf("child y: got %v (%v), want 2", v, ok)
	}
	if _, ok := root.Get('z'); ok {
		t.Error("child binding leaked into root")
	}

	flat := child.Flatten()
	if len(flat) != 3 || flat['x'] != 10 {
		t.Errorf("unexpected flatten: %v", flat)
	}
	if got := string(child.Names()); got != "xyz" {
		t.Errorf("names: got %q", got)
	}
}
