package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// Result is the outcome of one line.
type Result struct {
	LineNo  int // 1-based
	Line    string
	Command *Command // nil for blank and comment lines
	Value   types.Value
	Err     error
}

// Skipped reports whether the line was blank or a comment.
func (r *Result) Skipped() bool {
	return r.Command == nil && r.Err == nil
}

// Session executes lines one at a time, remembering let bindings.
type Session struct {
	disp  *runtime.Dispatcher
	scope *runtime.Scope
	lines int
}

// New creates a session. A nil dispatcher runs uncached and untraced.
func New(disp *runtime.Dispatcher) *Session {
	if disp == nil {
		disp = &runtime.Dispatcher{}
	}
	return &Session{disp: disp, scope: runtime.NewScope(nil)}
}

// Bindings returns a copy of the variables set with let.
func (s *Session) Bindings() map[rune]float64 {
	return s.scope.Flatten()
}

// Vars renders the let bindings as "name = value", sorted by name.
func (s *Session) Vars() []string {
	names := s.scope.Names()
	out := make([]string, len(names))
	for i, name := range names {
		v, _ := s.scope.Get(name)
		out[i] = fmt.Sprintf("%c = %s", name, types.FormatNumber(v))
	}
	return out
}

// Execute parses and runs one line.
func (s *Session) Execute(ctx context.Context, line string) *Result {
	s.lines++
	res := &Result{LineNo: s.lines, Line: line, Value: types.Null}

	cmd, err := ParseLine(line)
	if err != nil {
		res.Err = err
		return res
	}
	res.Command = cmd
	if cmd == nil {
		return res
	}

	if cmd.Let != nil {
		s.scope.Set(cmd.Let.Name, cmd.Let.Value)
		res.Value = types.NewNumber(cmd.Let.Value)
		return res
	}

	res.Value, res.Err = s.disp.Apply(ctx, request(cmd, s.scope.Flatten()))
	return res
}

// request builds the pipeline request for cmd. Session bindings feed
// evaluate only; the symbolic operations keep their variables.
func request(cmd *Command, bindings map[rune]float64) runtime.Request {
	req := runtime.Request{Op: cmd.Op, Formula: cmd.Formula, Variable: cmd.Variable}
	if cmd.Op == worksheet.OpEvaluate && len(bindings) > 0 {
		req.Bindings = bindings
	}
	return req
}

// Batch runs every line of r concurrently, at most parallelism at a time
// (0 = runtime.NumCPU()). Results come back in input order. A let binding
// applies to the lines after it, as in the REPL.
func Batch(ctx context.Context, r io.Reader, disp *runtime.Dispatcher, parallelism int) ([]*Result, error) {
	if disp == nil {
		disp = &runtime.Dispatcher{}
	}
	if parallelism <= 0 {
		parallelism = goruntime.NumCPU()
	}

	type job struct {
		res      *Result
		bindings map[rune]float64
	}

	// Parsing and let bindings are sequential; execution is not.
	var jobs []job
	scope := runtime.NewScope(nil)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		res := &Result{LineNo: lineNo, Line: line, Value: types.Null}
		cmd, err := ParseLine(line)
		res.Command, res.Err = cmd, err
		switch {
		case err != nil || cmd == nil:
			jobs = append(jobs, job{res: res})
		case cmd.Let != nil:
			scope.Set(cmd.Let.Name, cmd.Let.Value)
			res.Value = types.NewNumber(cmd.Let.Value)
			jobs = append(jobs, job{res: res})
		default:
			jobs = append(jobs, job{res: res, bindings: scope.Flatten()})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading batch input: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, j := range jobs {
		j := j
		if j.res.Err != nil || j.res.Command == nil || j.res.Command.Let != nil {
			continue
		}
		g.Go(func() error {
			j.res.Value, j.res.Err = disp.Apply(gctx, request(j.res.Command, j.bindings))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]*Result, len(jobs))
	for i, j := range jobs {
		results[i] = j.res
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch cancelled: %w", err)
	}
	return results, nil
}
