// Package runtime executes worksheets: every step is dispatched through the
// formula pipeline, concurrently, and reported in declaration order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemonberrylabs/algebra-workbench/pkg/cache"
	"github.com/lemonberrylabs/algebra-workbench/pkg/expr"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// StepStatus is the outcome of a single step.
type StepStatus string

const (
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"    // the pipeline returned an error
	StepMismatch  StepStatus = "MISMATCH"  // the result differs from expect
	StepCancelled StepStatus = "CANCELLED" // never ran
)

// StepReport is the result of executing a single step.
type StepReport struct {
	Name     string             `json:"name"`
	Op       worksheet.Op       `json:"op"`
	Formula  string             `json:"formula"`
	Status   StepStatus         `json:"status"`
	Value    types.Value        `json:"value"`
	Expect   string             `json:"expect,omitempty"`
	Bindings map[string]float64 `json:"bindings,omitempty"`
	Error    error              `json:"-"`
	Duration time.Duration      `json:"-"`
}

// ErrorMap returns the error payload for API responses, or nil.
func (r *StepReport) ErrorMap() map[string]interface{} {
	if r.Error == nil {
		return nil
	}
	var te *types.Error
	if errors.As(r.Error, &te) {
		return te.ToMap()
	}
	return map[string]interface{}{"message": r.Error.Error()}
}

// Report is the result of executing a worksheet.
type Report struct {
	Worksheet string
	Steps     []*StepReport
	Duration  time.Duration
}

// Count returns how many steps ended with status.
func (r *Report) Count(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// OK reports whether every step succeeded.
func (r *Report) OK() bool {
	return r.Count(StepSucceeded) == len(r.Steps)
}

// Options configures an Engine.
type Options struct {
	// Parallelism bounds concurrently running steps (0 = runtime.NumCPU()).
	Parallelism int

	// FailFast stops scheduling steps after the first failure or mismatch.
	FailFast bool

	// MaxSteps rejects larger worksheets (0 = worksheet.MaxSteps).
	MaxSteps int

	// Tracer observes every step's pipeline. It is called from several
	// goroutines at once.
	Tracer expr.Tracer

	// Cache short-circuits repeated operations.
	Cache *cache.Cache
}

// Engine executes a worksheet.
type Engine struct {
	sheet *worksheet.Worksheet
	opts  Options
	disp  *Dispatcher

	mu        sync.Mutex
	cancel    context.CancelFunc
	cancelled bool
	executed  int
}

// NewEngine creates a new worksheet execution engine.
func NewEngine(sheet *worksheet.Worksheet, opts Options) *Engine {
	if opts.Parallelism <= 0 {
		opts.Parallelism = goruntime.NumCPU()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = worksheet.MaxSteps
	}
	return &Engine{
		sheet: sheet,
		opts:  opts,
		disp:  &Dispatcher{Cache: opts.Cache, Tracer: opts.Tracer},
	}
}

// Execute runs every step and returns the report. Step failures are
// recorded in the report; the returned error is non-nil only when the run
// was cut short (FailFast, Cancel or ctx).
func (e *Engine) Execute(ctx context.Context) (*Report, error) {
	if n := len(e.sheet.Steps); n > e.opts.MaxSteps {
		return nil, fmt.Errorf("worksheet has %d steps, maximum is %d", n, e.opts.MaxSteps)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.cancelled {
		cancel()
	}
	e.cancel = cancel
	e.mu.Unlock()

	start := time.Now()
	root := NewScope(e.sheet.Vars)
	reports := make([]*StepReport, len(e.sheet.Steps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	for i, step := range e.sheet.Steps {
		i, step := i, step
		g.Go(func() error {
			if gctx.Err() != nil {
				reports[i] = cancelledReport(step)
				return nil
			}
			rep := e.executeStep(gctx, step, root)
			reports[i] = rep
			if e.opts.FailFast && rep.Status != StepSucceeded && rep.Status != StepCancelled {
				return fmt.Errorf("step '%s' %s", step.Name, strings.ToLower(string(rep.Status)))
			}
			return nil
		})
	}

	err := g.Wait()
	report := &Report{Worksheet: e.sheet.Name, Steps: reports, Duration: time.Since(start)}
	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, fmt.Errorf("worksheet cancelled: %w", ctx.Err())
	}
	return report, nil
}

func cancelledReport(step *worksheet.Step) *StepReport {
	return &StepReport{
		Name:    step.Name,
		Op:      step.Op,
		Formula: step.Formula,
		Status:  StepCancelled,
		Value:   types.Null,
		Expect:  step.Expect,
	}
}

// executeStep runs a single step in its own child scope.
func (e *Engine) executeStep(ctx context.Context, step *worksheet.Step, root *Scope) *StepReport {
	e.mu.Lock()
	e.executed++
	e.mu.Unlock()

	scope := root.NewChildScope()
	scope.SetAll(step.Set)

	req := Request{Op: step.Op, Formula: step.Formula, Variable: step.Variable}
	if step.UsesBindings() {
		req.Bindings = scope.Flatten()
	}

	rep := &StepReport{
		Name:    step.Name,
		Op:      step.Op,
		Formula: step.Formula,
		Expect:  step.Expect,
		Value:   types.Null,
	}
	if len(req.Bindings) > 0 {
		rep.Bindings = make(map[string]float64, len(req.Bindings))
		for name, v := range req.Bindings {
			rep.Bindings[string(name)] = v
		}
	}

	start := time.Now()
	v, err := e.disp.Apply(ctx, req)
	rep.Duration = time.Since(start)

	switch {
	case err != nil && ctx.Err() != nil:
		rep.Status = StepCancelled
	case err != nil:
		rep.Status = StepFailed
		rep.Error = err
	case step.HasExpect && !Matches(v, step.Expect):
		rep.Status = StepMismatch
		rep.Value = v
	default:
		rep.Status = StepSucceeded
		rep.Value = v
	}
	return rep
}

// Matches compares a result with an expected string. Numbers compare
// numerically so "2" matches "2.0"; everything else compares its text with
// surrounding whitespace ignored.
func Matches(v types.Value, expect string) bool {
	expect = strings.TrimSpace(expect)
	if n, ok := v.AsNumber(); ok {
		if f, err := strconv.ParseFloat(expect, 64); err == nil {
			return types.NewNumber(f).Equal(types.NewNumber(n))
		}
	}
	return v.String() == expect
}

// Cancel stops steps that have not started yet.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()
}

// StepCount returns how many steps have been executed.
func (e *Engine) StepCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executed
}
