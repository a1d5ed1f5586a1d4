package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/lemonberrylabs/algebra-workbench/pkg/config"
	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
)

// printer writes colored results.
type printer struct {
	w     io.Writer
	ok    *color.Color
	fail  *color.Color
	warn  *color.Color
	dim   *color.Color
	value *color.Color
}

func newPrinter(w io.Writer, mode string) *printer {
	p := &printer{
		w:     w,
		ok:    color.New(color.FgGreen, color.Bold),
		fail:  color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow),
		dim:   color.New(color.Faint),
		value: color.New(color.FgCyan),
	}
	switch mode {
	case config.ColorOn:
		for _, c := range []*color.Color{p.ok, p.fail, p.warn, p.dim, p.value} {
			c.EnableColor()
		}
	case config.ColorOff:
		for _, c := range []*color.Color{p.ok, p.fail, p.warn, p.dim, p.value} {
			c.DisableColor()
		}
	}
	return p
}

// Value prints a result on its own line.
func (p *printer) Value(v types.Value) {
	fmt.Fprintln(p.w, p.value.Sprint(v.String()))
}

// Error prints a pipeline error with a caret under the offending position
// when the error carries one.
func (p *printer) Error(formula string, err error) {
	var te *types.Error
	if errors.As(err, &te) && te.Pos >= 0 && formula != "" && te.Pos <= len(formula) {
		fmt.Fprintf(p.w, "  %s\n  %*s%s\n", formula, te.Pos, "", p.fail.Sprint("^"))
	}
	fmt.Fprintf(p.w, "%s %v\n", p.fail.Sprint("error:"), err)
}

func (p *printer) status(s runtime.StepStatus) string {
	switch s {
	case runtime.StepSucceeded:
		return p.ok.Sprint("ok  ")
	case runtime.StepFailed:
		return p.fail.Sprint("FAIL")
	case runtime.StepMismatch:
		return p.warn.Sprint("DIFF")
	default:
		return p.dim.Sprint("SKIP")
	}
}

// Report prints a worksheet report, one line per step.
func (p *printer) Report(r *runtime.Report) {
	if r.Worksheet != "" {
		fmt.Fprintf(p.w, "worksheet %s\n", r.Worksheet)
	}
	for _, s := range r.Steps {
		switch s.Status {
		case runtime.StepFailed:
			fmt.Fprintf(p.w, "%s %s: %v\n", p.status(s.Status), s.Name, s.Error)
		case runtime.StepMismatch:
			fmt.Fprintf(p.w, "%s %s: got %s, expected %s\n", p.status(s.Status), s.Name, p.value.Sprint(s.Value), s.Expect)
		case runtime.StepCancelled:
			fmt.Fprintf(p.w, "%s %s\n", p.status(s.Status), s.Name)
		default:
			fmt.Fprintf(p.w, "%s %s: %s %s\n", p.status(s.Status), s.Name, p.value.Sprint(s.Value), p.dim.Sprint(s.Duration))
		}
	}

	summary := fmt.Sprintf("%d passed, %d failed, %d mismatched, %d cancelled in %s",
		r.Count(runtime.StepSucceeded), r.Count(runtime.StepFailed),
		r.Count(runtime.StepMismatch), r.Count(runtime.StepCancelled), r.Duration)
	if r.OK() {
		fmt.Fprintln(p.w, p.ok.Sprint(summary))
	} else {
		fmt.Fprintln(p.w, p.fail.Sprint(summary))
	}
}
