package expr

import "fmt"

// Phase names the operation a trace event was emitted from.
type Phase string

const (
	PhaseEvaluate Phase = "evaluate"
	PhaseSimplify Phase = "simplify"
	PhaseSolve    Phase = "solve"
)

// Event is a single observation emitted while rewriting a tree.
type Event struct {
	Phase  Phase
	Detail string
}

// String formats the event as "phase: detail".
func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Detail)
}

// Tracer receives events from AST operations. A tracer shared between ASTs
// that run concurrently must be safe for concurrent use.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a plain function to the Tracer interface.
type TracerFunc func(Event)

// Trace calls f(ev).
func (f TracerFunc) Trace(ev Event) { f(ev) }

func emit(t Tracer, phase Phase, format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.Trace(Event{Phase: phase, Detail: fmt.Sprintf(format, args...)})
}
