package runtime

import (
	"context"
	"log"

	"github.com/lemonberrylabs/algebra-workbench/pkg/cache"
	"github.com/lemonberrylabs/algebra-workbench/pkg/expr"
	"github.com/lemonberrylabs/algebra-workbench/pkg/types"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// Request is a single pipeline operation on one formula.
type Request struct {
	Op       worksheet.Op
	Formula  string
	Variable rune             // solve target; zero picks the formula's first variable
	Bindings map[rune]float64 // substituted before the operation; nil for none
}

// Dispatcher runs requests through the pipeline. The zero value is usable.
type Dispatcher struct {
	// Cache, when set, short-circuits repeated requests. It is bypassed
	// while a Tracer is attached so traces always reflect real work.
	Cache *cache.Cache

	// Tracer observes evaluation, simplification and solving.
	Tracer expr.Tracer
}

// Apply runs a single operation without a cache.
func Apply(ctx context.Context, op worksheet.Op, formula string, variable rune, bindings map[rune]float64, tracer expr.Tracer) (types.Value, error) {
	d := &Dispatcher{Tracer: tracer}
	return d.Apply(ctx, Request{Op: op, Formula: formula, Variable: variable, Bindings: bindings})
}

// Apply runs req, consulting the cache first when one is configured.
func (d *Dispatcher) Apply(ctx context.Context, req Request) (types.Value, error) {
	if err := ctx.Err(); err != nil {
		return types.Null, err
	}

	useCache := d.Cache != nil && d.Tracer == nil
	key := cache.Key{Op: string(req.Op), Formula: req.Formula, Variable: req.Variable, Bindings: req.Bindings}
	if useCache {
		v, ok, err := d.Cache.Get(key)
		if err != nil {
			log.Printf("Warning: cache read failed: %v", err)
		} else if ok {
			return v, nil
		}
	}

	v, err := d.run(req)
	if err != nil {
		return types.Null, err
	}

	if useCache {
		if err := d.Cache.Put(key, v); err != nil {
			log.Printf("Warning: cache write failed: %v", err)
		}
	}
	return v, nil
}

func (d *Dispatcher) run(req Request) (types.Value, error) {
	if req.Op == worksheet.OpTokenize {
		tokens, err := expr.Tokenize(req.Formula)
		if err != nil {
			return types.Null, err
		}
		return types.NewTokens(tokens.String()), nil
	}

	ast, err := expr.ParseString(req.Formula)
	if err != nil {
		return types.Null, err
	}
	ast.SetTracer(d.Tracer)
	if len(req.Bindings) > 0 && req.Op != worksheet.OpParse {
		ast.Substitute(req.Bindings)
	}

	switch req.Op {
	case worksheet.OpParse:
		return expr.ValueOf(ast.Root), nil

	case worksheet.OpEvaluate:
		n, err := ast.Evaluate()
		if err != nil {
			return types.Null, err
		}
		return types.NewNumber(n), nil

	case worksheet.OpSimplify:
		return expr.ValueOf(ast.Simplify()), nil

	case worksheet.OpSolve, worksheet.OpIsolate:
		v, err := target(ast, req.Variable)
		if err != nil {
			return types.Null, err
		}
		var node expr.Node
		if req.Op == worksheet.OpSolve {
			node, err = ast.SolveFor(v)
		} else {
			node, err = ast.Isolate(v)
		}
		if err != nil {
			return types.Null, err
		}
		return expr.ValueOf(node), nil

	default:
		return types.Null, &UnknownOpError{Op: string(req.Op)}
	}
}

// target resolves the variable to solve for.
func target(ast *expr.AST, v rune) (rune, error) {
	if v != 0 {
		return v, nil
	}
	if vars := ast.Variables(); len(vars) > 0 {
		return vars[0], nil
	}
	if !ast.HasEquation {
		return 0, types.NewSolveError(types.KindNotAnEquation, "only equations can be solved", 0)
	}
	return 0, types.NewSolveError(types.KindVariableNotFound, "the equation has no variables", 0)
}

// UnknownOpError reports an operation name the dispatcher does not know.
type UnknownOpError struct {
	Op string
}

func (e *UnknownOpError) Error() string {
	return "unknown operation '" + e.Op + "'"
}
