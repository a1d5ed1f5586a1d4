package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

// formulaArg joins the positional arguments so formulas need no quoting
// when they contain no shell metacharacters.
func formulaArg(args []string) string {
	return strings.Join(args, " ")
}

// parseSetFlags turns repeated --set name=value flags into bindings.
func parseSetFlags(values []string) (map[rune]float64, error) {
	named := make(map[string]float64, len(values))
	for _, kv := range values {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: expected name=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w", kv, err)
		}
		named[strings.TrimSpace(name)] = f
	}
	return worksheet.ParseBindings(named)
}

// runOp executes one operation and prints its result.
func runOp(cmd *cobra.Command, op worksheet.Op, formula string, variable rune, set []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	bindings, err := parseSetFlags(set)
	if err != nil {
		return err
	}

	v, err := e.dispatcher().Apply(cmd.Context(), runtime.Request{
		Op:       op,
		Formula:  formula,
		Variable: variable,
		Bindings: bindings,
	})
	if err != nil {
		e.out.Error(formula, err)
		return fmt.Errorf("%s failed", op)
	}
	e.out.Value(v)
	return nil
}

func newTokenizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokenize <formula>",
		Short: "Print the token stream of a formula",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, worksheet.OpTokenize, formulaArg(args), 0, nil)
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <formula>",
		Short: "Parse a formula and print it with minimal parentheses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, worksheet.OpParse, formulaArg(args), 0, nil)
		},
	}
}

func newEvalCmd() *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:     "eval <formula>",
		Aliases: []string{"evaluate"},
		Short:   "Evaluate an expression",
		Example: "  algebra eval '3 + 5 * 4'\n  algebra eval 'x ^ 2 + y' --set x=3 --set y=1",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, worksheet.OpEvaluate, formulaArg(args), 0, set)
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Bind a variable, e.g. --set x=3 (repeatable)")
	return cmd
}

func newSimplifyCmd() *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:   "simplify <formula>",
		Short: "Fold constants and apply algebraic identities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, worksheet.OpSimplify, formulaArg(args), 0, set)
		},
	}
	cmd.Flags().StringArrayVar(&set, "set", nil, "Substitute a variable before simplifying (repeatable)")
	return cmd
}

func newSolveCmd() *cobra.Command {
	var (
		set     []string
		target  string
		isolate bool
	)
	cmd := &cobra.Command{
		Use:     "solve <equation>",
		Short:   "Rearrange an equation for a variable",
		Example: "  algebra solve '3 * x = y' --for x\n  algebra solve '2 * x + 3 = 7' --isolate",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var variable rune
			if target != "" {
				v, err := worksheet.ParseVariableName(target)
				if err != nil {
					return err
				}
				variable = v
			}
			op := worksheet.OpSolve
			if isolate {
				op = worksheet.OpIsolate
			}
			return runOp(cmd, op, formulaArg(args), variable, set)
		},
	}
	cmd.Flags().StringVar(&target, "for", "", "Variable to solve for (default: first variable)")
	cmd.Flags().BoolVar(&isolate, "isolate", false, "Peel operators repeatedly instead of a single rearrangement")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Substitute a variable before solving (repeatable)")
	return cmd
}
