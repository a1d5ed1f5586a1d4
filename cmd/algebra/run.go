package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/algebra-workbench/pkg/api"
	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
	"github.com/lemonberrylabs/algebra-workbench/pkg/session"
	"github.com/lemonberrylabs/algebra-workbench/pkg/worksheet"
)

func newRunCmd() *cobra.Command {
	var (
		format   string
		failFast bool
	)
	cmd := &cobra.Command{
		Use:   "run <worksheet.yaml>",
		Short: "Execute a worksheet and report every step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "pretty" && format != "json" {
				return fmt.Errorf("--format must be pretty or json, got %q", format)
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sheet, err := worksheet.Parse(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			opts := e.engineOptions()
			if failFast {
				opts.FailFast = true
			}
			engine := runtime.NewEngine(sheet, opts)

			// Ctrl-C stops pending steps; the partial report is still printed.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			done := make(chan struct{})
			defer func() {
				signal.Stop(sigCh)
				close(done)
			}()
			go watchInterrupt(sigCh, done, engine.Cancel)

			report, runErr := engine.Execute(cmd.Context())
			if report == nil {
				return runErr
			}

			if format == "json" {
				steps := make([]interface{}, len(report.Steps))
				for i, s := range report.Steps {
					steps[i] = api.StepToJSON(s)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]interface{}{
					"worksheet":  report.Worksheet,
					"ok":         report.OK(),
					"steps":      steps,
					"durationMs": report.Duration.Milliseconds(),
				}); err != nil {
					return err
				}
			} else {
				e.out.Report(report)
			}

			if runErr != nil {
				return runErr
			}
			if !report.OK() {
				return fmt.Errorf("worksheet had failing steps")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "pretty", "Output format (pretty|json)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop scheduling steps after the first failure")
	return cmd
}

// watchInterrupt calls cancel on the first signal and returns when done is
// closed.
func watchInterrupt(sigCh <-chan os.Signal, done <-chan struct{}, cancel func()) {
	select {
	case <-sigCh:
		cancel()
	case <-done:
	}
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file|->",
		Short: "Execute session commands from a file concurrently, printing results in order",
		Long: `Each line is a session command such as "solve for x: 3 * x = 6",
"eval: 2 ^ 10" or "let y = 9". A line without an operation is solved when it
contains '=' and evaluated otherwise. Blank lines and '#' comments are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			results, err := session.Batch(cmd.Context(), r, e.dispatcher(), e.cfg.Engine.Parallelism)
			if err != nil && results == nil {
				return err
			}

			failed := 0
			for _, res := range results {
				if res.Skipped() {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s ", e.out.dim.Sprintf("%d:", res.LineNo))
				if res.Err != nil {
					failed++
					formula := ""
					if res.Command != nil {
						formula = res.Command.Formula
					}
					e.out.Error(formula, res.Err)
					continue
				}
				e.out.Value(res.Value)
			}
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d line(s) failed", failed)
			}
			return nil
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}

			s := session.New(e.dispatcher())
			in := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, e.out.dim.Sprint(`commands: "solve for x: 3 * x = 6", "eval: 2 ^ 10", "let y = 9"; "vars" lists bindings, "quit" exits`))
			for {
				fmt.Fprint(out, e.out.ok.Sprint("> "))
				if !in.Scan() {
					fmt.Fprintln(out)
					return in.Err()
				}
				line := in.Text()
				switch line {
				case "quit", "exit":
					return nil
				case "vars":
					for _, v := range s.Vars() {
						fmt.Fprintln(out, v)
					}
					continue
				}

				res := s.Execute(cmd.Context(), line)
				switch {
				case res.Skipped():
				case res.Err != nil:
					formula := line
					if res.Command != nil {
						formula = res.Command.Formula
					}
					e.out.Error(formula, res.Err)
				default:
					e.out.Value(res.Value)
				}
			}
		},
	}
}
