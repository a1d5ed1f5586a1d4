// Package main is the entry point for the algebra workbench CLI and server.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/algebra-workbench/pkg/cache"
	"github.com/lemonberrylabs/algebra-workbench/pkg/config"
	"github.com/lemonberrylabs/algebra-workbench/pkg/expr"
	"github.com/lemonberrylabs/algebra-workbench/pkg/runtime"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const cacheApp = "algebra-workbench"

var rootCmd = &cobra.Command{
	Use:           "algebra",
	Short:         "Tokenize, parse, evaluate, simplify and solve single-variable formulas",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("algebra version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to algebra.toml (default: search upwards from the working directory)")
	pf.String("color", "", "Colorize output (auto|on|off)")
	pf.Bool("trace", false, "Log every evaluation, simplification and solving step")
	pf.Bool("cache", false, "Cache results on disk (env ALGEBRA_CACHE_DIR)")
	pf.Int("parallelism", 0, "Concurrent steps for run and batch (default: number of CPUs)")

	rootCmd.AddCommand(
		newTokenizeCmd(),
		newParseCmd(),
		newEvalCmd(),
		newSimplifyCmd(),
		newSolveCmd(),
		newRunCmd(),
		newBatchCmd(),
		newReplCmd(),
		newServeCmd(),
		newCacheCmd(),
		newVersionCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// env is the resolved configuration shared by every command.
type env struct {
	cfg    *config.Config
	cache  *cache.Cache
	tracer expr.Tracer
	out    *printer
}

// dispatcher returns the single-operation dispatcher.
func (e *env) dispatcher() *runtime.Dispatcher {
	return &runtime.Dispatcher{Cache: e.cache, Tracer: e.tracer}
}

// engineOptions returns worksheet engine options.
func (e *env) engineOptions() runtime.Options {
	return runtime.Options{
		Parallelism: e.cfg.Engine.Parallelism,
		FailFast:    e.cfg.Engine.FailFast,
		MaxSteps:    e.cfg.Engine.MaxSteps,
		Tracer:      e.tracer,
		Cache:       e.cache,
	}
}

// setup loads configuration and applies the persistent flags on top.
func setup(cmd *cobra.Command) (*env, error) {
	flags := cmd.Root().PersistentFlags()

	var cfg *config.Config
	var err error
	if path, _ := flags.GetString("config"); path != "" {
		if cfg, err = config.LoadFile(path); err == nil {
			err = cfg.ApplyEnv(os.LookupEnv)
		}
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	if v, _ := flags.GetString("color"); v != "" {
		cfg.Output.Color = v
	}
	if v, _ := flags.GetBool("trace"); v {
		cfg.Output.Trace = true
	}
	if v, _ := flags.GetBool("cache"); v {
		cfg.Cache.Enabled = true
	}
	if v, _ := flags.GetInt("parallelism"); v != 0 {
		cfg.Engine.Parallelism = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, out: newPrinter(cmd.OutOrStdout(), cfg.Output.Color)}

	if cfg.Output.Trace {
		e.tracer = expr.TracerFunc(func(ev expr.Event) {
			log.Printf("trace: %s", ev)
		})
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			e.cache, err = cache.Open(cfg.Cache.Dir)
		} else {
			e.cache, err = cache.OpenDefault(cacheApp)
		}
		if err != nil {
			log.Printf("Warning: result cache disabled: %v", err)
			e.cache = nil
		}
	}

	return e, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "algebra %s\n", color.New(color.FgGreen, color.Bold).Sprint(version))
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\nbuilt:  %s\n", commit, date)
		},
	}
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the on-disk result cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "dir",
			Short: "Print the cache directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCache(cmd)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c.Dir())
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached result",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := openCache(cmd)
				if err != nil {
					return err
				}
				if err := c.DropAll(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", c.Dir())
				return nil
			},
		},
	)
	return cmd
}

func openCache(cmd *cobra.Command) (*cache.Cache, error) {
	e, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	if e.cfg.Cache.Dir != "" {
		return cache.Open(e.cfg.Cache.Dir)
	}
	return cache.OpenDefault(cacheApp)
}
