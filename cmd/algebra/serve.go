package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/algebra-workbench/pkg/api"
	grpcapi "github.com/lemonberrylabs/algebra-workbench/pkg/api/grpc"
	"github.com/lemonberrylabs/algebra-workbench/pkg/store"
	"github.com/lemonberrylabs/algebra-workbench/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, gRPC API and web UI",
		Args:  cobra.NoArgs,
		RunE:  serve,
	}
	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("worksheets-dir", "", "Directory of worksheet YAML/JSON files to load (env WORKSHEETS_DIR)")
	return cmd
}

func serve(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg := e.cfg

	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		cfg.Server.GRPCPort = v
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Server.Host = v
	}
	if v, _ := cmd.Flags().GetString("worksheets-dir"); v != "" {
		cfg.Server.WorksheetsDir = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	addr := cfg.Addr()
	grpcAddr := cfg.GRPCAddr()

	s := store.New()
	server := api.New(s, e.engineOptions())

	// Load worksheets from directory if specified
	if dir := cfg.Server.WorksheetsDir; dir != "" {
		log.Printf("Loading worksheets directory: %s", dir)
		if err := server.WatchDir(dir); err != nil {
			log.Printf("Warning: failed to load worksheets directory: %v", err)
		}
	}

	// Register the web UI (non-fatal if template parsing fails)
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Warning: web UI disabled due to template error: %v", r)
			}
		}()
		ui := web.New(s, e.dispatcher())
		ui.Register(server.App())
	}()

	// Start gRPC server
	grpcServer := grpcapi.New(s, e.engineOptions())
	go func() {
		log.Printf("gRPC server listening on %s", grpcAddr)
		if err := grpcServer.Serve(grpcAddr); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	if cfg.Path != "" {
		log.Printf("Using configuration %s", cfg.Path)
	}
	if e.cache != nil {
		log.Printf("Result cache: %s", e.cache.Dir())
	}
	log.Printf("Algebra workbench listening on %s", addr)
	if err := server.Listen(addr); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
