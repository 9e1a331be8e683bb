package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/gazeflow/internal/domain/manager"
	"github.com/GriffinCanCode/gazeflow/internal/infrastructure/server"
)

var runFlags struct {
	streams  string
	duration time.Duration
	http     bool
	port     string
	watch    string
	every    time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a stream set until interrupted",
	Long: `Run starts every stream of the set and routes statuses between them
until SIGINT/SIGTERM, the --duration elapses, or every stream finishes.

With --http the status API, websocket feeds and /metrics are served.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.streams, "file", "f", "", "Stream set file (YAML, TOML or JSON)")
	f.DurationVar(&runFlags.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	f.BoolVar(&runFlags.http, "http", false, "Serve the status API")
	f.StringVar(&runFlags.port, "port", "", "API port (default: $HTTP_PORT)")
	f.StringVar(&runFlags.watch, "watch", "", "Print this status key for every stream, e.g. fps or pupil.confidence")
	f.DurationVar(&runFlags.every, "watch-every", time.Second, "Interval between --watch lines")

	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("duration") {
		cfg.Engine.RunDuration = runFlags.duration
	}
	if runFlags.http {
		cfg.HTTP.Enabled = true
	}
	if runFlags.port != "" {
		cfg.HTTP.Port = runFlags.port
	}

	srv, err := server.NewFromFile(cfg, runFlags.streams)
	if err != nil {
		return fmt.Errorf("load %s: %w", runFlags.streams, err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runFlags.watch != "" {
		wctx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchStatus(wctx, cmd.OutOrStdout(), srv.Manager(), runFlags.watch, runFlags.every)
		}()
		defer wg.Wait()
		defer cancel()
	}

	return srv.Run(ctx)
}

// watchStatus prints one FormatStatus line per tick until ctx ends.
func watchStatus(ctx context.Context, out io.Writer, m *manager.Manager, key string, every time.Duration) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(out, "%s: %s\n", key, m.FormatStatus(key))
		}
	}
}
