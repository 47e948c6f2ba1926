package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kayz/quorum/internal/logger"
	"github.com/kayz/quorum/internal/pipeline"
	"github.com/kayz/quorum/internal/schedule"
	"github.com/kayz/quorum/internal/webui"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveSchedules bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quorum web UI and JSON API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server.addr)")
	serveCmd.Flags().BoolVar(&serveSchedules, "schedules", false, "Also run the configured schedules")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, runOverrides{})
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []webui.Option{
		webui.WithInfo(a.providerNames(), a.pipeline.SearchActive()),
		webui.WithRecorder(func(res *pipeline.Result) { a.record(res) }),
	}
	if a.store != nil {
		opts = append(opts, webui.WithHistory(a.store))
	}
	server := webui.NewServer(a.pipeline, opts...)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var sched *schedule.Scheduler
	if serveSchedules {
		sched, _, err = a.startSchedules()
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[WebUI] listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("web UI server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	if sched != nil {
		_ = sched.Stop(ctx)
	}
	return err
}
