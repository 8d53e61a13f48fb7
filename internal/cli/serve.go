package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/vhvplatform/go-esign-delivery-service/internal/handler"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, event consumer and ops HTTP server",
		Long: `Start the job scheduler and the ops HTTP server (/health, /ready, /metrics,
/status, POST /jobs/:name/run). When RabbitMQ is enabled, e-sign events are
consumed and turned into queued jobs.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting e-sign delivery service...", "sqs", cfg.UseSQS)

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.NewOpsHandler(a.scheduler, a.checks, log).Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	var wg sync.WaitGroup
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(ctx); err != nil {
				log.Error("Event consumer stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Ops server started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		log.Error("Ops server failed", "error", err)
		stop()
	}

	log.Info("Shutting down e-sign delivery service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	a.scheduler.Stop()
	wg.Wait()

	log.Info("E-sign delivery service stopped")
	return err
}
