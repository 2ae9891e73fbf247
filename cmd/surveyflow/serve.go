package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/paulexconde/surveyflow/internal/handlers"
	"github.com/paulexconde/surveyflow/internal/repository"
	"github.com/paulexconde/surveyflow/internal/scheduler"
	"github.com/paulexconde/surveyflow/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the draft cleanup schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		return err
	}
	drafts, err := a.draftService(ctx)
	if err != nil {
		return err
	}

	evaluator := services.NewBranchEvaluator(a.log)
	flow := services.NewFlowService(drafts, evaluator, a.cfg.Flow.MaxTransitions, a.log)
	surveys := repository.NewSurveyRepository(a.db, a.log)

	sched := scheduler.NewScheduler(drafts, &a.cfg.Scheduler, a.log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Stop(shutdownCtx)
	}()

	if a.cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.NewFlowHandler(surveys, flow, drafts, a.log), a.log)

	server := &http.Server{
		Addr:         net.JoinHostPort(a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.TimeoutRead,
		WriteTimeout: a.cfg.Server.TimeoutWrite,
		IdleTimeout:  a.cfg.Server.TimeoutIdle,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", "addr", server.Addr, "draft_store", a.cfg.Draft.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.log.Info("server exited")
	return nil
}
