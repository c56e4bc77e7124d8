package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/inaiurai/jobmeter/internal/auth"
	"github.com/inaiurai/jobmeter/internal/execution"
	"github.com/inaiurai/jobmeter/internal/handlers"
	"github.com/inaiurai/jobmeter/internal/jobs"
	"github.com/inaiurai/jobmeter/internal/ledger"
	"github.com/inaiurai/jobmeter/internal/middleware"
	"github.com/inaiurai/jobmeter/internal/rehost"
	"github.com/inaiurai/jobmeter/internal/repository"
	"github.com/inaiurai/jobmeter/internal/router"
	"github.com/inaiurai/jobmeter/internal/validate"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the dispatch worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.log

	pool, err := openPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	var reader *pgxpool.Pool
	if cfg.DatabaseReplicaURL != "" {
		reader, err = openPool(ctx, cfg.DatabaseReplicaURL, log)
		if err != nil {
			return fmt.Errorf("replica: %w", err)
		}
		defer reader.Close()
	}

	tokens := auth.NewService(cfg.JWTSecret, 0, cfg.CallbackTokenTTL)

	// Ledger
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), log)

	// Jobs: insert func is set after River client is created (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn jobs.HandoffTxFunc
	handoff := func(ctx context.Context, tx pgx.Tx, args execution.DispatchJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			return errors.New("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	jobsRepo := jobs.NewRepository(pool, reader)
	dispatcher := jobs.NewDispatcher(jobsRepo, handoff, log)

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewDispatchWorker(cfg.WorkerURL, cfg.CallbackURL, tokens, log))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args execution.DispatchJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, &river.InsertOpts{MaxAttempts: cfg.DispatchMaxAttempts})
		return err
	}
	insertMu.Unlock()

	// Reconciliation: rehost into Postgres-backed object storage, register assets.
	objects := rehost.NewPGStore(pool)
	assets := repository.NewAssetRepo(pool)
	rehoster := rehost.NewRehoster(nil, objects, cfg.PublicBaseURL, cfg.RehostMaxBytes, log)
	reconciler := jobs.NewReconciler(jobsRepo, rehoster, assets, jobs.ReconcilerConfig{
		LookupAttempts: cfg.LookupAttempts,
		LookupDelay:    cfg.LookupDelay,
		RehostTimeout:  cfg.RehostTimeout,
	}, log)

	validator, err := validate.New()
	if err != nil {
		return fmt.Errorf("compile request schemas: %w", err)
	}

	mux := router.New(router.Handlers{
		Jobs: &handlers.JobHandler{
			Dispatcher: dispatcher,
			Reconciler: reconciler,
			Jobs:       jobsRepo,
			Validator:  validator,
			Logger:     log,
		},
		Usage:  &handlers.UsageHandler{Ledger: ledgerSvc, Validator: validator, Logger: log},
		Assets: &handlers.AssetHandler{Assets: assets, Objects: objects, Logger: log},
		Health: handlers.Health(pool),
	}, tokens)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(middleware.RequestLog(log)(mux))

	// Start River client (processes hand-offs)
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := riverClient.Stop(stopCtx); err != nil {
			log.Error("River client stop", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
