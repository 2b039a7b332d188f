package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/recall/internal/config"
	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/fsrs"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	syncpkg "github.com/conorfennell/recall/internal/sync"
	"github.com/conorfennell/recall/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.Default()
	flags := pflag.NewFlagSet("recall", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a yaml config file")
	flags.String("addr", defaults.Addr, "listen address")
	flags.String("db_path", defaults.DBPath, "path to the SQLite database file")
	flags.String("repos_dir", defaults.ReposDir, "directory for git checkouts")
	importSource := flags.String("import", "", "markdown directory or git URL to import, then exit")
	importDeck := flags.String("deck", "", "deck name for --import")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	db, err := storage.Open(cfg.DBPath, storage.RealClock{})
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	defer db.Close()

	validate := domain.NewValidator()

	if *importSource != "" {
		if *importDeck == "" {
			return errors.New("--import requires --deck")
		}
		im := importer.New(db, validate, log, cfg.ReposDir)
		summary, err := im.Run(context.Background(), *importSource, *importDeck)
		if err != nil {
			return err
		}
		for _, perr := range summary.ParseErrors {
			log.Warn("parse error", "err", perr)
		}
		fmt.Printf("Imported %d cards into deck %s (%d duplicates skipped, %d parse errors).\n",
			summary.CardsCreated, *importDeck, summary.Duplicates, len(summary.ParseErrors))
		return nil
	}

	params := fsrs.DefaultParams()
	params.RequestedRetention = cfg.Scheduler.RequestedRetention
	params.MaximumInterval = cfg.Scheduler.MaximumIntervalDays
	scheduler, err := fsrs.NewScheduler(params)
	if err != nil {
		return err
	}

	svc := study.New(db, scheduler, validate)
	reconciler := syncpkg.NewReconciler(db, validate, log)
	server := web.NewServer(svc, reconciler, validate, log, cfg.CORSOrigins)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr, "db", cfg.DBPath)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
