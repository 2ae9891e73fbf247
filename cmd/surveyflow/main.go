// Command surveyflow serves the survey flow API and runs maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/paulexconde/surveyflow/internal/config"
	"github.com/paulexconde/surveyflow/internal/database"
	"github.com/paulexconde/surveyflow/internal/logger"
	"github.com/paulexconde/surveyflow/internal/repository"
	"github.com/paulexconde/surveyflow/internal/services"
)

var rootCmd = &cobra.Command{
	Use:           "surveyflow",
	Short:         "Multi-section survey navigation with conditional branching",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, cleanupDraftsCmd, checkCyclesCmd, normalizeCmd, importCmd, draftsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what every command shares. db is nil until connect is called.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *sqlx.DB
	rdb *redis.Client
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &app{cfg: cfg, log: log.With("app", cfg.App.Name)}, nil
}

// connect opens postgres and applies pending migrations.
func (a *app) connect(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, a.log); err != nil {
		_ = db.Close()
		return err
	}
	a.db = db
	return nil
}

// draftStore builds the configured draft backend. The postgres backend needs connect first.
func (a *app) draftStore(ctx context.Context) (services.DraftStore, error) {
	switch a.cfg.Draft.Store {
	case "memory":
		a.log.Warn("drafts are kept in memory and lost on restart")
		return services.NewMemoryDraftStore(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.Redis.Addr, err)
		}
		a.rdb = rdb
		return repository.NewRedisDraftStore(rdb, a.cfg.Redis.KeyPrefix, a.log), nil
	default:
		if a.db == nil {
			if err := a.connect(ctx); err != nil {
				return nil, err
			}
		}
		return repository.NewDraftRepository(a.db), nil
	}
}

func (a *app) draftService(ctx context.Context) (*services.DraftService, error) {
	store, err := a.draftStore(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewDraftService(store, a.log, services.WithTTL(a.cfg.Draft.TTL)), nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.log.Sync()
}
