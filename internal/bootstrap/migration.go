package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "migrations"

// Migrate runs a goose command against the write DSN.
func Migrate(ctx context.Context, cfg config.Config, cmd string, version int64) error {
	if cfg.Database.WriteDSN == "" {
		return errors.New("db: WriteDSN is required")
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	pgxCfg, err := pgx.ParseConfig(cfg.Database.WriteDSN)
	if err != nil {
		return err
	}
	pgxCfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	var db *sql.DB
	db = stdlib.OpenDB(*pgxCfg)
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	goose.SetLogger(log)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	actions := map[string]func() error{
		"up":      func() error { return goose.UpContext(ctx, db, migrationsDir) },
		"down":    func() error { return goose.DownContext(ctx, db, migrationsDir) },
		"status":  func() error { return goose.StatusContext(ctx, db, migrationsDir) },
		"version": func() error { return goose.VersionContext(ctx, db, migrationsDir) },
		"redo":    func() error { return goose.RedoContext(ctx, db, migrationsDir) },
		"reset":   func() error { return goose.ResetContext(ctx, db, migrationsDir) },
		"up-to":   func() error { return goose.UpToContext(ctx, db, migrationsDir, version) },
		"down-to": func() error { return goose.DownToContext(ctx, db, migrationsDir, version) },
	}
	action, ok := actions[cmd]
	if !ok {
		return fmt.Errorf("unknown migrate command %q", cmd)
	}
	return action()
}
