package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"battlelog-tracker/internal/config"
	"battlelog-tracker/internal/constants"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

func New(cfg *config.Config, logger zerolog.Logger) (*sql.DB, error) {
	return Open(cfg.DBPath, logger)
}

// Open connects to the SQLite file at path, tunes it and applies the
// embedded migrations. Transactions take the write lock when they begin;
// busy_timeout is part of the DSN so every pooled connection carries it.
func Open(path string, logger zerolog.Logger) (*sql.DB, error) {
	logger = logger.With().Str("component", "database").Logger()
	logger.Info().Str("path", path).Msg("opening snapshot database")

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d", path, constants.DatabaseTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database %s: %w", path, err)
	}

	db.SetMaxOpenConns(constants.DBMaxOpenConns)
	db.SetMaxIdleConns(constants.DBMaxIdleConns)
	db.SetConnMaxLifetime(constants.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(constants.DBMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	if err := applyPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info().Int64("schema_version", version).Msg("snapshot database ready")
	return nil
}

var pragmas = []struct {
	name  string
	value string
}{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"cache_size", "-16000"},
	{"temp_store", "MEMORY"},
}

func applyPragmas(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", p.name, err)
		}
		logger.Debug().Str("pragma", p.name).Str("value", p.value).Msg("SQLite pragma set")
	}
	return nil
}
