package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/NithishSaravananRss/valentine-proposal-app/db"
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetMaxIdleConns(5)
	conn.SetMaxOpenConns(10)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return conn, nil
}

// OpenPostgres opens the pool, brings the schema up to date and returns the
// backend. An empty migrationsDir uses the migrations built into the binary.
func OpenPostgres(ctx context.Context, databaseURL, migrationsDir string) (*PostgresStore, error) {
	conn, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if migrationsDir == "" {
		err = ApplyMigrationsFS(ctx, conn, db.Migrations, "migrations")
	} else {
		err = ApplyMigrations(ctx, conn, migrationsDir)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return NewPostgresStore(conn, databaseURL), nil
}
