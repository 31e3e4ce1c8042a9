package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

const recordChangesChannel = "record_changes"

// PostgresStore keeps records in a JSONB table. A trigger announces every
// changed path on the record_changes channel; subscribers hold their own
// connection in LISTEN mode and re-read the row on each announcement.
type PostgresStore struct {
	db          *sql.DB
	databaseURL string
}

// NewPostgresStore wraps an open pool. databaseURL is used to open the
// dedicated LISTEN connections, which cannot come from database/sql.
func NewPostgresStore(db *sql.DB, databaseURL string) *PostgresStore {
	return &PostgresStore{db: db, databaseURL: databaseURL}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Read(ctx context.Context, path string) (Record, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE path=$1`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	return decodeRecord(raw)
}

func (s *PostgresStore) Write(ctx context.Context, path string, value Record) error {
	payload, err := encodeRecord(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (path, value)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (path) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()
	`, path, string(payload))
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *PostgresStore) PartialUpdate(ctx context.Context, path string, fields Record) error {
	payload, err := encodeRecord(fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (path, value)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (path) DO UPDATE SET value=records.value || EXCLUDED.value, updated_at=NOW()
	`, path, string(payload))
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, path string, onValue func(Record), onError func(error)) (Unsubscribe, error) {
	conn, err := pgx.Connect(ctx, s.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+recordChangesChannel); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("listen: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	deliver := func() bool {
		record, err := s.Read(subCtx, path)
		if subCtx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrNotFound) {
			onValue(nil)
			return true
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return false
		}
		onValue(record)
		return true
	}

	go func() {
		defer conn.Close(context.Background())
		if !deliver() {
			return
		}
		for {
			notification, err := conn.WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() == nil && onError != nil {
					onError(fmt.Errorf("wait for notification: %w", err))
				}
				return
			}
			if notification.Payload != path {
				continue
			}
			if !deliver() {
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
