package persist

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/danhigham/tgcache/internal/persist/migrations"
)

// SQLiteStorage keeps records and the pending-write log in one SQLite file.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// OpenSQLite opens (creating if needed) the database at dsn and migrates it.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection: SQLite serializes writers anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteStorage(db), nil
}

// NewSQLiteStorage wraps an already migrated database.
func NewSQLiteStorage(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db, now: time.Now}
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get record[%s]", key)
	}
	return value, nil
}

func (s *SQLiteStorage) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM records WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
	if err != nil {
		return nil, errors.Wrap(err, "list records")
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "scan record row")
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate record rows")
	}
	return result, nil
}

func (s *SQLiteStorage) AppendLog(ctx context.Context, key string, value []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO pending_log (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return 0, errors.Wrapf(err, "append log[%s]", key)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "log sequence")
	}
	return seq, nil
}

func (s *SQLiteStorage) Commit(ctx context.Context, key string, value []byte, upTo int64) error {
	err := withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		if value == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, value, s.now().Unix()); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM pending_log WHERE key = ? AND seq <= ?`, key, upTo)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "commit record[%s]", key)
	}
	return nil
}

func (s *SQLiteStorage) PendingLog(ctx context.Context) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, key, value FROM pending_log ORDER BY seq`)
	if err != nil {
		return nil, errors.Wrap(err, "read pending log")
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Seq, &e.Key, &e.Value); err != nil {
			return nil, errors.Wrap(err, "scan pending log row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate pending log rows")
	}
	return out, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
