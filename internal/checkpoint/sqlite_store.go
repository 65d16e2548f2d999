package checkpoint

import (
	"context"
	"database/sql"
	"errors"
)

// SQLiteStore is a Store backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			session_id TEXT NOT NULL,
			exchange_id TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (session_id, exchange_id)
		);`,
	)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error {
	data, err := encode(cp)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, exchange_id, data)
		VALUES (?, ?, ?)
		ON CONFLICT (session_id, exchange_id) DO UPDATE SET data = excluded.data`,
		sessionID, exchangeID, data,
	)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints
		WHERE session_id = ? AND exchange_id = ?`,
		sessionID, exchangeID,
	)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (s *SQLiteStore) Take(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT data FROM checkpoints
		WHERE session_id = ? AND exchange_id = ?`,
		sessionID, exchangeID,
	)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE session_id = ? AND exchange_id = ?`,
		sessionID, exchangeID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, exchangeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE session_id = ? AND exchange_id = ?`,
		sessionID, exchangeID,
	)
	return err
}
