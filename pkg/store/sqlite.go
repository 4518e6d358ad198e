package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteSnapshotStore struct {
	db *sql.DB
}

func NewSQLiteSnapshotStore(ctx context.Context, path string, migrations string) (SnapshotStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteSnapshotStore{
		db: db,
	}, nil
}

func (s *SQLiteSnapshotStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteSnapshotStore) Save(ctx context.Context, snapshot *savetypes.SaveSnapshot) error {
	body, err := encodePayload(snapshot)
	if err != nil {
		return &LocalStoreError{Err: err}
	}

	q := `
	INSERT OR REPLACE INTO save (id, version, saved_at, payload)
	VALUES (1, ?, ?, ?);
	`
	if _, err := s.db.ExecContext(ctx, q, snapshot.Version, snapshot.SavedAt, body); err != nil {
		return &LocalStoreError{Err: fmt.Errorf("failed to insert save: %v", err)}
	}

	return nil
}

func (s *SQLiteSnapshotStore) Load(ctx context.Context) (*savetypes.SaveSnapshot, error) {
	q := `
	SELECT version, saved_at, payload FROM save WHERE id = 1;
	`
	var version int
	var savedAt int64
	var body []byte
	if err := s.db.QueryRowContext(ctx, q).Scan(&version, &savedAt, &body); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &LocalStoreError{Err: fmt.Errorf("failed to scan save: %v", err)}
	}

	p, err := decodePayload(body)
	if err != nil {
		return nil, &LocalStoreError{Err: err}
	}

	return &savetypes.SaveSnapshot{
		Version:         version,
		SavedAt:         savedAt,
		GameState:       p.GameState,
		ConfigOverrides: p.ConfigOverrides,
	}, nil
}

func (s *SQLiteSnapshotStore) Clear(ctx context.Context) error {
	q := `
	DELETE FROM save WHERE id = 1;
	`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return &LocalStoreError{Err: fmt.Errorf("failed to delete save: %v", err)}
	}

	return nil
}
