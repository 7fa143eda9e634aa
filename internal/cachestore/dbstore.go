package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBStore keeps named artifact databases, one sqlite file per database, under
// a single directory. Each database is independently deletable.
type DBStore struct {
	dir         string
	deleteRetry int
	retryDelay  time.Duration
}

func NewDBStore(dir string) *DBStore {
	return &DBStore{
		dir:         dir,
		deleteRetry: 5,
		retryDelay:  200 * time.Millisecond,
	}
}

func (s *DBStore) Name() string {
	return "artifact_db"
}

func (s *DBStore) Keys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifact databases: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".db"))
	}
	return names, nil
}

// DeleteKey removes a named database in full. A database can be briefly
// blocked by an open connection, so removal is retried with a bounded wait
// before giving up on that one database.
func (s *DBStore) DeleteKey(ctx context.Context, name string) error {
	path := s.dbPath(name)
	var lastErr error
	for i := 0; i < s.deleteRetry; i++ {
		if err := os.Remove(path); err == nil || os.IsNotExist(err) {
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
	return fmt.Errorf("delete database %s: %w", name, lastErr)
}

func (s *DBStore) Put(ctx context.Context, dbName, key string, data []byte) error {
	db, err := s.open(dbName)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx,
		`INSERT INTO artifact (key, data, mtime) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, mtime = excluded.mtime`,
		key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put artifact %s/%s: %w", dbName, key, err)
	}
	return nil
}

func (s *DBStore) Get(ctx context.Context, dbName, key string) ([]byte, bool, error) {
	if _, err := os.Stat(s.dbPath(dbName)); os.IsNotExist(err) {
		return nil, false, nil
	}
	db, err := s.open(dbName)
	if err != nil {
		return nil, false, err
	}
	defer db.Close()
	row := db.QueryRowContext(ctx, `SELECT data FROM artifact WHERE key = ?`, key)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get artifact %s/%s: %w", dbName, key, err)
	}
	return data, true, nil
}

func (s *DBStore) open(dbName string) (*sql.DB, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact db dir: %w", err)
	}
	db, err := sql.Open("sqlite", s.dbPath(dbName))
	if err != nil {
		return nil, fmt.Errorf("open artifact database %s: %w", dbName, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifact (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		mtime INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init artifact database %s: %w", dbName, err)
	}
	return db, nil
}

func (s *DBStore) dbPath(name string) string {
	return filepath.Join(s.dir, name+".db")
}
