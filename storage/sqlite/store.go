// Package sqlite provides a device local auth.Storage kept in a SQLite file
// through Bun.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/habit-tracker/go-auth"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// EntryModel is the Bun model for a stored key.
type EntryModel struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key       string    `bun:"storage_key,pk"`
	Value     string    `bun:"storage_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

var _ auth.Storage = (*Store)(nil)

// Store implements auth.Storage on a kv_entries table.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at dsn and prepares the table.
// Use "file::memory:?cache=shared" for a throwaway database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	store := New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing Bun database. Call Migrate before first use.
func New(db *bun.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock injects the clock used for updated_at.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.now = clock
	}
	return s
}

// DB exposes the underlying Bun database.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates the kv_entries table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*EntryModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var model EntryModel
	err := s.db.NewSelect().
		Model(&model).
		Where("storage_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	model := &EntryModel{
		Key:       key,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}

	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (storage_key) DO UPDATE").
		Set("storage_value = EXCLUDED.storage_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// RemoveMany deletes keys in one statement. Missing keys are ignored.
func (s *Store) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.db.NewDelete().
		Model((*EntryModel)(nil)).
		Where("storage_key IN (?)", bun.In(keys)).
		Exec(ctx)
	return err
}
