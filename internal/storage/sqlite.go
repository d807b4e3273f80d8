package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load returns the stored document for a slug.
func (s *SQLiteStore) Load(ctx context.Context, slug string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT slug, doc, version, created_at, updated_at FROM families WHERE slug = ?`,
		slug,
	).Scan(&rec.Slug, &rec.Doc, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load family %s: %w", slug, err)
	}
	return rec, nil
}

// Slugs lists every stored family slug in lexical order.
func (s *SQLiteStore) Slugs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM families ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list family slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scan family slug: %w", err)
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list family slugs: %w", err)
	}
	return slugs, nil
}

// Save replaces the stored document. baseVersion 0 inserts; otherwise the
// update only lands when the stored version still matches, so two concurrent
// writers cannot silently overwrite each other.
func (s *SQLiteStore) Save(ctx context.Context, slug string, doc []byte, baseVersion int64) (Record, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	if baseVersion == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO families (slug, doc, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)`,
			slug, string(doc), now, now,
		)
		if err != nil {
			// A concurrent insert won the race for the primary key.
			if existing, loadErr := s.Load(ctx, slug); loadErr == nil {
				slog.WarnContext(ctx, "Family insert lost creation race",
					"slug", slug, "existing_version", existing.Version)
				return Record{}, ErrVersionConflict
			}
			return Record{}, fmt.Errorf("insert family %s: %w", slug, err)
		}
		slog.InfoContext(ctx, "Family document created", "slug", slug)
		return Record{Slug: slug, Doc: doc, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE families SET doc = ?, version = version + 1, updated_at = ? WHERE slug = ? AND version = ?`,
		string(doc), now, slug, baseVersion,
	)
	if err != nil {
		return Record{}, fmt.Errorf("update family %s: %w", slug, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("update family %s: %w", slug, err)
	}
	if affected == 0 {
		if _, loadErr := s.Load(ctx, slug); errors.Is(loadErr, ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, ErrVersionConflict
	}

	return Record{Slug: slug, Doc: doc, Version: baseVersion + 1, UpdatedAt: now}, nil
}
