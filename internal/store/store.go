// Package store is the relational datastore holding the audio metadata catalog
// (audio_files) and the per-recording feature rows (spot_features).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"vibe-transcriber-service/internal/config"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
)

// ErrNotFound is returned when no row exists for a lookup.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQL database.
type Store struct {
	db      *sql.DB
	dialect dialect
	log     zerolog.Logger
	clock   func() time.Time
}

// Open connects to the configured database and optionally creates the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(sqlitePath(cfg.DSN)); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	case "mysql":
		mcfg, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		if mcfg.Collation == "" {
			mcfg.Collation = "utf8mb4_unicode_ci"
		}
		mcfg.InterpolateParams = true
		conn, err := mysql.NewConnector(mcfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db = sql.OpenDB(conn)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := New(db, d.driver)
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// New wraps an existing connection. driver is "sqlite" or "mysql".
func New(db *sql.DB, driver string) *Store {
	d, err := dialectFor(driver)
	if err != nil {
		d = sqliteDialect
	}
	return &Store{
		db:      db,
		dialect: d,
		log:     logging.WithComponent("store"),
		clock:   time.Now,
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.log.Info().Str("driver", s.dialect.driver).Msg("Schema ready")
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() string {
	return models.FormatTimestamp(s.clock())
}

// sqlitePath extracts the file path from a "file:path?params" DSN.
func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == ":memory:" {
		return ""
	}
	return p
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
