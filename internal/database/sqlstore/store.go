// Package sqlstore stores cases in SQLite or MySQL/MariaDB. Embeddings are
// kept as raw little-endian float32 blobs and related links as
// newline-separated text.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/missing-finder/internal/config"
	"github.com/kozaktomas/missing-finder/internal/database"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	dateLayout = "2006-01-02"
)

const caseColumns = `id, owner_id, name, age, gender, notes, location, latitude, longitude,
	sighting_date, contact_name, contact_number, relation, address, national_id,
	photo_reference, embedding, related_links, created_at`

// Store is a database/sql backed case store.
type Store struct {
	db     *sql.DB
	driver string
	dim    int
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver != DriverSQLite && driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	dsn := cfg.URL
	if dsn == "" {
		if driver == DriverMySQL {
			return nil, errors.New("MySQL DSN is required")
		}
		dsn = "missing_finder.db"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single connection serializes writers and keeps per-connection pragmas.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	s := New(db, driver)
	s.dim = cfg.EmbeddingDim
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// New wraps an existing connection. The schema is not touched.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCase scans caseColumns followed by resolved_at and state.
func scanCase(row rowScanner) (*database.Case, error) {
	var (
		c            database.Case
		lat, lon     sql.NullFloat64
		blob         []byte
		links        string
		gender       string
		sightingDate string
		createdAt    string
		resolvedAt   sql.NullString
		state        string
	)

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Profile.Name, &c.Profile.Age, &gender, &c.Profile.Notes,
		&c.Location, &lat, &lon, &sightingDate,
		&c.Contact.Name, &c.Contact.Number, &c.Contact.Relation, &c.Contact.Address, &c.Contact.NationalID,
		&c.PhotoReference, &blob, &links, &createdAt,
		&resolvedAt, &state,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with query context
	}

	c.Profile.Gender = database.Gender(gender)
	c.State = database.CaseState(state)
	if lat.Valid && lon.Valid {
		c.Coordinates = &database.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if c.SightingDate, err = time.Parse(dateLayout, sightingDate); err != nil {
		return nil, fmt.Errorf("parse sighting date: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at: %w", err)
		}
		c.ResolvedAt = &t
	}
	if c.Embedding, err = database.DecodeEmbedding(blob); err != nil {
		return nil, err
	}
	c.RelatedLinks = splitLinks(links)
	return &c, nil
}

func splitLinks(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func (s *Store) queryCases(ctx context.Context, query string, args ...any) ([]database.Case, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	var cases []database.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// GetCase retrieves a case by ID from either set, returns nil if not found
func (s *Store) GetCase(ctx context.Context, id string) (*database.Case, error) {
	query := `
		SELECT ` + caseColumns + `, NULL, 'OPEN' FROM cases WHERE id = ?
		UNION ALL
		SELECT ` + caseColumns + `, resolved_at, 'FOUND' FROM resolved_cases WHERE id = ?
	`
	c, err := scanCase(s.db.QueryRowContext(ctx, query, id, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}
	return c, nil
}

// ListOpen returns every open case
func (s *Store) ListOpen(ctx context.Context) ([]database.Case, error) {
	cases, err := s.queryCases(ctx, `SELECT `+caseColumns+`, NULL, 'OPEN' FROM cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list open cases: %w", err)
	}
	return cases, nil
}

// ListByOwner returns the owner's cases in the given state, newest sighting first
func (s *Store) ListByOwner(ctx context.Context, ownerID string, state database.CaseState) ([]database.Case, error) {
	query := `SELECT ` + caseColumns + `, NULL, 'OPEN' FROM cases
		WHERE owner_id = ? ORDER BY sighting_date DESC, id`
	if state == database.StateFound {
		query = `SELECT ` + caseColumns + `, resolved_at, 'FOUND' FROM resolved_cases
			WHERE owner_id = ? ORDER BY sighting_date DESC, id`
	}
	cases, err := s.queryCases(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner cases: %w", err)
	}
	return cases, nil
}

// CountOpen returns the number of open cases
func (s *Store) CountOpen(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cases").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return count, nil
}

// InsertCase stores a new open case in a single statement
func (s *Store) InsertCase(ctx context.Context, c *database.Case) error {
	if err := database.CheckEmbedding(c.Embedding, s.dim); err != nil {
		return err
	}

	var lat, lon sql.NullFloat64
	if c.Coordinates != nil {
		lat = sql.NullFloat64{Float64: c.Coordinates.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: c.Coordinates.Longitude, Valid: true}
	}

	return s.retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO cases (`+caseColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			c.ID, c.OwnerID, c.Profile.Name, c.Profile.Age, string(c.Profile.Gender), c.Profile.Notes,
			c.Location, lat, lon, c.SightingDate.Format(dateLayout),
			c.Contact.Name, c.Contact.Number, c.Contact.Relation, c.Contact.Address, c.Contact.NationalID,
			c.PhotoReference, database.EncodeEmbedding(c.Embedding), strings.Join(c.RelatedLinks, "\n"),
			c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert case: %w", err)
		}
		return nil
	})
}

// MoveToResolved copies the open row into resolved_cases and deletes it in
// one transaction. A row that is no longer open yields ErrNotOpen.
func (s *Store) MoveToResolved(ctx context.Context, id string, resolvedAt time.Time) error {
	return s.retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		result, err := tx.ExecContext(ctx, `
			INSERT INTO resolved_cases (`+caseColumns+`, resolved_at)
			SELECT `+caseColumns+`, ? FROM cases WHERE id = ?
		`, resolvedAt.UTC().Format(time.RFC3339Nano), id)
		if err != nil {
			return fmt.Errorf("copy case to resolved: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return database.ErrNotOpen
		}

		result, err = tx.ExecContext(ctx, "DELETE FROM cases WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete open case: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n != 1 {
			return database.ErrNotOpen
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// DeleteResolved permanently removes a resolved case
func (s *Store) DeleteResolved(ctx context.Context, id string) error {
	return s.retryOnBusy(ctx, func() error {
		result, err := s.db.ExecContext(ctx, "DELETE FROM resolved_cases WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete resolved case: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return database.ErrNotFound
		}
		return nil
	})
}
