package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const caseColumns = `id, owner_id, name, age, gender, notes, location, latitude, longitude,
	sighting_date, contact_name, contact_number, relation, address, national_id,
	photo_reference, embedding, related_links, created_at`

// CaseRepository provides PostgreSQL-backed case storage.
// Open cases live in "cases", resolved ones in "resolved_cases".
type CaseRepository struct {
	pool *Pool
	dim  int
}

// NewCaseRepository creates a new PostgreSQL case repository
func NewCaseRepository(pool *Pool) *CaseRepository {
	return &CaseRepository{pool: pool}
}

// Pool returns the underlying connection pool.
func (r *CaseRepository) Pool() *Pool {
	return r.pool
}

// Close closes the underlying pool.
func (r *CaseRepository) Close() error {
	return r.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanCase scans caseColumns followed by resolved_at and state.
func scanCase(row rowScanner) (*database.Case, error) {
	var (
		c          database.Case
		lat, lon   sql.NullFloat64
		vec        pgvector.Vector
		links      pq.StringArray
		resolvedAt sql.NullTime
		gender     string
		state      string
	)

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Profile.Name, &c.Profile.Age, &gender, &c.Profile.Notes,
		&c.Location, &lat, &lon, &c.SightingDate,
		&c.Contact.Name, &c.Contact.Number, &c.Contact.Relation, &c.Contact.Address, &c.Contact.NationalID,
		&c.PhotoReference, &vec, &links, &c.CreatedAt,
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
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	c.Embedding = vec.Slice()
	c.RelatedLinks = []string(links)
	return &c, nil
}

func scanCases(rows *sql.Rows) ([]database.Case, error) {
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
func (r *CaseRepository) GetCase(ctx context.Context, id string) (*database.Case, error) {
	query := `
		SELECT ` + caseColumns + `, NULL::timestamptz, 'OPEN' FROM cases WHERE id = $1
		UNION ALL
		SELECT ` + caseColumns + `, resolved_at, 'FOUND' FROM resolved_cases WHERE id = $1
		LIMIT 1
	`
	c, err := scanCase(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}
	return c, nil
}

// ListOpen returns every open case
func (r *CaseRepository) ListOpen(ctx context.Context) ([]database.Case, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+caseColumns+`, NULL::timestamptz, 'OPEN'
		FROM cases
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query open cases: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

// ListByOwner returns the owner's cases in the given state, newest sighting first
func (r *CaseRepository) ListByOwner(ctx context.Context, ownerID string, state database.CaseState) ([]database.Case, error) {
	query := `
		SELECT ` + caseColumns + `, NULL::timestamptz, 'OPEN'
		FROM cases
		WHERE owner_id = $1
		ORDER BY sighting_date DESC, id
	`
	if state == database.StateFound {
		query = `
			SELECT ` + caseColumns + `, resolved_at, 'FOUND'
			FROM resolved_cases
			WHERE owner_id = $1
			ORDER BY sighting_date DESC, id
		`
	}

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner cases: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

// CountOpen returns the number of open cases
func (r *CaseRepository) CountOpen(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM cases").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return count, nil
}

// InsertCase stores a new open case in a single statement
func (r *CaseRepository) InsertCase(ctx context.Context, c *database.Case) error {
	if err := database.CheckEmbedding(c.Embedding, r.dim); err != nil {
		return err
	}

	var lat, lon sql.NullFloat64
	if c.Coordinates != nil {
		lat = sql.NullFloat64{Float64: c.Coordinates.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: c.Coordinates.Longitude, Valid: true}
	}
	links := c.RelatedLinks
	if links == nil {
		links = []string{}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::vector, $18, $19)
	`,
		c.ID, c.OwnerID, c.Profile.Name, c.Profile.Age, string(c.Profile.Gender), c.Profile.Notes,
		c.Location, lat, lon, c.SightingDate,
		c.Contact.Name, c.Contact.Number, c.Contact.Relation, c.Contact.Address, c.Contact.NationalID,
		c.PhotoReference, pgvector.NewVector(c.Embedding), pq.Array(links), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// MoveToResolved moves an open case into resolved_cases in one statement.
// The DELETE ... RETURNING acts as the optimistic state check: a concurrent
// mover finds no row and gets ErrNotOpen.
func (r *CaseRepository) MoveToResolved(ctx context.Context, id string, resolvedAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM cases WHERE id = $1 RETURNING `+caseColumns+`
		)
		INSERT INTO resolved_cases (`+caseColumns+`, resolved_at)
		SELECT `+caseColumns+`, $2 FROM moved
	`, id, resolvedAt)
	if err != nil {
		return fmt.Errorf("move case to resolved: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotOpen
	}
	return nil
}

// DeleteResolved permanently removes a resolved case
func (r *CaseRepository) DeleteResolved(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM resolved_cases WHERE id = $1", id)
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
}

// Migrate applies pending schema migrations.
func (r *CaseRepository) Migrate(ctx context.Context) ([]string, error) {
	return r.pool.Migrate(ctx)
}
