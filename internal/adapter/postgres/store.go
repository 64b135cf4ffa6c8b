// Package postgres is the durable record store. Key uniqueness — one
// jurisdiction per slug and per origin URL, one event per (jurisdiction, id)
// — is enforced by database constraints, which makes the DB the sole
// race-safety mechanism under concurrent creates: the losing writer gets
// domain.ErrDuplicate and retries as a lookup-then-update.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/geom"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// Store implements domain.JurisdictionStore and domain.RoadEventStore on
// PostgreSQL via lib/pq.
type Store struct {
	db *sql.DB
}

// Open connects to the database and configures the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the tables and uniqueness constraints if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jurisdictions (
		slug         TEXT PRIMARY KEY,
		external_url TEXT NOT NULL DEFAULT '',
		xml_data     TEXT NOT NULL,
		created      TIMESTAMPTZ NOT NULL,
		updated      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS jurisdictions_external_url_key
		ON jurisdictions (external_url) WHERE external_url <> ''`,
	`CREATE TABLE IF NOT EXISTS road_events (
		internal_id       BIGSERIAL PRIMARY KEY,
		id                TEXT NOT NULL DEFAULT '',
		jurisdiction_slug TEXT NOT NULL REFERENCES jurisdictions (slug),
		external_url      TEXT NOT NULL DEFAULT '',
		active            BOOLEAN NOT NULL DEFAULT TRUE,
		geometry_gml      TEXT NOT NULL,
		xml_data          TEXT NOT NULL,
		created           TIMESTAMPTZ NOT NULL,
		updated           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS road_events_jurisdiction_id_key
		ON road_events (jurisdiction_slug, id) WHERE id <> ''`,
}

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Store) GetBySlug(ctx context.Context, slug string) (*domain.Jurisdiction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, external_url, xml_data, created, updated FROM jurisdictions WHERE slug = $1`, slug)
	return scanJurisdiction(row, slug)
}

func (s *Store) GetByExternalURL(ctx context.Context, url string) (*domain.Jurisdiction, error) {
	if url == "" {
		return nil, fmt.Errorf("jurisdiction origin %q: %w", url, domain.ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT slug, external_url, xml_data, created, updated FROM jurisdictions WHERE external_url = $1`, url)
	return scanJurisdiction(row, url)
}

func scanJurisdiction(row *sql.Row, key string) (*domain.Jurisdiction, error) {
	var j domain.Jurisdiction
	var raw string
	err := row.Scan(&j.Slug, &j.ExternalURL, &raw, &j.Created, &j.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("jurisdiction %q: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load jurisdiction %q: %w", key, err)
	}
	if err := j.UnmarshalDocument(raw); err != nil {
		return nil, fmt.Errorf("load jurisdiction %q: %w", key, err)
	}
	return &j, nil
}

func (s *Store) SaveJurisdiction(ctx context.Context, j *domain.Jurisdiction) error {
	raw, err := j.MarshalDocument()
	if err != nil {
		return err
	}

	if j.Created.IsZero() {
		j.Created = domain.Now()
	}
	j.Updated = domain.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jurisdictions (slug, external_url, xml_data, created, updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (slug) DO UPDATE
		 SET external_url = EXCLUDED.external_url,
		     xml_data     = EXCLUDED.xml_data,
		     created      = EXCLUDED.created,
		     updated      = EXCLUDED.updated`,
		j.Slug, j.ExternalURL, raw, j.Created, j.Updated)
	if isUniqueViolation(err) {
		return fmt.Errorf("jurisdiction %q origin %s: %w", j.Slug, j.ExternalURL, domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("save jurisdiction %q: %w", j.Slug, err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, jurisdictionSlug, id string) (*domain.RoadEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT internal_id, id, jurisdiction_slug, external_url, active, geometry_gml, xml_data, created, updated
		 FROM road_events WHERE jurisdiction_slug = $1 AND id = $2`, jurisdictionSlug, id)

	e, err := scanEvent(rowScanner{row})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s/%s: %w", jurisdictionSlug, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load event %s/%s: %w", jurisdictionSlug, id, err)
	}
	return e, nil
}

func (s *Store) SaveEvent(ctx context.Context, e *domain.RoadEvent) error {
	raw, err := e.MarshalDocument()
	if err != nil {
		return err
	}
	gml, err := xmldoc.Serialize(geom.Encode(e.Geometry))
	if err != nil {
		return fmt.Errorf("save event %s/%s: %w", e.JurisdictionSlug, e.ID, err)
	}

	if e.Created.IsZero() {
		e.Created = domain.Now()
	}
	e.Updated = domain.Now()

	if e.InternalID == 0 {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO road_events (id, jurisdiction_slug, external_url, active, geometry_gml, xml_data, created, updated)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING internal_id`,
			e.ID, e.JurisdictionSlug, e.ExternalURL, e.Active, gml, raw, e.Created, e.Updated).Scan(&e.InternalID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE road_events
			 SET id = $2, external_url = $3, active = $4, geometry_gml = $5, xml_data = $6, created = $7, updated = $8
			 WHERE internal_id = $1`,
			e.InternalID, e.ID, e.ExternalURL, e.Active, gml, raw, e.Created, e.Updated)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("event %s/%s: %w", e.JurisdictionSlug, e.ID, domain.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("save event %s/%s: %w", e.JurisdictionSlug, e.ID, err)
	}

	// An event saved without a public identifier falls back to its internal
	// identity, stringified.
	if e.ID == "" {
		e.ID = strconv.FormatInt(e.InternalID, 10)
		if _, err := s.db.ExecContext(ctx,
			`UPDATE road_events SET id = $2 WHERE internal_id = $1`, e.InternalID, e.ID); err != nil {
			return fmt.Errorf("assign event id %s/%d: %w", e.JurisdictionSlug, e.InternalID, err)
		}
	}
	return nil
}

func (s *Store) ListByJurisdiction(ctx context.Context, jurisdictionSlug string) ([]*domain.RoadEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT internal_id, id, jurisdiction_slug, external_url, active, geometry_gml, xml_data, created, updated
		 FROM road_events WHERE jurisdiction_slug = $1 ORDER BY internal_id`, jurisdictionSlug)
	if err != nil {
		return nil, fmt.Errorf("list events %s: %w", jurisdictionSlug, err)
	}
	defer rows.Close()

	var out []*domain.RoadEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events %s: %w", jurisdictionSlug, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events %s: %w", jurisdictionSlug, err)
	}
	return out, nil
}

// scanner abstracts *sql.Row and *sql.Rows for event hydration.
type scanner interface {
	Scan(dest ...any) error
}

type rowScanner struct{ *sql.Row }

func scanEvent(sc scanner) (*domain.RoadEvent, error) {
	var e domain.RoadEvent
	var gml, raw string
	if err := sc.Scan(&e.InternalID, &e.ID, &e.JurisdictionSlug, &e.ExternalURL,
		&e.Active, &gml, &raw, &e.Created, &e.Updated); err != nil {
		return nil, err
	}

	gmlEl, err := xmldoc.Parse(gml)
	if err != nil {
		return nil, err
	}
	g, err := geom.Decode(gmlEl, true)
	if err != nil {
		return nil, err
	}
	e.Geometry = g

	if err := e.UnmarshalDocument(raw); err != nil {
		return nil, err
	}
	return &e, nil
}
