package domain

import "context"

// JurisdictionStore persists jurisdictions. Lookups return ErrNotFound when
// nothing matches; Save validates the canonical subtree, bumps the updated
// stamp, and surfaces ErrDuplicate on a uniqueness violation.
type JurisdictionStore interface {
	GetBySlug(ctx context.Context, slug string) (*Jurisdiction, error)
	GetByExternalURL(ctx context.Context, url string) (*Jurisdiction, error)
	SaveJurisdiction(ctx context.Context, j *Jurisdiction) error
}

// RoadEventStore persists road events keyed by (jurisdiction slug, public
// id). Save assigns InternalID on first persist, falls back to the
// stringified internal identity when ID is empty, validates the canonical
// subtree, bumps the updated stamp, and surfaces ErrDuplicate on a
// uniqueness violation.
type RoadEventStore interface {
	GetEvent(ctx context.Context, jurisdictionSlug, id string) (*RoadEvent, error)
	SaveEvent(ctx context.Context, e *RoadEvent) error
	ListByJurisdiction(ctx context.Context, jurisdictionSlug string) ([]*RoadEvent, error)
}

// Fetcher retrieves the raw bytes of a remote document. The single blocking
// external call of the core; implementations bound it with a timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
