// Package memory is the in-process record store used for development and
// tests. It enforces the same key uniqueness the Postgres adapter gets from
// its constraints and hands out only clones, so callers can never alias the
// stored trees.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/couchcryptid/open511-exchange/internal/domain"
)

// Store implements domain.JurisdictionStore and domain.RoadEventStore.
type Store struct {
	mu sync.Mutex

	jurisdictionsBySlug map[string]*domain.Jurisdiction
	eventsByKey         map[string]*domain.RoadEvent
	nextInternalID      int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jurisdictionsBySlug: make(map[string]*domain.Jurisdiction),
		eventsByKey:         make(map[string]*domain.RoadEvent),
		nextInternalID:      1,
	}
}

func eventKey(jurisdictionSlug, id string) string {
	return jurisdictionSlug + "/" + id
}

// GetBySlug returns a clone of the jurisdiction with the given slug.
func (s *Store) GetBySlug(_ context.Context, slug string) (*domain.Jurisdiction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jurisdictionsBySlug[slug]
	if !ok {
		return nil, fmt.Errorf("jurisdiction %q: %w", slug, domain.ErrNotFound)
	}
	return j.Clone(), nil
}

// GetByExternalURL returns a clone of the jurisdiction with the given
// non-empty origin URL.
func (s *Store) GetByExternalURL(_ context.Context, url string) (*domain.Jurisdiction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if url != "" {
		for _, j := range s.jurisdictionsBySlug {
			if j.ExternalURL == url {
				return j.Clone(), nil
			}
		}
	}
	return nil, fmt.Errorf("jurisdiction origin %q: %w", url, domain.ErrNotFound)
}

// SaveJurisdiction validates and persists a jurisdiction, bumping its
// updated stamp. A new slug claiming an origin URL already held by another
// slug fails with domain.ErrDuplicate.
func (s *Store) SaveJurisdiction(_ context.Context, j *domain.Jurisdiction) error {
	if _, err := j.MarshalDocument(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ExternalURL != "" {
		for slug, existing := range s.jurisdictionsBySlug {
			if slug != j.Slug && existing.ExternalURL == j.ExternalURL {
				return fmt.Errorf("origin %s already held by jurisdiction %q: %w",
					j.ExternalURL, slug, domain.ErrDuplicate)
			}
		}
	}

	if j.Created.IsZero() {
		j.Created = domain.Now()
	}
	j.Updated = domain.Now()
	s.jurisdictionsBySlug[j.Slug] = j.Clone()
	return nil
}

// GetEvent returns a clone of the event with the given key.
func (s *Store) GetEvent(_ context.Context, jurisdictionSlug, id string) (*domain.RoadEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.eventsByKey[eventKey(jurisdictionSlug, id)]
	if !ok {
		return nil, fmt.Errorf("event %s/%s: %w", jurisdictionSlug, id, domain.ErrNotFound)
	}
	return e.Clone(), nil
}

// SaveEvent validates and persists a road event. First saves are assigned
// the internal identity, which also becomes the public ID when the source
// supplied none. Creating a second record for an existing (id, jurisdiction)
// key fails with domain.ErrDuplicate.
func (s *Store) SaveEvent(_ context.Context, e *domain.RoadEvent) error {
	if _, err := e.MarshalDocument(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.InternalID == 0 {
		e.InternalID = s.nextInternalID
		s.nextInternalID++
	}
	if e.ID == "" {
		e.ID = strconv.FormatInt(e.InternalID, 10)
	}

	key := eventKey(e.JurisdictionSlug, e.ID)
	if existing, ok := s.eventsByKey[key]; ok && existing.InternalID != e.InternalID {
		return fmt.Errorf("event %s: %w", key, domain.ErrDuplicate)
	}

	if e.Created.IsZero() {
		e.Created = domain.Now()
	}
	e.Updated = domain.Now()
	s.eventsByKey[key] = e.Clone()
	return nil
}

// ListByJurisdiction returns clones of every event in a jurisdiction,
// ordered by internal identity (creation order).
func (s *Store) ListByJurisdiction(_ context.Context, jurisdictionSlug string) ([]*domain.RoadEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.RoadEvent
	for _, e := range s.eventsByKey {
		if e.JurisdictionSlug == jurisdictionSlug {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].InternalID < out[k].InternalID })
	return out, nil
}
