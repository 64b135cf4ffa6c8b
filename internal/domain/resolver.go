package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// maxResolveDepth bounds the self-link redirect chain followed during remote
// jurisdiction resolution. A longer chain is treated as a cycle.
const maxResolveDepth = 5

// Resolver turns a jurisdiction reference (local slug URL or remote self
// link) into a canonical stored jurisdiction, fetching and merging remote
// jurisdiction documents when the origin is unknown.
type Resolver struct {
	store   JurisdictionStore
	fetcher Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewResolver creates a Resolver. baseURL is this instance's own URL prefix,
// used to recognize references to local jurisdictions.
func NewResolver(store JurisdictionStore, fetcher Fetcher, baseURL string, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Resolve returns the jurisdiction for a reference URL, fetching and merging
// the remote document when no stored record matches.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Jurisdiction, error) {
	return r.resolve(ctx, ref, 0)
}

func (r *Resolver) resolve(ctx context.Context, ref string, depth int) (*Jurisdiction, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrResolution)
	}

	j, err := r.store.GetByExternalURL(ctx, ref)
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}

	// A URL under our own base refers to a local jurisdiction by slug.
	if r.baseURL != "" && strings.HasPrefix(ref, r.baseURL) {
		slug := lastPathSegment(ref)
		j, err := r.store.GetBySlug(ctx, slug)
		if err == nil {
			return j, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolve %s: %w", ref, err)
		}
	}

	if depth >= maxResolveDepth {
		return nil, fmt.Errorf("%w: self-link chain exceeded %d hops at %s", ErrResolution, maxResolveDepth, ref)
	}

	body, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrResolution, ref, err)
	}
	root, err := xmldoc.Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrResolution, ref, err)
	}

	jur := jurisdictionElement(root)
	if jur == nil {
		return nil, fmt.Errorf("%w: no jurisdiction element at %s", ErrResolution, ref)
	}
	selfLink := xmldoc.FindLink(jur, "self")
	if selfLink == nil {
		return nil, fmt.Errorf("%w: jurisdiction at %s declares no self link", ErrResolution, ref)
	}

	// The declared self link is the canonical identity. When it differs from
	// the URL we fetched, follow it; the bound above stops cycles.
	if selfURL := selfLink.SelectAttrValue("href", ""); selfURL != ref {
		r.logger.Info("jurisdiction self link differs from fetched url, following",
			"fetched", ref, "self", selfURL, "depth", depth)
		return r.resolve(ctx, selfURL, depth+1)
	}

	return r.UpdateOrCreateFromXML(ctx, jur)
}

// UpdateOrCreateFromXML merges a jurisdiction element into the store: the
// record is located by the element's declared self link, or created with a
// slug derived from it. A slug already claimed by a different origin fails
// with ErrSlugConflict. Transient children (status, timestamps, self link)
// are stripped from the stored subtree; an explicit creationDate is
// preserved as the record's creation time.
func (r *Resolver) UpdateOrCreateFromXML(ctx context.Context, el *etree.Element) (*Jurisdiction, error) {
	selfLink := xmldoc.FindLink(el, "self")
	if selfLink == nil {
		return nil, fmt.Errorf("%w: jurisdiction element has no self link", ErrResolution)
	}
	originURL := selfLink.SelectAttrValue("href", "")
	if originURL == "" {
		return nil, fmt.Errorf("%w: jurisdiction self link has no href", ErrResolution)
	}

	j, err := r.store.GetByExternalURL(ctx, originURL)
	switch {
	case err == nil:
		// Known origin; merge in the fresher document below.
	case errors.Is(err, ErrNotFound):
		slug := lastPathSegment(originURL)
		existing, lookupErr := r.store.GetBySlug(ctx, slug)
		if lookupErr == nil {
			return nil, fmt.Errorf("%w: slug %q is already held by %s, cannot claim it for %s",
				ErrSlugConflict, slug, existing.FullURL(r.baseURL), originURL)
		}
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, fmt.Errorf("merge jurisdiction %s: %w", originURL, lookupErr)
		}
		j = &Jurisdiction{Slug: slug, ExternalURL: originURL}
		if created := xmldoc.ChildElement(el, "creationDate"); created != nil {
			if t, parseErr := parseTimestamp(created.Text()); parseErr == nil {
				j.Created = t
			}
		}
	default:
		return nil, fmt.Errorf("merge jurisdiction %s: %w", originURL, err)
	}

	// Own a copy of the element; the caller keeps its tree. Transients are
	// recomputed on render, so they never reach storage.
	doc := el.Copy()
	stripTransients(doc)
	if link := xmldoc.FindLink(doc, "self"); link != nil {
		doc.RemoveChild(link)
	}
	j.SetDocument(doc)

	if err := r.store.SaveJurisdiction(ctx, j); err != nil {
		return nil, fmt.Errorf("save jurisdiction %s: %w", j.Slug, err)
	}
	r.logger.Info("jurisdiction merged", "slug", j.Slug, "origin", j.ExternalURL)
	return j, nil
}

// jurisdictionElement locates the jurisdiction element in a fetched
// document: either the root itself or a direct child of a wrapping
// <open511> element.
func jurisdictionElement(root *etree.Element) *etree.Element {
	if root.Tag == "jurisdiction" {
		return root
	}
	return xmldoc.ChildElement(root, "jurisdiction")
}

// stripTransients removes status, creationDate, and lastUpdate children in
// two phases: collect targets first, then remove, so removal never walks a
// mutating child list.
func stripTransients(el *etree.Element) {
	var doomed []*etree.Element
	for _, child := range el.ChildElements() {
		switch child.Tag {
		case "status", "creationDate", "lastUpdate":
			doomed = append(doomed, child)
		}
	}
	for _, d := range doomed {
		el.RemoveChild(d)
	}
}
