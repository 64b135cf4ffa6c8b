package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/geom"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// ReconcileContext supplies the resolution defaults for one incoming
// document: the jurisdiction to assume when the event names none, the
// language to stamp when the source omitted xml:lang, and the base URL for
// resolving relative self links.
type ReconcileContext struct {
	DefaultJurisdiction *Jurisdiction
	DefaultLanguage     string
	BaseURL             string
}

// Reconciler merges incoming event XML fragments into stored road events.
type Reconciler struct {
	events   RoadEventStore
	resolver *Resolver
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(events RoadEventStore, resolver *Resolver, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		events:   events,
		resolver: resolver,
		logger:   logger,
	}
}

// Reconcile merges one incoming event element into the store and returns the
// updated or newly created record. The merge is all-or-nothing: any failure
// aborts before commit, and the caller's element is never modified (the
// reconciler works on its own copy).
func (r *Reconciler) Reconcile(ctx context.Context, event *etree.Element, rc ReconcileContext) (*RoadEvent, error) {
	event = event.Copy()

	jur, err := r.determineJurisdiction(ctx, event, rc)
	if err != nil {
		return nil, err
	}

	id, externalURL, err := determineIdentity(event, rc.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w (jurisdiction %s)", err, jur.Slug)
	}

	ev, err := r.events.GetEvent(ctx, jur.Slug, id)
	switch {
	case errors.Is(err, ErrNotFound):
		ev = &RoadEvent{
			ID:               id,
			JurisdictionSlug: jur.Slug,
			ExternalURL:      externalURL,
			Active:           true,
		}
	case err != nil:
		return nil, fmt.Errorf("lookup event %s/%s: %w", jur.Slug, id, err)
	}

	if err := mergeGeometry(ev, event); err != nil {
		return nil, fmt.Errorf("event %s/%s: %w", jur.Slug, id, err)
	}

	// The identifier lives in the record's own field, never duplicated in
	// the stored subtree.
	event.RemoveAttr("id")

	applyStatus(ev, event)

	if err := mergeCreated(ev, event); err != nil {
		return nil, fmt.Errorf("event %s/%s: %w", jur.Slug, id, err)
	}

	stripTransients(event)

	if xmldoc.Lang(event) == "" {
		xmldoc.SetLang(event, rc.DefaultLanguage)
	}

	ev.SetDocument(event)
	if err := r.events.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("save event %s/%s: %w", jur.Slug, id, err)
	}

	r.logger.Info("event reconciled",
		"jurisdiction", ev.JurisdictionSlug,
		"id", ev.ID,
		"active", ev.Active,
		"geometry", ev.Geometry.Kind.String(),
	)
	return ev, nil
}

// determineJurisdiction resolves the event's jurisdiction link when one is
// present (stripping it from the element), falling back to the context
// default.
func (r *Reconciler) determineJurisdiction(ctx context.Context, event *etree.Element, rc ReconcileContext) (*Jurisdiction, error) {
	if link := xmldoc.FindLink(event, "jurisdiction"); link != nil {
		jur, err := r.resolver.Resolve(ctx, link.SelectAttrValue("href", ""))
		if err != nil {
			return nil, err
		}
		event.RemoveChild(link)
		return jur, nil
	}
	if rc.DefaultJurisdiction != nil {
		return rc.DefaultJurisdiction, nil
	}
	return nil, ErrMissingJurisdiction
}

// determineIdentity derives the public identifier and origin URL from the
// event's self link (stripped afterwards) or its id attribute.
func determineIdentity(event *etree.Element, baseURL string) (id, externalURL string, err error) {
	if link := xmldoc.FindLink(event, "self"); link != nil {
		externalURL = resolveURL(baseURL, link.SelectAttrValue("href", ""))
		id = lastPathSegment(externalURL)
		event.RemoveChild(link)
	} else {
		id = event.SelectAttrValue("id", "")
	}
	if id == "" {
		return "", "", ErrMissingIdentifier
	}
	return id, externalURL, nil
}

// mergeGeometry decodes the event's single geometry child into the record's
// canonical value, then re-encodes the stored value back into the element.
// The persisted markup is therefore always consistent with the canonical
// geometry, never a stale copy of the source's markup.
func mergeGeometry(ev *RoadEvent, event *etree.Element) error {
	geometries := xmldoc.ChildElements(event, "geometry")
	if len(geometries) != 1 {
		return fmt.Errorf("%w: expected exactly one geometry child, got %d", geom.ErrFormat, len(geometries))
	}
	wrapper := geometries[0]

	inner := wrapper.ChildElements()
	if len(inner) != 1 {
		return fmt.Errorf("%w: geometry wrapper must hold one GML element, got %d", geom.ErrFormat, len(inner))
	}

	g, err := geom.Decode(inner[0], true)
	if err != nil {
		return err
	}
	ev.Geometry = g

	event.RemoveChild(wrapper)
	regenerated := etree.NewElement("geometry")
	regenerated.AddChild(geom.Encode(g))
	event.AddChild(regenerated)
	return nil
}

// applyStatus flips the record inactive on an incoming archived status.
// Absence of a status child leaves the flag unchanged; archival is a one-way
// signal in this merge.
func applyStatus(ev *RoadEvent, event *etree.Element) {
	status := xmldoc.ChildElement(event, "status")
	if status == nil {
		return
	}
	if strings.EqualFold(strings.TrimSpace(status.Text()), "archived") {
		ev.Active = false
	}
}

// mergeCreated adopts an incoming creationDate when the record has none or
// the incoming time is earlier: earliest known creation wins, so created
// only ever moves backward.
func mergeCreated(ev *RoadEvent, event *etree.Element) error {
	created := xmldoc.ChildElement(event, "creationDate")
	if created == nil {
		return nil
	}
	t, err := parseTimestamp(created.Text())
	if err != nil {
		return fmt.Errorf("%w: bad creationDate: %v", xmldoc.ErrValidation, err)
	}
	if ev.Created.IsZero() || t.Before(ev.Created) {
		ev.Created = t
	}
	return nil
}
