package domain

import (
	"time"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/geom"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// RoadEvent is one reconciled road event. The (ID, JurisdictionSlug) pair is
// unique; InternalID is assigned once by the store and never changes, and
// becomes the public ID when the source supplied none.
type RoadEvent struct {
	InternalID       int64
	ID               string
	JurisdictionSlug string
	ExternalURL      string
	Active           bool
	Geometry         geom.Geometry
	Created          time.Time
	Updated          time.Time

	// doc is the canonical XML subtree, exclusively owned by this record.
	doc *etree.Element
}

// SetDocument takes ownership of el as the canonical subtree.
func (e *RoadEvent) SetDocument(el *etree.Element) {
	e.doc = el
}

// Document returns a deep copy of the canonical subtree, never the live tree.
func (e *RoadEvent) Document() *etree.Element {
	if e.doc == nil {
		return etree.NewElement("event")
	}
	return e.doc.Copy()
}

// MarshalDocument validates and serializes the canonical subtree. Store
// adapters call it on every save; a validation failure aborts the save.
func (e *RoadEvent) MarshalDocument() (string, error) {
	if err := xmldoc.ValidateEvent(e.doc); err != nil {
		return "", err
	}
	return xmldoc.Serialize(e.doc)
}

// UnmarshalDocument parses raw markup into the canonical subtree.
func (e *RoadEvent) UnmarshalDocument(raw string) error {
	el, err := xmldoc.Parse(raw)
	if err != nil {
		return err
	}
	e.doc = el
	return nil
}

// FullURL returns the event's canonical URL: its external origin when it was
// imported from a remote feed, otherwise its URL on this instance.
func (e *RoadEvent) FullURL(baseURL string) string {
	if e.ExternalURL != "" {
		return e.ExternalURL
	}
	return baseURL + "/jurisdictions/" + e.JurisdictionSlug + "/events/" + e.ID
}

// Clone returns an independent deep copy of the record.
func (e *RoadEvent) Clone() *RoadEvent {
	out := *e
	if e.doc != nil {
		out.doc = e.doc.Copy()
	}
	return &out
}
