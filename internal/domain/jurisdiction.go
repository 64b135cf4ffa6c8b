package domain

import (
	"time"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// Jurisdiction is a publishing authority for road events. A jurisdiction
// with an empty ExternalURL is local to this instance; otherwise it mirrors
// a remote feed and ExternalURL is its canonical origin.
type Jurisdiction struct {
	Slug        string
	ExternalURL string
	Created     time.Time
	Updated     time.Time

	// doc is the canonical XML subtree, exclusively owned by this record.
	// Accessors hand out deep copies only.
	doc *etree.Element
}

// NewJurisdiction creates a local jurisdiction shell with an empty document.
func NewJurisdiction(slug string) *Jurisdiction {
	j := &Jurisdiction{Slug: slug}
	j.doc = etree.NewElement("jurisdiction")
	return j
}

// SetDocument takes ownership of el as the canonical subtree. Callers must
// not retain references into el afterwards.
func (j *Jurisdiction) SetDocument(el *etree.Element) {
	j.doc = el
}

// Document returns a deep copy of the canonical subtree, never the live tree.
func (j *Jurisdiction) Document() *etree.Element {
	if j.doc == nil {
		return etree.NewElement("jurisdiction")
	}
	return j.doc.Copy()
}

// MarshalDocument validates and serializes the canonical subtree. Store
// adapters call it on every save; a validation failure aborts the save.
func (j *Jurisdiction) MarshalDocument() (string, error) {
	if err := xmldoc.ValidateJurisdiction(j.doc); err != nil {
		return "", err
	}
	return xmldoc.Serialize(j.doc)
}

// UnmarshalDocument parses raw markup into the canonical subtree. Store
// adapters call it when loading a persisted record.
func (j *Jurisdiction) UnmarshalDocument(raw string) error {
	el, err := xmldoc.Parse(raw)
	if err != nil {
		return err
	}
	j.doc = el
	return nil
}

// FullURL returns the jurisdiction's canonical URL: its external origin when
// it mirrors a remote feed, otherwise its URL on this instance.
func (j *Jurisdiction) FullURL(baseURL string) string {
	if j.ExternalURL != "" {
		return j.ExternalURL
	}
	return baseURL + "/jurisdictions/" + j.Slug
}

// Clone returns an independent deep copy of the record.
func (j *Jurisdiction) Clone() *Jurisdiction {
	out := *j
	if j.doc != nil {
		out.doc = j.doc.Copy()
	}
	return &out
}
