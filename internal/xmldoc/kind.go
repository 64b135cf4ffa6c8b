// Package xmldoc owns the XML side of the exchange: the catalogue of
// recognized Open511 element names, parse/serialize for the canonical
// subtree each record stores, and the shape validation that runs before
// every save.
//
// # Element catalogue
//
// Each recognized tag carries a content kind, resolved once and carried as a
// typed value rather than re-queried through loose lookups:
//
//	KindText        free text, may repeat with distinct xml:lang attributes;
//	                these are the only pruning targets during language
//	                negotiation.
//	KindValue       single machine-readable value (status, dates, severity).
//	KindStructured  container for nested elements (geometry, roads, schedule).
//	KindLink        relationship reference carried in rel/href attributes.
//	KindUnclassified  anything not in the catalogue: preserved verbatim on
//	                ingest and render, never pruned.
//
// Unknown vocabulary is deliberately not an error on the live path so
// publishers can extend their documents; strict lookup exists for validation
// tooling.
package xmldoc

import (
	"errors"
	"fmt"
)

// ErrUnknownElement reports a tag missing from the catalogue under strict lookup.
var ErrUnknownElement = errors.New("unknown element")

// Kind classifies the content model of a recognized element.
type Kind int

const (
	KindUnclassified Kind = iota
	KindText
	KindValue
	KindStructured
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindValue:
		return "value"
	case KindStructured:
		return "structured"
	case KindLink:
		return "link"
	default:
		return "unclassified"
	}
}

// catalogue maps Open511 tag names to their content kind. Tags follow the
// draft-era camelCase convention used by publishing jurisdictions.
var catalogue = map[string]Kind{
	"headline":    KindText,
	"description": KindText,
	"detour":      KindText,
	"name":        KindText,

	"status":       KindValue,
	"eventType":    KindValue,
	"severity":     KindValue,
	"creationDate": KindValue,
	"lastUpdate":   KindValue,
	"startDate":    KindValue,
	"endDate":      KindValue,
	"email":        KindValue,
	"phone":        KindValue,

	"geometry":  KindStructured,
	"roads":     KindStructured,
	"road":      KindStructured,
	"schedule":  KindStructured,
	"schedules": KindStructured,
	"areas":     KindStructured,
	"area":      KindStructured,

	"link": KindLink,
}

// KindOf returns the content kind for a tag. Tags outside the catalogue
// return KindUnclassified so foreign vocabulary is preserved but never
// treated as a language variant.
func KindOf(tag string) Kind {
	return catalogue[tag]
}

// KindOfStrict is the validating form of KindOf, failing for tags outside
// the catalogue.
func KindOfStrict(tag string) (Kind, error) {
	k, ok := catalogue[tag]
	if !ok {
		return KindUnclassified, fmt.Errorf("%w: %q", ErrUnknownElement, tag)
	}
	return k, nil
}
