package xmldoc

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrValidation reports a canonical subtree that violates the stored-document
// shape. Saves abort when validation fails; nothing is committed.
var ErrValidation = errors.New("document validation failed")

// transientTags never appear in a stored subtree; they are stripped on ingest
// and recomputed on render.
var transientTags = map[string]bool{
	"status":       true,
	"creationDate": true,
	"lastUpdate":   true,
}

// ValidateEvent checks the canonical shape of a stored road event subtree:
// an <event> root carrying xml:lang, exactly one geometry child, no
// identifier attribute, no transient children, and no self or jurisdiction
// relationship links (both are synthesized on render).
func ValidateEvent(el *etree.Element) error {
	if el == nil {
		return fmt.Errorf("%w: no document", ErrValidation)
	}
	if el.Tag != "event" {
		return fmt.Errorf("%w: root element is %q, want event", ErrValidation, el.Tag)
	}
	if Lang(el) == "" {
		return fmt.Errorf("%w: event has no xml:lang attribute", ErrValidation)
	}
	if el.SelectAttrValue("id", "") != "" {
		return fmt.Errorf("%w: identifier attribute must not be stored", ErrValidation)
	}
	if n := len(ChildElements(el, "geometry")); n != 1 {
		return fmt.Errorf("%w: event needs exactly one geometry child, has %d", ErrValidation, n)
	}
	for _, rel := range []string{"self", "jurisdiction"} {
		if FindLink(el, rel) != nil {
			return fmt.Errorf("%w: %s link must not be stored", ErrValidation, rel)
		}
	}
	return validateNoTransients(el)
}

// ValidateJurisdiction checks the canonical shape of a stored jurisdiction
// subtree: a <jurisdiction> root with no transient children and no self link.
func ValidateJurisdiction(el *etree.Element) error {
	if el == nil {
		return fmt.Errorf("%w: no document", ErrValidation)
	}
	if el.Tag != "jurisdiction" {
		return fmt.Errorf("%w: root element is %q, want jurisdiction", ErrValidation, el.Tag)
	}
	if FindLink(el, "self") != nil {
		return fmt.Errorf("%w: self link must not be stored", ErrValidation)
	}
	return validateNoTransients(el)
}

func validateNoTransients(el *etree.Element) error {
	for _, child := range el.ChildElements() {
		if transientTags[child.Tag] {
			return fmt.Errorf("%w: transient element %q must not be stored", ErrValidation, child.Tag)
		}
	}
	return nil
}
