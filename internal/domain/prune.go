package domain

import (
	"github.com/beevik/etree"
	"golang.org/x/text/language"

	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// ParseAcceptLanguage turns a request-style Accept-Language string into an
// ordered preference list. Returns nil for an empty or unparsable header,
// which callers treat as "no pruning".
func ParseAcceptLanguage(header string) []language.Tag {
	if header == "" {
		return nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	return tags
}

// PruneLanguages walks the tree depth-first and, for every group of sibling
// free-text elements sharing a tag, removes all but the variant that best
// matches the preference list. A field's sole variant survives even when it
// matches nothing: a field never ends up empty when at least one variant
// existed. Removal is two-phase per parent (mark during grouping, remove
// after the subtree is done) so traversal never walks a mutating child list.
func PruneLanguages(root *etree.Element, prefs []language.Tag) {
	if root == nil || len(prefs) == 0 {
		return
	}
	pruneLevel(root, prefs, xmldoc.Lang(root))
}

func pruneLevel(parent *etree.Element, prefs []language.Tag, inherited string) {
	if lang := xmldoc.Lang(parent); lang != "" {
		inherited = lang
	}

	// Containers first: recursion order is only a traversal detail, since
	// variant groups are siblings, never ancestors.
	for _, child := range parent.ChildElements() {
		if len(child.ChildElements()) > 0 {
			pruneLevel(child, prefs, inherited)
		}
	}

	groups := make(map[string][]*etree.Element)
	var order []string
	for _, child := range parent.ChildElements() {
		if len(child.ChildElements()) > 0 {
			continue
		}
		if xmldoc.KindOf(child.Tag) != xmldoc.KindText {
			continue
		}
		if _, seen := groups[child.Tag]; !seen {
			order = append(order, child.Tag)
		}
		groups[child.Tag] = append(groups[child.Tag], child)
	}

	var rejects []*etree.Element
	for _, tag := range order {
		variants := groups[tag]
		if len(variants) < 2 {
			continue
		}
		best := bestVariant(variants, prefs, inherited)
		for _, v := range variants {
			if v != best {
				rejects = append(rejects, v)
			}
		}
	}
	for _, reject := range rejects {
		parent.RemoveChild(reject)
	}
}

// bestVariant selects the variant whose effective language best matches the
// preference list: exact tag beats primary-subtag match beats fallback. When
// nothing matches at all, the first variant stands in as the default.
func bestVariant(variants []*etree.Element, prefs []language.Tag, inherited string) *etree.Element {
	available := make([]language.Tag, len(variants))
	for i, v := range variants {
		lang := xmldoc.Lang(v)
		if lang == "" {
			lang = inherited
		}
		tag, err := language.Parse(lang)
		if err != nil {
			tag = language.Und
		}
		available[i] = tag
	}

	matcher := language.NewMatcher(available)
	_, index, confidence := matcher.Match(prefs...)
	if confidence == language.No {
		return variants[0]
	}
	return variants[index]
}
