package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// lastPathSegment returns the trailing non-empty path segment of a URL,
// which is how Open511 identifiers and jurisdiction slugs are derived from
// self links.
func lastPathSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// resolveURL resolves ref against base, returning ref unchanged when it is
// already absolute or when base is unusable.
func resolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// timestampLayouts are the accepted forms for creationDate/lastUpdate text,
// most specific first. Publishers are inconsistent about zone designators.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", text)
}
