package domain

import (
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/language"

	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// Renderer builds client-facing documents from stored records: a deep copy
// of the canonical subtree decorated with computed links, status, and
// timestamps, optionally pruned to one language per field. Rendering never
// mutates stored state and is safe to run concurrently.
type Renderer struct {
	baseURL string
}

// NewRenderer creates a Renderer. baseURL is this instance's URL prefix for
// synthesized self links.
func NewRenderer(baseURL string) *Renderer {
	return &Renderer{baseURL: baseURL}
}

// RenderEvent produces the client-facing element for a road event. jur must
// be the event's owning jurisdiction. A non-empty preference list prunes
// each multilingual field to its best-matching variant.
func (r *Renderer) RenderEvent(ev *RoadEvent, jur *Jurisdiction, prefs []language.Tag) *etree.Element {
	el := ev.Document()

	status := "active"
	if !ev.Active {
		status = "archived"
	}
	statusEl := etree.NewElement("status")
	statusEl.SetText(status)
	el.InsertChildAt(0, statusEl)

	el.InsertChildAt(0, xmldoc.NewLink("jurisdiction", jur.FullURL(r.baseURL)))
	el.InsertChildAt(0, xmldoc.NewLink("self", ev.FullURL(r.baseURL)))

	appendTimestamps(el, ev.Created, ev.Updated)

	if len(prefs) > 0 {
		PruneLanguages(el, prefs)
	}
	return el
}

// RenderJurisdiction produces the client-facing element for a jurisdiction:
// self link first, stored children next, timestamps last.
func (r *Renderer) RenderJurisdiction(jur *Jurisdiction, prefs []language.Tag) *etree.Element {
	el := jur.Document()

	el.InsertChildAt(0, xmldoc.NewLink("self", jur.FullURL(r.baseURL)))

	appendTimestamps(el, jur.Created, jur.Updated)

	if len(prefs) > 0 {
		PruneLanguages(el, prefs)
	}
	return el
}

func appendTimestamps(el *etree.Element, created, updated time.Time) {
	c := el.CreateElement("creationDate")
	c.SetText(created.UTC().Format(time.RFC3339))
	u := el.CreateElement("lastUpdate")
	u.SetText(updated.UTC().Format(time.RFC3339))
}
