package domain_test

import (
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

func childTags(el *etree.Element) []string {
	var tags []string
	for _, child := range el.ChildElements() {
		tags = append(tags, child.Tag)
	}
	return tags
}

func TestRenderEvent(t *testing.T) {
	ev := &domain.RoadEvent{
		ID:               "42",
		JurisdictionSlug: "jur1",
		Active:           true,
		Created:          time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC),
		Updated:          time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, ev.UnmarshalDocument(
		`<event xml:lang="en"><headline>Closure</headline><geometry><Point><pos>1 2</pos></Point></geometry></event>`))

	jur := domain.NewJurisdiction("jur1")
	renderer := domain.NewRenderer(testBaseURL)

	el := renderer.RenderEvent(ev, jur, nil)

	assert.Equal(t,
		[]string{"link", "link", "status", "headline", "geometry", "creationDate", "lastUpdate"},
		childTags(el))

	self := xmldoc.FindLink(el, "self")
	require.NotNil(t, self)
	assert.Equal(t, testBaseURL+"/jurisdictions/jur1/events/42", self.SelectAttrValue("href", ""))

	jurLink := xmldoc.FindLink(el, "jurisdiction")
	require.NotNil(t, jurLink)
	assert.Equal(t, testBaseURL+"/jurisdictions/jur1", jurLink.SelectAttrValue("href", ""))

	assert.Equal(t, "active", xmldoc.ChildElement(el, "status").Text())
	assert.Equal(t, "2025-01-15T08:00:00Z", xmldoc.ChildElement(el, "creationDate").Text())
	assert.Equal(t, "2025-02-01T09:30:00Z", xmldoc.ChildElement(el, "lastUpdate").Text())
}

func TestRenderEvent_Archived(t *testing.T) {
	ev := &domain.RoadEvent{ID: "9", JurisdictionSlug: "jur1", Active: false}
	require.NoError(t, ev.UnmarshalDocument(`<event xml:lang="en"><geometry><Point><pos>1 2</pos></Point></geometry></event>`))

	el := domain.NewRenderer(testBaseURL).RenderEvent(ev, domain.NewJurisdiction("jur1"), nil)
	assert.Equal(t, "archived", xmldoc.ChildElement(el, "status").Text())
}

func TestRenderEvent_ExternalOriginLinks(t *testing.T) {
	ev := &domain.RoadEvent{
		ID:               "7",
		JurisdictionSlug: "remote",
		ExternalURL:      "http://other.example/api/jurisdictions/remote/events/7",
		Active:           true,
	}
	require.NoError(t, ev.UnmarshalDocument(`<event xml:lang="en"><geometry><Point><pos>1 2</pos></Point></geometry></event>`))

	jur := domain.NewJurisdiction("remote")
	jur.ExternalURL = "http://other.example/api/jurisdictions/remote"

	el := domain.NewRenderer(testBaseURL).RenderEvent(ev, jur, nil)
	assert.Equal(t, ev.ExternalURL, xmldoc.FindLink(el, "self").SelectAttrValue("href", ""))
	assert.Equal(t, jur.ExternalURL, xmldoc.FindLink(el, "jurisdiction").SelectAttrValue("href", ""))
}

func TestRenderEvent_PrunesLanguages(t *testing.T) {
	ev := &domain.RoadEvent{ID: "1", JurisdictionSlug: "jur1", Active: true}
	require.NoError(t, ev.UnmarshalDocument(`<event xml:lang="en">
		<headline>Bridge closed</headline>
		<headline xml:lang="fr">Pont fermé</headline>
		<geometry><Point><pos>1 2</pos></Point></geometry>
	</event>`))

	el := domain.NewRenderer(testBaseURL).RenderEvent(ev, domain.NewJurisdiction("jur1"), domain.ParseAcceptLanguage("fr"))

	headlines := xmldoc.ChildElements(el, "headline")
	require.Len(t, headlines, 1)
	assert.Equal(t, "Pont fermé", headlines[0].Text())

	// The stored record keeps both variants.
	assert.Len(t, xmldoc.ChildElements(ev.Document(), "headline"), 2)
}

func TestRenderEvent_DoesNotMutateRecord(t *testing.T) {
	ev := &domain.RoadEvent{ID: "1", JurisdictionSlug: "jur1", Active: true}
	require.NoError(t, ev.UnmarshalDocument(`<event xml:lang="en"><geometry><Point><pos>1 2</pos></Point></geometry></event>`))

	renderer := domain.NewRenderer(testBaseURL)
	renderer.RenderEvent(ev, domain.NewJurisdiction("jur1"), nil)

	doc := ev.Document()
	assert.Nil(t, xmldoc.ChildElement(doc, "status"))
	assert.Nil(t, xmldoc.FindLink(doc, "self"))
	assert.Nil(t, xmldoc.ChildElement(doc, "creationDate"))
}

func TestRenderJurisdiction(t *testing.T) {
	jur := domain.NewJurisdiction("jur1")
	require.NoError(t, jur.UnmarshalDocument(`<jurisdiction xml:lang="en"><name>Jur One</name></jurisdiction>`))
	jur.Created = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	jur.Updated = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	el := domain.NewRenderer(testBaseURL).RenderJurisdiction(jur, nil)

	assert.Equal(t, []string{"link", "name", "creationDate", "lastUpdate"}, childTags(el))
	assert.Equal(t, testBaseURL+"/jurisdictions/jur1", xmldoc.FindLink(el, "self").SelectAttrValue("href", ""))
	assert.Equal(t, "2024-06-01T00:00:00Z", xmldoc.ChildElement(el, "creationDate").Text())
}
