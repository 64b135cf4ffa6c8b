package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/open511-exchange/internal/adapter/memory"
	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/pipeline"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

func newProcessor(t *testing.T) (*pipeline.DocumentProcessor, *memory.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	jur := domain.NewJurisdiction("jur1")
	require.NoError(t, store.SaveJurisdiction(context.Background(), jur))

	baseURL := "http://geo.example/api"
	resolver := domain.NewResolver(store, nil, baseURL, logger)
	reconciler := domain.NewReconciler(store, resolver, logger)
	renderer := domain.NewRenderer(baseURL)

	defaults := domain.ReconcileContext{
		DefaultJurisdiction: jur,
		DefaultLanguage:     "en",
		BaseURL:             baseURL,
	}
	return pipeline.NewDocumentProcessor(reconciler, renderer, store, defaults, logger), store
}

func TestProcess_RendersReconciledEvent(t *testing.T) {
	proc, store := newProcessor(t)

	raw := pipeline.RawDocument{Value: []byte(
		`<event id="42"><headline>Closure</headline><geometry><Point><pos>1 2</pos></Point></geometry></event>`)}

	out, err := proc.Process(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "jur1", out.JurisdictionSlug)
	assert.Equal(t, "42", out.EventID)
	assert.Equal(t, "active", out.Status)

	el, err := xmldoc.Parse(string(out.Body))
	require.NoError(t, err)
	assert.Equal(t, "http://geo.example/api/jurisdictions/jur1/events/42",
		xmldoc.FindLink(el, "self").SelectAttrValue("href", ""))
	assert.Equal(t, "active", xmldoc.ChildElement(el, "status").Text())
	assert.NotNil(t, xmldoc.ChildElement(el, "creationDate"))

	_, err = store.GetEvent(context.Background(), "jur1", "42")
	assert.NoError(t, err)
}

func TestProcess_ArchivedStatusPropagates(t *testing.T) {
	proc, _ := newProcessor(t)

	raw := pipeline.RawDocument{Value: []byte(
		`<event id="9"><status>archived</status><geometry><Point><pos>1 2</pos></Point></geometry></event>`)}

	out, err := proc.Process(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "archived", out.Status)
	assert.True(t, strings.Contains(string(out.Body), "archived"))
}

func TestProcess_RejectsNonEventRoot(t *testing.T) {
	proc, _ := newProcessor(t)

	_, err := proc.Process(context.Background(), pipeline.RawDocument{Value: []byte(`<jurisdiction/>`)})
	assert.ErrorIs(t, err, xmldoc.ErrMalformed)
}

func TestProcess_RejectsMalformedXML(t *testing.T) {
	proc, _ := newProcessor(t)

	_, err := proc.Process(context.Background(), pipeline.RawDocument{Value: []byte(`<event`)})
	assert.ErrorIs(t, err, xmldoc.ErrMalformed)
}
