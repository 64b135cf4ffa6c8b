package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/open511-exchange/internal/domain"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// DocumentProcessor is the reconcile-and-render stage: it parses an incoming
// event fragment, merges it into the store, and renders the canonical
// document for publication.
type DocumentProcessor struct {
	reconciler    *domain.Reconciler
	renderer      *domain.Renderer
	jurisdictions domain.JurisdictionStore
	defaults      domain.ReconcileContext
	logger        *slog.Logger
}

// NewDocumentProcessor creates the processor stage. defaults supplies the
// fallback jurisdiction and language applied to fragments that name none.
func NewDocumentProcessor(
	reconciler *domain.Reconciler,
	renderer *domain.Renderer,
	jurisdictions domain.JurisdictionStore,
	defaults domain.ReconcileContext,
	logger *slog.Logger,
) *DocumentProcessor {
	return &DocumentProcessor{
		reconciler:    reconciler,
		renderer:      renderer,
		jurisdictions: jurisdictions,
		defaults:      defaults,
		logger:        logger,
	}
}

// Process merges one raw event fragment and returns the rendered result.
func (p *DocumentProcessor) Process(ctx context.Context, raw RawDocument) (OutputDocument, error) {
	el, err := xmldoc.Parse(string(raw.Value))
	if err != nil {
		return OutputDocument{}, err
	}
	if el.Tag != "event" {
		return OutputDocument{}, fmt.Errorf("%w: expected event element, got %s", xmldoc.ErrMalformed, el.Tag)
	}

	ev, err := p.reconciler.Reconcile(ctx, el, p.defaults)
	if err != nil {
		return OutputDocument{}, err
	}

	jur, err := p.lookupJurisdiction(ctx, ev.JurisdictionSlug)
	if err != nil {
		return OutputDocument{}, err
	}

	rendered := p.renderer.RenderEvent(ev, jur, nil)
	body, err := xmldoc.Serialize(rendered)
	if err != nil {
		return OutputDocument{}, fmt.Errorf("render event %s/%s: %w", ev.JurisdictionSlug, ev.ID, err)
	}

	status := "active"
	if !ev.Active {
		status = "archived"
	}
	return OutputDocument{
		JurisdictionSlug: ev.JurisdictionSlug,
		EventID:          ev.ID,
		Status:           status,
		Body:             []byte(body),
	}, nil
}

func (p *DocumentProcessor) lookupJurisdiction(ctx context.Context, slug string) (*domain.Jurisdiction, error) {
	if p.defaults.DefaultJurisdiction != nil && p.defaults.DefaultJurisdiction.Slug == slug {
		return p.defaults.DefaultJurisdiction, nil
	}
	jur, err := p.jurisdictions.GetBySlug(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("event jurisdiction %q vanished after merge: %w", slug, err)
	}
	return jur, err
}
