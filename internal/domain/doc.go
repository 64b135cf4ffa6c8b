// Package domain implements the Open511 road-event reconciliation core.
//
// # Data source
//
// Road events originate from jurisdiction feeds published in the Open511 XML
// exchange format: government agencies expose road closures, construction,
// and incidents as <event> documents scoped to a jurisdiction, with GML
// geometry and multilingual free-text fields. The upstream collector publishes
// each incoming event fragment verbatim to the source Kafka topic; this
// package turns those partially-trusted fragments into canonical stored
// records and back into client-facing documents.
//
// # Identity conventions
//
// A jurisdiction is identified by a URL-safe slug, derived from the trailing
// path segment of its self link (e.g. ".../jurisdictions/ville.montreal.qc.ca"
// → "ville.montreal.qc.ca"). A jurisdiction with an empty external URL is
// authoritative on this instance.
//
// A road event is identified by the pair (public identifier, jurisdiction).
// The public identifier comes from the trailing path segment of the event's
// self link, or from an explicit id attribute; an event created without
// either keeps the stringified internal numeric identity assigned by the
// store. The pair is unique: a losing concurrent create surfaces ErrDuplicate
// from the store rather than corrupting state.
//
// # Merge conventions
//
// Reconciliation is all-or-nothing per event. Incoming geometry is decoded to
// the canonical 2D value and re-encoded into the stored subtree, so persisted
// markup never drifts from the canonical geometry. An incoming archived
// status flips the record inactive; the merge defines no path back to active
// (one-way archival, matching upstream publisher behavior). Creation
// timestamps merge as earliest-wins; created never moves forward in time.
// Status, creationDate, and lastUpdate children are transient: stripped on
// ingest, recomputed on render.
//
// # Language conventions
//
// Every stored subtree carries an xml:lang attribute, defaulted from the
// reconcile context when the source omitted it. Free-text fields may repeat
// with distinct xml:lang values; rendering with a language preference prunes
// each group of variants to the single best match, degrading to the only
// available variant rather than dropping a field entirely.
package domain
