package domain

import "errors"

var (
	// ErrNotFound reports a record lookup that matched nothing.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate reports a uniqueness violation: a save would create a
	// second record for an already-claimed key, typically under a concurrent
	// create race. Callers retry as a lookup-then-update.
	ErrDuplicate = errors.New("duplicate record")

	// ErrMissingJurisdiction reports an event with no jurisdiction link and
	// no default jurisdiction in the reconcile context.
	ErrMissingJurisdiction = errors.New("no jurisdiction provided")

	// ErrMissingIdentifier reports an event with neither a self link nor an
	// id attribute.
	ErrMissingIdentifier = errors.New("no identifier provided")

	// ErrResolution reports an unreachable, unparsable, or cyclic remote
	// jurisdiction resolution.
	ErrResolution = errors.New("jurisdiction resolution failed")

	// ErrSlugConflict reports two distinct origin URLs claiming the same
	// jurisdiction slug. The identities are ambiguous and are never merged
	// silently.
	ErrSlugConflict = errors.New("jurisdiction slug conflict")
)
