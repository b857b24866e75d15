// Copyright 2020 Daniel Erat <dan@erat.org>.
// All rights reserved.

package survey

import "errors"

// Errors returned (possibly wrapped) throughout the pipeline.
// Callers should test for them with errors.Is.
var (
	// ErrConfiguration indicates an unusable setting, e.g. an unknown country code.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates that no rows matched a lookup.
	ErrNotFound = errors.New("not found")
	// ErrSchema indicates that a table lacks columns needed for an operation.
	ErrSchema = errors.New("schema error")
)
