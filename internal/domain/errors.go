package domain

import "errors"

var (
	// ErrIuvConflict signals that a candidate IUV is already reserved for
	// the organization; the generator reacts by producing a new candidate.
	ErrIuvConflict = errors.New("iuv already reserved")

	// ErrEmptyRegistry signals that the organization registry snapshot is
	// empty; the pipeline must not validate against it.
	ErrEmptyRegistry = errors.New("organization registry is empty")
)
