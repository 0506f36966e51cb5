package tiernet

// err.go declares the failure kinds reported by topology synthesis.
// Every failure raised here is deterministic.  Rebuilding with the same
// input fails the same way, so callers report and stop rather than retry.

import "errors"

// ErrConfig marks a rejected configuration: a zero or absurd tier
// cardinality, an address family that was never reset or whose range
// collides with another family, or grid parameters that produce
// degenerate geometry.
var ErrConfig = errors.New("configuration")

// ErrExhausted marks an address family that cannot supply another
// distinct block, or a block whose mask leaves too few hosts for the
// tier population it was handed.
var ErrExhausted = errors.New("exhausted")

// ErrIndexRange marks an attempt to resolve a node or flow endpoint
// outside the recorded tier cardinalities.  Given a finalized snapshot
// this is an internal inconsistency, not a user error.
var ErrIndexRange = errors.New("index out of range")
