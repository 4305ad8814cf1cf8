package compaction

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", Err*) at call sites
// so callers can use errors.Is to distinguish failure classes.
var (
	// ErrIO marks a filesystem or cache failure while reading, writing,
	// creating, or finalizing a file.
	ErrIO = errors.New("compaction: io error")

	// ErrFormat marks a columnar decode failure, a malformed batch, or a
	// deletion-vector blob that could not be parsed.
	ErrFormat = errors.New("compaction: format error")

	// ErrCapacityExhausted marks a table-auto-increment id range too small
	// for the number of output files a compaction needs to produce.
	ErrCapacityExhausted = errors.New("compaction: capacity exhausted")

	// ErrOverflow marks a batch-id counter that exceeded its partition's
	// range.
	ErrOverflow = errors.New("compaction: counter overflow")

	// ErrInvariant marks an internal contract violation: a duplicate remap
	// key, an empty output file, file ids out of order. Always a bug in
	// this package or its caller, never a transient condition.
	ErrInvariant = errors.New("compaction: invariant violated")
)
