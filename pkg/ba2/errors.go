package ba2

import "errors"

var (
	// ErrMalformedRecord is returned when a record header or chunk table is
	// truncated or structurally invalid.
	ErrMalformedRecord = errors.New("ba2: malformed record")

	// ErrUnsupportedFormat is returned when the record's pixel format has no
	// entry in the format catalog.
	ErrUnsupportedFormat = errors.New("ba2: unsupported pixel format")

	// ErrCorruptData is returned when a chunk does not decompress to its
	// declared size or its compressed stream is invalid.
	ErrCorruptData = errors.New("ba2: corrupt chunk data")

	// ErrCancelled is returned when the extraction context is done before
	// all chunks were written.
	ErrCancelled = errors.New("ba2: extraction cancelled")

	errNotSeekable = errors.New("ba2: size patch requires a seekable destination")
)
