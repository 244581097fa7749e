// Package errors defines the conversion error taxonomy shared by the
// parser adapters, validator and engine, plus the JSON error envelope
// used by the read-only status API.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel kinds for conversion failures. Parsers and pipeline stages
// wrap these with %w so callers can branch with errors.Is.
var (
	// ErrMalformedFile marks a file that is present but unreadable or
	// corrupt. The file is skipped; the conversion continues with the
	// participant's remaining files.
	ErrMalformedFile = errors.New("malformed file")

	// ErrUnsupportedFormat marks a file whose version or variant is not
	// recognized by any parser. Fatal for that file only.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnresolvedIdentity marks a device identifier absent from the
	// roster. The owning file's samples are excluded from the output,
	// never silently dropped.
	ErrUnresolvedIdentity = errors.New("unresolved identity")

	// ErrStructuralMismatch marks a raw file whose self-declared layout
	// conflicts with the expected schema. Aborts the whole
	// participant/modality conversion.
	ErrStructuralMismatch = errors.New("structural mismatch")

	// ErrWriteFailure marks a failed or aborted output write. No file
	// may remain at the destination path.
	ErrWriteFailure = errors.New("write failure")
)

// FileSkippable reports whether err only disqualifies the one raw file
// it occurred on, leaving the rest of the conversion intact.
func FileSkippable(err error) bool {
	return errors.Is(err, ErrMalformedFile) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrUnresolvedIdentity)
}

// Malformed wraps err as a malformed-file failure for path.
func Malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedFile, path, err)
}

// Unsupported wraps a format recognition failure for path.
func Unsupported(path, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrUnsupportedFormat, path, detail)
}
