package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the snapshot file does not exist.
	ErrNotFound = errors.New("snapshot file not found")
	// ErrInvalidDocument is returned when the document does not have the
	// expected shape.
	ErrInvalidDocument = errors.New("invalid snapshot document")
	// ErrInvalidField is returned for a regex field other than name, role or ref.
	ErrInvalidField = errors.New("invalid field")
	// ErrInvalidPattern is returned when a regular expression does not compile.
	ErrInvalidPattern = errors.New("invalid regular expression")
)

// LoadError describes a failure to load a snapshot. It is fatal to the
// session: no partial tree is ever returned alongside it.
type LoadError struct {
	Path string
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("load snapshot %s (line %d): %v", e.Path, e.Line, e.Err)
	case e.Path != "":
		return fmt.Sprintf("load snapshot %s: %v", e.Path, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("load snapshot (line %d): %v", e.Line, e.Err)
	default:
		return fmt.Sprintf("load snapshot: %v", e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *LoadError) Unwrap() error {
	return e.Err
}

func invalidf(line int, format string, args ...interface{}) *LoadError {
	return &LoadError{
		Line: line,
		Err:  fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...)),
	}
}
