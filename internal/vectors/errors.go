package vectors

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorsNotFound indicates the expected vector file is still missing
	// after download and extraction.
	ErrVectorsNotFound = errors.New("no vectors found")
	// ErrDimensionMismatch indicates rows of a text vector file disagree on dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnsafeArchivePath indicates an archive entry would extract outside the cache dir.
	ErrUnsafeArchivePath = errors.New("archive entry escapes cache dir")
)

// UnknownNameError is returned by the registry for names it does not know.
type UnknownNameError struct {
	Name string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown vectors %q", e.Name)
}
