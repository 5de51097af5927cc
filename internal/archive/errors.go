package archive

import (
	"errors"
	"fmt"
)

// ErrConflict marks an abandoned commit: the branch moved concurrently or an
// archive API call failed. The ref is never moved partially.
var ErrConflict = errors.New("archive conflict")

// DiffError reports stored content that could not be compared. The entry is
// treated as changed.
type DiffError struct {
	Path string
	Err  error
}

func (e *DiffError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("compare %s: %v", e.Path, e.Err)
}

func (e *DiffError) Unwrap() error { return e.Err }

func conflictf(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConflict, step, err)
}
