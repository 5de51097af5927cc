package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// EntryKind selects how an entry is compared with the stored file
type EntryKind int

const (
	// KindBinary compares raw bytes
	KindBinary EntryKind = iota
	// KindJSON compares only the entry's CompareFields
	KindJSON
)

// Entry is a path/content pair destined for the archive
type Entry struct {
	Path    string
	Content []byte
	Kind    EntryKind
	// CompareFields lists the top-level JSON keys that decide whether a
	// KindJSON entry changed. Formatting and other keys are ignored. An
	// empty list compares the whole document structurally.
	CompareFields []string
	// PriorSHA is the sha of the stored file, empty when none exists
	PriorSHA string
}

// Changed reports whether e differs from the stored content. A DiffError
// means the stored content could not be compared and the entry counts as
// changed.
func (e Entry) Changed(stored []byte) (bool, error) {
	if e.Kind != KindJSON {
		return !bytes.Equal(e.Content, stored), nil
	}

	var want, have map[string]any
	if err := json.Unmarshal(e.Content, &want); err != nil {
		return true, &DiffError{Path: e.Path, Err: fmt.Errorf("new content: %w", err)}
	}
	if err := json.Unmarshal(stored, &have); err != nil {
		return true, &DiffError{Path: e.Path, Err: fmt.Errorf("stored content: %w", err)}
	}

	if len(e.CompareFields) == 0 {
		return !reflect.DeepEqual(want, have), nil
	}
	for _, field := range e.CompareFields {
		if !reflect.DeepEqual(want[field], have[field]) {
			return true, nil
		}
	}
	return false, nil
}
