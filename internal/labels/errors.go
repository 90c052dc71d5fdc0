package labels

import (
	"errors"
	"fmt"
)

// ErrAlreadyLabeled is returned by Append when the hash already has a record.
// Relabeling is rejected, never overwritten.
var ErrAlreadyLabeled = errors.New("content hash already labeled")

// InvalidRecordError reports a record that cannot be written.
type InvalidRecordError struct {
	Field string
	Value string
}

func (e InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid label record: %s %q", e.Field, e.Value)
}
