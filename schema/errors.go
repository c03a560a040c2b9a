package schema

import (
	"errors"
	"fmt"
)

// Sentinel metadata errors. They are always wrapped in a *MetadataError that
// names the offending entity.
var (
	ErrMissingID              = errors.New("missing id property")
	ErrDuplicateProperty      = errors.New("duplicate graph property")
	ErrInvalidIDConfiguration = errors.New("invalid id configuration")
	ErrMultipleDynamicLabels  = errors.New("multiple dynamic labels properties")
	ErrInvalidProperty        = errors.New("invalid property")
	ErrInvalidRelationship    = errors.New("invalid relationship")
	ErrUnknownEntity          = errors.New("unknown entity")
	ErrInvalidDefinition      = errors.New("invalid definition")
)

// MetadataError is returned for every problem found while resolving node
// definitions. Metadata errors are fatal: a Context is never returned
// alongside one.
type MetadataError struct {
	Entity string
	Reason string
	Err    error
}

func (e *MetadataError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: entity %s: %s", e.Entity, e.Reason)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

func newMetadataError(entity string, err error, format string, args ...any) *MetadataError {
	return &MetadataError{
		Entity: entity,
		Reason: fmt.Sprintf(format, args...),
		Err:    err,
	}
}
