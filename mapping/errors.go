package mapping

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/convert"
)

var (
	// ErrNoRootNode is returned when a row holds neither a node with a label
	// of the requested hierarchy nor a single map to read from.
	ErrNoRootNode = errors.New("no root node or map in row")
	// ErrAmbiguousRootNode is returned when more than one unseen node of the
	// requested hierarchy is in the row.
	ErrAmbiguousRootNode = errors.New("more than one candidate root node in row")
	// ErrCyclicMappingDependency is returned when an entity is requested again
	// while it is still being constructed.
	ErrCyclicMappingDependency = errors.New("cyclic mapping dependency")
	// ErrConversion is wrapped by property conversion failures.
	ErrConversion = convert.ErrConversion
)

var snapshot = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                5,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// MappingError reports a failure to read one row. Row is a textual snapshot
// of the row values.
type MappingError struct {
	Entity   string
	Identity string
	Row      string
	Cause    error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("mapping %s", e.Entity)
	if e.Identity != "" {
		msg += fmt.Sprintf(" (%s)", e.Identity)
	}
	return msg + ": " + e.Cause.Error()
}

func (e *MappingError) Unwrap() error { return e.Cause }

func newMappingError(entity, identity string, row map[string]any, cause error) *MappingError {
	var me *MappingError
	if errors.As(cause, &me) {
		return me
	}
	return &MappingError{
		Entity:   entity,
		Identity: identity,
		Row:      snapshot.Sdump(row),
		Cause:    cause,
	}
}
