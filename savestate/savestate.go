// Package savestate tracks what a single save operation has already written,
// so that every entity and every relationship of a possibly cyclic object
// graph is processed at most once.
//
// A Machine is created per save and may be shared by goroutines saving
// different branches of the same graph.
package savestate

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// ErrInvariant is returned when the machine is used in a way that would
// break its bookkeeping.
var ErrInvariant = errors.New("save state invariant violated")

// ProcessState says how much of a relationship of one source entity has been
// written.
type ProcessState int

const (
	ProcessedNone ProcessState = iota
	ProcessedAllRelationships
	ProcessedAllValues
	ProcessedBoth
)

func (s ProcessState) String() string {
	switch s {
	case ProcessedNone:
		return "PROCESSED_NONE"
	case ProcessedAllRelationships:
		return "PROCESSED_ALL_RELATIONSHIPS"
	case ProcessedAllValues:
		return "PROCESSED_ALL_VALUES"
	case ProcessedBoth:
		return "PROCESSED_BOTH"
	}
	return fmt.Sprintf("ProcessState(%d)", int(s))
}

type relationshipKey struct {
	source string
	rel    *schema.RelationshipDescriptor
}

// edgeKey identifies a written edge independently of the side it was
// written from.
type edgeKey struct {
	start, end, typ string
}

type processed struct {
	value      reflect.Value
	entity     *schema.EntityDescriptor
	internalID any
}

type pendingUpdate struct {
	assign func(id any) error
}

// Machine is the processing state of one save.
type Machine struct {
	mu sync.RWMutex

	schema        *schema.Context
	relationships map[relationshipKey]struct{}
	objects       map[any]*processed
	aliases       map[any]any
	edges         map[edgeKey]struct{}
	pending       map[string][]pendingUpdate
}

// New creates the state of a save starting at root. internalID may be nil
// when root has not been written yet.
func New(ctx *schema.Context, root any, internalID any) *Machine {
	m := &Machine{
		schema:        ctx,
		relationships: map[relationshipKey]struct{}{},
		objects:       map[any]*processed{},
		aliases:       map[any]any{},
		edges:         map[edgeKey]struct{}{},
		pending:       map[string][]pendingUpdate{},
	}
	if root != nil {
		m.objects[root] = m.newProcessed(root, internalID)
	}
	return m
}

func (m *Machine) newProcessed(value any, internalID any) *processed {
	p := &processed{value: reflect.ValueOf(value), internalID: internalID}
	if m.schema != nil {
		p.entity, _ = m.schema.EntityOf(value)
	}
	return p
}

// StateOf reports whether rel of the source entity and all of values have
// been processed. The state of a key never goes back.
func (m *Machine) StateOf(sourceID string, rel *schema.RelationshipDescriptor, values []any) ProcessState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, relDone := m.relationships[relationshipKey{sourceID, rel}]
	valuesDone := values != nil && m.processedAllLocked(values)
	switch {
	case relDone && valuesDone:
		return ProcessedBoth
	case relDone:
		return ProcessedAllRelationships
	case valuesDone:
		return ProcessedAllValues
	}
	return ProcessedNone
}

func (m *Machine) processedAllLocked(values []any) bool {
	for _, v := range values {
		if !m.knownLocked(v) {
			return false
		}
	}
	return true
}

func (m *Machine) knownLocked(v any) bool {
	if v == nil || !reflect.TypeOf(v).Comparable() {
		return false
	}
	if _, ok := m.objects[v]; ok {
		return true
	}
	_, ok := m.aliases[v]
	return ok
}

// MarkRelationshipAsProcessed records that rel of the source entity has been
// written. A nil rel is ignored.
func (m *Machine) MarkRelationshipAsProcessed(sourceID string, rel *schema.RelationshipDescriptor) {
	if rel == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships[relationshipKey{sourceID, rel}] = struct{}{}
}

// HasProcessedRelationship reports whether rel of the source entity has been
// written.
func (m *Machine) HasProcessedRelationship(sourceID string, rel *schema.RelationshipDescriptor) bool {
	if rel == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relationships[relationshipKey{sourceID, rel}]
	return ok
}

// MarkValueAsProcessed records that value, a pointer to an entity, has been
// written and got internalID.
func (m *Machine) MarkValueAsProcessed(value any, internalID any) error {
	if err := checkPointer(value); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.objects[value]; ok {
		if internalID != nil {
			p.internalID = internalID
		}
		return nil
	}
	m.objects[value] = m.newProcessed(value, internalID)
	return nil
}

// MarkValueAsProcessedAs records that value was written as replacement,
// typically a new instance of an immutable entity.
func (m *Machine) MarkValueAsProcessedAs(value, replacement any) error {
	if err := checkPointer(value); err != nil {
		return err
	}
	if err := checkPointer(replacement); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == replacement {
		return nil
	}
	m.aliases[value] = replacement
	return nil
}

// HasProcessedValue reports whether value, or an instance of the same entity
// with the same id, has been written. A logical duplicate is aliased to the
// instance that was written.
func (m *Machine) HasProcessedValue(value any) bool {
	if value == nil {
		return false
	}
	m.mu.RLock()
	if m.knownLocked(value) {
		m.mu.RUnlock()
		return true
	}
	dup := m.duplicateLocked(value)
	m.mu.RUnlock()
	if dup == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.knownLocked(value) {
		return true
	}
	if dup = m.duplicateLocked(value); dup == nil {
		return false
	}
	m.aliases[value] = dup
	return true
}

// duplicateLocked finds a processed instance of the same entity type with
// the same id as value.
func (m *Machine) duplicateLocked(value any) any {
	if m.schema == nil {
		return nil
	}
	e, ok := m.schema.EntityOf(value)
	if !ok {
		return nil
	}
	id, ok := e.IDValue(reflect.ValueOf(value))
	if !ok {
		return nil
	}
	for key, p := range m.objects {
		if p.entity != e {
			continue
		}
		if other, ok := e.IDValue(p.value); ok && other == id {
			return key
		}
	}
	return nil
}

// InternalID returns the id the database assigned to value, looking through
// aliases.
func (m *Machine) InternalID(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	if !reflect.TypeOf(value).Comparable() {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.objects[value]; ok && p.internalID != nil {
		return p.internalID, true
	}
	if alias, ok := m.aliases[value]; ok {
		if p, ok := m.objects[alias]; ok && p.internalID != nil {
			return p.internalID, true
		}
	}
	return nil, false
}

// ProcessedAs returns the instance value was written as, or value itself.
func (m *Machine) ProcessedAs(value any) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if alias, ok := m.aliases[value]; ok {
		return alias
	}
	return value
}

func canonicalEdge(fromID, toID string, typ string, rel *schema.RelationshipDescriptor) edgeKey {
	if rel != nil && rel.IsIncoming() {
		return edgeKey{start: toID, end: fromID, typ: typ}
	}
	return edgeKey{start: fromID, end: toID, typ: typ}
}

// MarkEdgeAsProcessed records the edge of type typ walked by rel from fromID
// to toID. The edge is the same whichever of its relationships walked it.
func (m *Machine) MarkEdgeAsProcessed(fromID, toID, typ string, rel *schema.RelationshipDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[canonicalEdge(fromID, toID, typ, rel)] = struct{}{}
}

// HasProcessedEdge reports whether the edge was written, possibly from its
// other end.
func (m *Machine) HasProcessedEdge(fromID, toID, typ string, rel *schema.RelationshipDescriptor) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[canonicalEdge(fromID, toID, typ, rel)]
	return ok
}

func pendingKey(statement, fromID, toID string) string {
	return statement + "\x00" + fromID + "\x00" + toID
}

// RequireIDUpdate queues assign to receive the id of the relationship the
// statement creates between fromID and toID.
func (m *Machine) RequireIDUpdate(statement, fromID, toID string, assign func(id any) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pendingKey(statement, fromID, toID)
	m.pending[key] = append(m.pending[key], pendingUpdate{assign: assign})
}

// UpdateRelationshipID hands id to the oldest queued update for the
// statement and endpoints.
func (m *Machine) UpdateRelationshipID(statement, fromID, toID string, id any) error {
	m.mu.Lock()
	key := pendingKey(statement, fromID, toID)
	queue := m.pending[key]
	if len(queue) == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: no pending id update from %s to %s", ErrInvariant, fromID, toID)
	}
	next := queue[0]
	if len(queue) == 1 {
		delete(m.pending, key)
	} else {
		m.pending[key] = queue[1:]
	}
	m.mu.Unlock()
	return next.assign(id)
}

// PendingIDUpdates returns the number of queued id updates.
func (m *Machine) PendingIDUpdates() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, q := range m.pending {
		n += len(q)
	}
	return n
}

func checkPointer(value any) error {
	v := reflect.ValueOf(value)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("%w: expected a non-nil pointer, got %T", ErrInvariant, value)
	}
	return nil
}
