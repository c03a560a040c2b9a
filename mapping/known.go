package mapping

import (
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

type objectState int

const (
	inConstruction objectState = iota
	instantiated
	complete
)

// knownObject is one entry of the identity map.
type knownObject struct {
	state  objectState
	value  reflect.Value
	entity *schema.EntityDescriptor
	// applied holds the keys (graph properties and relationship fields)
	// already read into value.
	applied map[string]struct{}
}

func (o *knownObject) isApplied(key string) bool {
	_, ok := o.applied[key]
	return ok
}

func (o *knownObject) apply(key string) {
	o.applied[key] = struct{}{}
}

// knownObjects is the identity map of one read. Keys are node and
// relationship identities as produced by the convert package.
type knownObjects struct {
	byIdentity map[string]*knownObject
}

func newKnownObjects() *knownObjects {
	return &knownObjects{byIdentity: map[string]*knownObject{}}
}

func (k *knownObjects) get(identity string) (*knownObject, bool) {
	o, ok := k.byIdentity[identity]
	return o, ok
}

func (k *knownObjects) contains(identity string) bool {
	_, ok := k.byIdentity[identity]
	return ok
}

// startConstruction marks identity as being built. Asking again before
// construction ends is a cyclic dependency.
func (k *knownObjects) startConstruction(identity string) (*knownObject, error) {
	if o, ok := k.byIdentity[identity]; ok {
		if o.state == inConstruction {
			return nil, fmt.Errorf("%w: %s", ErrCyclicMappingDependency, identity)
		}
		return o, nil
	}
	o := &knownObject{state: inConstruction, applied: map[string]struct{}{}}
	k.byIdentity[identity] = o
	return o, nil
}

// abort forgets identity unless its object was completed, so a failed
// construction is retried from scratch.
func (k *knownObjects) abort(identity string) {
	if o, ok := k.byIdentity[identity]; ok && o.state != complete {
		delete(k.byIdentity, identity)
	}
}
