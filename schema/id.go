package schema

import (
	"reflect"

	"github.com/google/uuid"
)

// IDStrategy tells who produces the identifier of an entity.
type IDStrategy int

const (
	// AssignedID values are supplied by the caller.
	AssignedID IDStrategy = iota
	// InternallyGeneratedID values are assigned by the database.
	InternallyGeneratedID
	// ExternallyGeneratedID values are produced by a named IDGenerator
	// before the entity is written.
	ExternallyGeneratedID
)

func (s IDStrategy) String() string {
	switch s {
	case AssignedID:
		return "assigned"
	case InternallyGeneratedID:
		return "internal"
	case ExternallyGeneratedID:
		return "external"
	default:
		return "unknown"
	}
}

// GeneratedInternal is the Generated value selecting database ids.
const GeneratedInternal = "internal"

// UUIDGeneratorName is the name under which every Context registers a
// UUIDGenerator.
const UUIDGeneratorName = "uuid"

// IDDescriptor describes how an entity is identified.
type IDDescriptor struct {
	strategy      IDStrategy
	propertyName  string
	generatorName string
	legacy        bool
}

// ForAssignedIDs describes ids supplied by the caller and stored in
// propertyName.
func ForAssignedIDs(propertyName string) *IDDescriptor {
	return &IDDescriptor{strategy: AssignedID, propertyName: propertyName}
}

// ForInternallyGeneratedIDs describes database ids. legacy selects the
// numeric id(n) form instead of elementId(n).
func ForInternallyGeneratedIDs(legacy bool) *IDDescriptor {
	return &IDDescriptor{strategy: InternallyGeneratedID, legacy: legacy}
}

// ForExternallyGeneratedIDs describes ids produced by the named generator and
// stored in propertyName.
func ForExternallyGeneratedIDs(generatorName, propertyName string) *IDDescriptor {
	return &IDDescriptor{strategy: ExternallyGeneratedID, generatorName: generatorName, propertyName: propertyName}
}

func (d *IDDescriptor) Strategy() IDStrategy        { return d.strategy }
func (d *IDDescriptor) IsAssigned() bool            { return d.strategy == AssignedID }
func (d *IDDescriptor) IsInternallyGenerated() bool { return d.strategy == InternallyGeneratedID }
func (d *IDDescriptor) IsExternallyGenerated() bool { return d.strategy == ExternallyGeneratedID }
func (d *IDDescriptor) GeneratorName() string       { return d.generatorName }

// UsesLegacyID reports whether internal ids are the numeric id(n) values.
func (d *IDDescriptor) UsesLegacyID() bool { return d.legacy }

// GraphPropertyName returns the property holding the id. Internally generated
// ids never have one.
func (d *IDDescriptor) GraphPropertyName() (string, bool) {
	if d.strategy == InternallyGeneratedID {
		return "", false
	}
	return d.propertyName, true
}

// IDGenerator produces identifiers for externally generated ids.
type IDGenerator interface {
	Generate(primaryLabel string, entity any) (any, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func(primaryLabel string, entity any) (any, error)

func (f IDGeneratorFunc) Generate(primaryLabel string, entity any) (any, error) {
	return f(primaryLabel, entity)
}

// UUIDGenerator generates random (version 4) UUIDs in their string form.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(string, any) (any, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

var uuidType = reflect.TypeOf(uuid.UUID{})

// computeIDDescriptor derives the id descriptor of an entity from its id
// property definition and rejects incompatible combinations.
func computeIDDescriptor(entity string, def PropertyDefinition, propertyName string, generators map[string]IDGenerator) (*IDDescriptor, error) {
	generated := def.Generated
	valueType := def.Type
	if valueType != nil && valueType.Kind() == reflect.Ptr {
		valueType = valueType.Elem()
	}

	if generated == GeneratedInternal && valueType == uuidType {
		generated = UUIDGeneratorName
	}

	switch generated {
	case "":
		return ForAssignedIDs(propertyName), nil
	case GeneratedInternal:
		if def.Property != "" && def.Property != def.Field {
			return nil, newMetadataError(entity, ErrInvalidIDConfiguration,
				"cannot use internal id strategy with custom property %s", def.Property)
		}
		if valueType == nil {
			return ForInternallyGeneratedIDs(false), nil
		}
		switch valueType.Kind() {
		case reflect.String:
			return ForInternallyGeneratedIDs(false), nil
		case reflect.Int64:
			return ForInternallyGeneratedIDs(true), nil
		default:
			return nil, newMetadataError(entity, ErrInvalidIDConfiguration,
				"internally generated ids can only be assigned to string or int64 fields, not %s", valueType)
		}
	default:
		if _, ok := generators[generated]; !ok {
			return nil, newMetadataError(entity, ErrInvalidIDConfiguration,
				"unknown id generator %q", generated)
		}
		if valueType != nil && isPrimitive(valueType) {
			return nil, newMetadataError(entity, ErrInvalidIDConfiguration,
				"externally generated ids cannot be stored in primitive field %s of type %s", def.Field, valueType)
		}
		return ForExternallyGeneratedIDs(generated, propertyName), nil
	}
}

// isPrimitive reports kinds whose zero value cannot be told apart from a
// generated value.
func isPrimitive(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
