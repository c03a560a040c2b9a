package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const movieSchema = `
entities:
  - name: Person
    labels: [Person]
    properties:
      - {field: ID, property: id, id: true}
      - {field: Name, property: name}
      - {field: Version, property: version, version: true}
    relationships:
      - {field: Knows, type: KNOWS, target: Person, many: true}
  - name: Movie
    labels: [Movie]
    properties:
      - {field: Title, property: title, id: true}
    relationships:
      - {field: Actors, type: ACTED_IN, direction: INCOMING, target: Person, properties: Role, many: true}
  - name: Role
    relationshipProperties: true
    properties:
      - {field: ID, id: true, generated: internal}
      - {field: Roles, property: roles}
      - {field: Actor, targetNode: true}
`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(movieSchema), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	schemaFlag := cmd.PersistentFlags().Lookup("schema")
	require.NotNil(t, schemaFlag)
	assert.Equal(t, "string", schemaFlag.Value.Type())

	debugFlag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, debugFlag)
	assert.Equal(t, "bool", debugFlag.Value.Type())

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"schema", "render", "ping"})
}

func TestSchemaCommand(t *testing.T) {
	out, err := run(t, "schema", "--schema", writeSchema(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Person (node)")
	assert.Contains(t, out, "  id: id (assigned)")
	assert.Contains(t, out, "  version: version")
	assert.Contains(t, out, "  relationship Person.Knows ->[KNOWS]Person")
	assert.Contains(t, out, "Role (relationship properties)")
}

func TestSchemaCommandRequiresFile(t *testing.T) {
	_, err := run(t, "schema")
	assert.ErrorContains(t, err, "--schema is required")
}

func TestRenderEntity(t *testing.T) {
	out, err := run(t, "render", "--schema", writeSchema(t), "--entity", "Movie")
	require.NoError(t, err)

	assert.Contains(t, out, "// find Movie")
	assert.Contains(t, out, "// save Movie")
	assert.Contains(t, out, "// save batch Movie")
	assert.Contains(t, out, "// create relationship Actors of Movie")
	assert.Contains(t, out, "// remove stale relationship Actors of Movie")
	assert.Contains(t, out, "UNWIND $__entities__")
	assert.NotContains(t, out, "// find Person")
}

func TestRenderAll(t *testing.T) {
	out, err := run(t, "render", "--schema", writeSchema(t), "--legacy-ids")
	require.NoError(t, err)

	assert.Contains(t, out, "// find Person")
	assert.Contains(t, out, "// find Movie")
	assert.NotContains(t, out, "// find Role")
	assert.Contains(t, out, "id(startNode)")
	assert.NotContains(t, out, "elementId(")
	// versioned entities are not saved in batches
	assert.NotContains(t, out, "// save batch Person")
}

func TestRenderUnknownEntity(t *testing.T) {
	_, err := run(t, "render", "--schema", writeSchema(t), "--entity", "Studio")
	assert.ErrorContains(t, err, "unknown entity: Studio")
}
