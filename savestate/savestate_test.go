package savestate

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

type Person struct {
	_     struct{} `ogm:"node"`
	ID    string   `ogm:"id,property:id"`
	Knows []*Person
	Fans  []*Person `ogm:"rel:KNOWS,dir:in"`
}

func fixture(t *testing.T) (*schema.Context, *schema.RelationshipDescriptor, *schema.RelationshipDescriptor) {
	t.Helper()
	ctx, err := schema.Build(&Person{})
	require.NoError(t, err)
	e, ok := ctx.EntityOf(&Person{})
	require.True(t, ok)
	knows, ok := e.Relationship("Knows")
	require.True(t, ok)
	fans, ok := e.Relationship("Fans")
	require.True(t, ok)
	return ctx, knows, fans
}

func TestStateOfProgresses(t *testing.T) {
	ctx, knows, _ := fixture(t)
	alice, bob := &Person{ID: "a"}, &Person{ID: "b"}
	m := New(ctx, alice, "4:db:1")

	assert.Equal(t, ProcessedNone, m.StateOf("4:db:1", knows, []any{bob}))
	assert.Equal(t, ProcessedNone, m.StateOf("4:db:1", knows, nil))

	require.NoError(t, m.MarkValueAsProcessed(bob, "4:db:2"))
	assert.Equal(t, ProcessedAllValues, m.StateOf("4:db:1", knows, []any{bob}))

	m.MarkRelationshipAsProcessed("4:db:1", knows)
	assert.Equal(t, ProcessedBoth, m.StateOf("4:db:1", knows, []any{bob}))
	assert.Equal(t, ProcessedAllRelationships, m.StateOf("4:db:1", knows, []any{bob, &Person{ID: "c"}}))
	assert.Equal(t, ProcessedNone, m.StateOf("4:db:2", knows, []any{&Person{ID: "c"}}))

	assert.True(t, m.HasProcessedRelationship("4:db:1", knows))
	assert.False(t, m.HasProcessedRelationship("4:db:1", nil))
	assert.Equal(t, "PROCESSED_BOTH", ProcessedBoth.String())
}

func TestInternalIDsAndAliases(t *testing.T) {
	ctx, _, _ := fixture(t)
	root := &Person{ID: "a"}
	m := New(ctx, root, "4:db:1")

	id, ok := m.InternalID(root)
	require.True(t, ok)
	assert.Equal(t, "4:db:1", id)

	original, replacement := &Person{ID: "x"}, &Person{ID: "x"}
	require.NoError(t, m.MarkValueAsProcessed(replacement, "4:db:9"))
	require.NoError(t, m.MarkValueAsProcessedAs(original, replacement))

	assert.True(t, m.HasProcessedValue(original))
	assert.Same(t, replacement, m.ProcessedAs(original))
	id, ok = m.InternalID(original)
	require.True(t, ok)
	assert.Equal(t, "4:db:9", id)

	_, ok = m.InternalID(&Person{})
	assert.False(t, ok)
}

func TestLogicalDuplicatesAreAliased(t *testing.T) {
	ctx, _, _ := fixture(t)
	written := &Person{ID: "b"}
	m := New(ctx, &Person{ID: "a"}, nil)
	require.NoError(t, m.MarkValueAsProcessed(written, "4:db:2"))

	copyOfB := &Person{ID: "b"}
	assert.True(t, m.HasProcessedValue(copyOfB))
	assert.Same(t, written, m.ProcessedAs(copyOfB))
	id, ok := m.InternalID(copyOfB)
	require.True(t, ok)
	assert.Equal(t, "4:db:2", id)

	assert.False(t, m.HasProcessedValue(&Person{ID: "z"}))
	assert.False(t, m.HasProcessedValue(nil))
}

func TestMarkingRejectsNonPointers(t *testing.T) {
	m := New(nil, nil, nil)
	err := m.MarkValueAsProcessed(Person{}, nil)
	assert.True(t, errors.Is(err, ErrInvariant))
	err = m.MarkValueAsProcessedAs(&Person{}, nil)
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestEdgesAreSharedWithTheObverse(t *testing.T) {
	ctx, knows, fans := fixture(t)
	m := New(ctx, nil, nil)

	m.MarkEdgeAsProcessed("a", "b", "KNOWS", knows)
	assert.True(t, m.HasProcessedEdge("a", "b", "KNOWS", knows))
	// b's incoming Fans walks the same edge from the other end.
	assert.True(t, m.HasProcessedEdge("b", "a", "KNOWS", fans))
	assert.False(t, m.HasProcessedEdge("b", "a", "KNOWS", knows))
	assert.False(t, m.HasProcessedEdge("a", "b", "LIKES", knows))
}

func TestPendingIDUpdatesDrainInOrder(t *testing.T) {
	m := New(nil, nil, nil)
	var got []any
	assign := func(id any) error {
		got = append(got, id)
		return nil
	}
	m.RequireIDUpdate("q", "a", "b", assign)
	m.RequireIDUpdate("q", "a", "b", assign)
	m.RequireIDUpdate("q", "a", "c", assign)
	assert.Equal(t, 3, m.PendingIDUpdates())

	require.NoError(t, m.UpdateRelationshipID("q", "a", "b", "r1"))
	require.NoError(t, m.UpdateRelationshipID("q", "a", "b", "r2"))
	assert.Equal(t, []any{"r1", "r2"}, got)
	assert.Equal(t, 1, m.PendingIDUpdates())

	err := m.UpdateRelationshipID("q", "a", "b", "r3")
	assert.True(t, errors.Is(err, ErrInvariant))
	err = m.UpdateRelationshipID("other", "a", "c", "r4")
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestConcurrentMarking(t *testing.T) {
	ctx, knows, _ := fixture(t)
	m := New(ctx, nil, nil)
	people := make([]*Person, 64)
	for i := range people {
		people[i] = &Person{ID: string(rune('A' + i))}
	}

	var wg sync.WaitGroup
	for i, p := range people {
		wg.Add(1)
		go func(i int, p *Person) {
			defer wg.Done()
			_ = m.MarkValueAsProcessed(p, i)
			m.MarkRelationshipAsProcessed(p.ID, knows)
			m.HasProcessedValue(&Person{ID: p.ID})
		}(i, p)
	}
	wg.Wait()

	values := make([]any, len(people))
	for i, p := range people {
		values[i] = p
	}
	assert.Equal(t, ProcessedBoth, m.StateOf(people[0].ID, knows, values))
}
