package neoogm

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/cypher"
)

func tagRepository(t *testing.T, runner Runner) *Repository[Tag] {
	t.Helper()
	repo, err := NewRepository[Tag](templateFor(t, runner, &Tag{}))
	require.NoError(t, err)
	return repo
}

// mentions reports whether want is part of a statement, either inlined in
// the query or passed as a parameter.
func mentions(query string, params map[string]any, want string) bool {
	if strings.Contains(query, want) {
		return true
	}
	for _, v := range params {
		if v == want {
			return true
		}
		if m, ok := v.(map[string]any); ok && mentions("", m, want) {
			return true
		}
	}
	return false
}

func TestNewRepositoryRejectsUnknownTypes(t *testing.T) {
	_, err := NewRepository[Person](templateFor(t, newFakeRunner(), &Tag{}))
	assert.Error(t, err)
}

func TestRepositorySaveAndFindByID(t *testing.T) {
	runner := newFakeRunner()
	runner.on("RETURN n{", func(_ string, params map[string]any) []*neo4j.Record {
		return []*neo4j.Record{record("n", map[string]any{
			"id":                   params[cypher.NameOfID],
			"name":                 "Go",
			cypher.NameOfLabels:    []any{"Tag"},
			cypher.NameOfElementID: "4:db:1",
		})}
	})
	repo := tagRepository(t, runner)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &Tag{ID: "go", Name: "Go"}))

	tag, err := repo.FindByID(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, "go", tag.ID)
	assert.Equal(t, "Go", tag.Name)
}

func TestRepositoryFindByProperty(t *testing.T) {
	runner := newFakeRunner()
	runner.on("MATCH", func(query string, params map[string]any) []*neo4j.Record {
		if !mentions(query, params, "Go") {
			return nil
		}
		return []*neo4j.Record{
			record("n", node(1, []string{"Tag"}, map[string]any{"id": "go", "name": "Go"})),
			record("n", node(2, []string{"Tag"}, map[string]any{"id": "golang", "name": "Go"})),
		}
	})
	repo := tagRepository(t, runner)
	ctx := context.Background()

	byField, err := repo.FindByProperty(ctx, "Name", "Go")
	require.NoError(t, err)
	require.Len(t, byField, 2)
	assert.Equal(t, "go", byField[0].ID)
	assert.Equal(t, "golang", byField[1].ID)

	byGraphName, err := repo.FindByProperty(ctx, "name", "Go")
	require.NoError(t, err)
	assert.Len(t, byGraphName, 2)

	none, err := repo.FindByProperty(ctx, "name", "Rust")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = repo.FindByProperty(ctx, "colour", "red")
	assert.ErrorContains(t, err, `Tag has no property "colour"`)
}

func TestRepositoryFindOne(t *testing.T) {
	rows := 0
	runner := newFakeRunner()
	runner.on("MATCH", func(string, map[string]any) []*neo4j.Record {
		var out []*neo4j.Record
		for i := 1; i <= rows; i++ {
			out = append(out, record("t", node(int64(i), []string{"Tag"}, map[string]any{"id": fmt.Sprintf("t%d", i)})))
		}
		return out
	})
	repo := tagRepository(t, runner)
	ctx := context.Background()
	qb := func() *gocypher.QueryBuilder {
		return gocypher.NewQueryBuilder().Match(gocypher.N("t", "Tag")).Return("t")
	}

	_, err := repo.FindOne(ctx, qb())
	assert.ErrorIs(t, err, ErrNotFound)

	rows = 1
	tag, err := repo.FindOne(ctx, qb())
	require.NoError(t, err)
	assert.Equal(t, "t1", tag.ID)

	rows = 2
	_, err = repo.FindOne(ctx, qb())
	assert.ErrorContains(t, err, "expected 1 record but found 2")
}

func TestRepositoryCounts(t *testing.T) {
	runner := newFakeRunner()
	runner.on("AS "+cypher.NameOfCount, func(query string, params map[string]any) []*neo4j.Record {
		if mentions(query, params, "Go") {
			return []*neo4j.Record{record(cypher.NameOfCount, int64(2))}
		}
		return []*neo4j.Record{record(cypher.NameOfCount, int64(5))}
	})
	repo := tagRepository(t, runner)
	ctx := context.Background()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = repo.CountByProperty(ctx, "Name", "Go")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRepositoryDelete(t *testing.T) {
	runner := newFakeRunner()
	repo := tagRepository(t, runner)

	require.NoError(t, repo.Delete(context.Background(), "go"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "go", runner.calls[0].params[cypher.NameOfID])
	assert.Contains(t, runner.calls[0].query, "DETACH DELETE")
}
