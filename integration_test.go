//go:build integration
// +build integration

package neoogm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/saulfrancisco-ruizacevedo/gocypher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/saulfrancisco-ruizacevedo/go-neoogm/schema"
)

// setupNeo4j starts a Neo4j container and returns an executor connected to
// it. The test is skipped when Docker is not available.
func setupNeo4j(t *testing.T, ctx context.Context) *Neo4jExecutor {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	req := testcontainers.ContainerRequest{
		Image:        "neo4j:5",
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "none",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("7687/tcp"),
			wait.ForLog("Started."),
		).WithDeadline(120 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start Neo4j container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.URI = fmt.Sprintf("bolt://%s:%s", host, port.Port())
	// Authentication is disabled, the password only satisfies validation.
	cfg.Password = "ignored"

	executor, err := NewNeo4jExecutor(cfg, WithExecutorLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = executor.Close(context.Background()) })
	require.NoError(t, executor.Verify(ctx))
	return executor
}

func integrationManager(t *testing.T, ctx context.Context, executor *Neo4jExecutor, samples ...any) *PersistenceManager {
	t.Helper()
	_, err := executor.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	require.NoError(t, err)

	sc, err := schema.Build(samples...)
	require.NoError(t, err)
	return NewPersistenceManager(NewTemplate(executor, sc, WithLogger(zaptest.NewLogger(t))))
}

func TestIntegration(t *testing.T) {
	ctx := context.Background()
	executor := setupNeo4j(t, ctx)

	t.Run("cyclic graph round trip", func(t *testing.T) {
		pm := integrationManager(t, ctx, executor, &Person{})
		people, err := RepositoryFor[Person](pm)
		require.NoError(t, err)

		alice, bob := &Person{ID: "a", Name: "Alice"}, &Person{ID: "b", Name: "Bob"}
		alice.Knows = []*Person{bob}
		bob.Knows = []*Person{alice}
		require.NoError(t, people.Save(ctx, alice))

		n, err := people.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		loaded, err := people.FindByID(ctx, "a")
		require.NoError(t, err)
		require.Len(t, loaded.Knows, 1)
		assert.Equal(t, "Bob", loaded.Knows[0].Name)
		require.Len(t, loaded.Knows[0].Knows, 1)
		assert.Same(t, loaded, loaded.Knows[0].Knows[0])
	})

	t.Run("update removes obsolete relationships", func(t *testing.T) {
		pm := integrationManager(t, ctx, executor, &Person{})
		people, err := RepositoryFor[Person](pm)
		require.NoError(t, err)

		alice := &Person{ID: "a", Name: "Alice", Knows: []*Person{{ID: "b", Name: "Bob"}, {ID: "c", Name: "Carol"}}}
		require.NoError(t, people.Save(ctx, alice))

		alice.Knows = alice.Knows[1:]
		require.NoError(t, people.Save(ctx, alice))

		loaded, err := people.FindByID(ctx, "a")
		require.NoError(t, err)
		require.Len(t, loaded.Knows, 1)
		assert.Equal(t, "c", loaded.Knows[0].ID)

		qb := gocypher.NewQueryBuilder().
			Match(gocypher.N("p", "Person"), gocypher.R("r", "KNOWS").To(), gocypher.N("q", "Person")).
			Return("p", "r", "q")
		graph, err := pm.FindGraph(ctx, qb)
		require.NoError(t, err)
		assert.Len(t, graph.Nodes, 2)
		require.Len(t, graph.Edges, 1)
		assert.Equal(t, "KNOWS", graph.Edges[0].Type)
	})

	t.Run("relationship properties", func(t *testing.T) {
		pm := integrationManager(t, ctx, executor, &Movie{})
		movies, err := RepositoryFor[Movie](pm)
		require.NoError(t, err)

		movie := &Movie{Title: "The Matrix", Actors: []*ActedIn{
			{Roles: []string{"Neo"}, Actor: &Actor{Name: "Keanu Reeves"}},
			{Roles: []string{"Trinity"}, Actor: &Actor{Name: "Carrie-Anne Moss"}},
		}}
		require.NoError(t, movies.Save(ctx, movie))
		for _, a := range movie.Actors {
			assert.NotEmpty(t, a.ID)
		}

		loaded, err := movies.FindByID(ctx, "The Matrix")
		require.NoError(t, err)
		roles := map[string][]string{}
		for _, a := range loaded.Actors {
			roles[a.Actor.Name] = a.Roles
		}
		assert.Equal(t, map[string][]string{
			"Keanu Reeves":     {"Neo"},
			"Carrie-Anne Moss": {"Trinity"},
		}, roles)
	})

	t.Run("optimistic locking", func(t *testing.T) {
		pm := integrationManager(t, ctx, executor, &Item{})
		items, err := RepositoryFor[Item](pm)
		require.NoError(t, err)

		item := &Item{ID: "i", Name: "first"}
		require.NoError(t, items.Save(ctx, item))
		assert.Equal(t, int64(1), item.Version)

		stale := *item
		item.Name = "second"
		require.NoError(t, items.Save(ctx, item))
		assert.Equal(t, int64(2), item.Version)

		stale.Name = "lost"
		err = items.Save(ctx, &stale)
		assert.ErrorIs(t, err, ErrOptimisticLocking)

		err = items.DeleteWithVersion(ctx, &stale)
		assert.ErrorIs(t, err, ErrOptimisticLocking)
		require.NoError(t, items.DeleteWithVersion(ctx, item))

		_, err = items.FindByID(ctx, "i")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("batch save", func(t *testing.T) {
		pm := integrationManager(t, ctx, executor, &Tag{})
		tags, err := RepositoryFor[Tag](pm)
		require.NoError(t, err)

		require.NoError(t, tags.SaveAll(ctx, &Tag{ID: "go", Name: "Go"}, &Tag{ID: "neo", Name: "Neo4j"}))
		found, err := tags.FindByProperty(ctx, "Name", "Neo4j")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "neo", found[0].ID)

		deleted, err := pm.Template().DeleteAll(ctx, tags.Entity())
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)
	})
}
