package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/metadata"
	"github.com/zjrosen/flowsync/internal/testutil"
)

// setupTestRepo returns a repository over a migrated in-memory database.
func setupTestRepo(t *testing.T) *AutomationRepository {
	t.Helper()
	db, err := NewFromConn(testutil.NewTestDB(t))
	require.NoError(t, err)
	return db.AutomationRepository()
}

func demoProjection() metadata.Projection {
	return metadata.Project(&definition.Definition{
		Namespace: "demo",
		ID:        "flow1",
		Inputs:    []definition.Input{{Name: "name", Type: "STRING", Required: true}},
		Labels:    map[string]string{"env": "dev"},
	}, "flows/flow1.yml")
}

func TestAutomationRepository_UpsertInsert(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := demoProjection()
	require.NoError(t, repo.Upsert(ctx, p))

	found, err := repo.Get(ctx, "demo.flow1")
	require.NoError(t, err)
	require.Equal(t, p, found)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAutomationRepository_UpsertOverwritesOnKey(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created := time.Unix(1000, 0)
	repo.now = func() time.Time { return created }
	require.NoError(t, repo.Upsert(ctx, demoProjection()))

	updated := demoProjection()
	updated.Title = "Renamed"
	updated.Description = "New description"
	repo.now = func() time.Time { return created.Add(time.Hour) }
	require.NoError(t, repo.Upsert(ctx, updated))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	found, err := repo.Get(ctx, "demo.flow1")
	require.NoError(t, err)
	require.Equal(t, "Renamed", found.Title)
	require.Equal(t, "New description", found.Description)

	var createdAt, updatedAt int64
	require.NoError(t, repo.db.conn.QueryRow(
		`SELECT created_at, updated_at FROM automations WHERE key = ?`, "demo.flow1",
	).Scan(&createdAt, &updatedAt))
	require.Equal(t, created.Unix(), createdAt)
	require.Equal(t, created.Add(time.Hour).Unix(), updatedAt)
}

func TestAutomationRepository_GetMissing(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.Get(context.Background(), "nope.nope")
	require.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestAutomationRepository_ListByNamespace(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, ref := range []definition.Ref{{Namespace: "demo", ID: "b"}, {Namespace: "demo", ID: "a"}, {Namespace: "other", ID: "c"}} {
		p := metadata.Project(&definition.Definition{Namespace: ref.Namespace, ID: ref.ID}, ref.ID+".yml")
		require.NoError(t, repo.Upsert(ctx, p))
	}

	list, err := repo.ListByNamespace(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "demo.a", list[0].Key)
	require.Equal(t, "demo.b", list[1].Key)
}

func TestAutomationRepository_WithPublisher(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	pub := metadata.NewPublisher(db.AutomationRepository())
	defer func() { _ = pub.Close() }()

	def := &definition.Definition{Namespace: "demo", ID: "flow1"}
	require.NoError(t, pub.Publish(context.Background(), def, "demo.yml"))

	var title string
	require.NoError(t, db.conn.QueryRow(`SELECT title FROM automations WHERE key = 'demo.flow1'`).Scan(&title))
	require.Equal(t, "Demo", title)
}

func TestAutomationRepository_UpsertIsKeyed(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rapid.Check(t, func(t *rapid.T) {
		_, err := repo.db.conn.Exec(`DELETE FROM automations`)
		if err != nil {
			t.Fatal(err)
		}

		ids := rapid.SliceOfN(rapid.SampledFrom([]string{"a", "b", "c", "d"}), 1, 12).Draw(t, "ids")
		distinct := map[string]bool{}
		for _, id := range ids {
			distinct[id] = true
			p := metadata.Project(&definition.Definition{Namespace: "ns", ID: id}, id+".yml")
			if err := repo.Upsert(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		n, err := repo.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != len(distinct) {
			t.Fatalf("count = %d, want %d", n, len(distinct))
		}
	})
}
