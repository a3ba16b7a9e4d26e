package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/metrics"
)

func TestPublisher_PublishUpsertsByKey(t *testing.T) {
	store := NewMemoryStore()
	rec := metrics.NewMemory()
	pub := NewPublisher(store, WithMetrics(rec))
	require.True(t, pub.Enabled())

	def := &definition.Definition{Namespace: "demo", ID: "flow1"}
	require.NoError(t, pub.Publish(context.Background(), def, "demo.yml"))

	def2 := &definition.Definition{Namespace: "demo", ID: "flow1", Description: "second"}
	require.NoError(t, pub.Publish(context.Background(), def2, "demo.yml"))

	require.Equal(t, []string{"demo.flow1", "demo.flow1"}, store.Upserts())
	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.Get(context.Background(), "demo.flow1")
	require.NoError(t, err)
	require.Equal(t, "second", got.Description)
	require.Equal(t, int64(2), rec.CountOf(metrics.MetadataUpsert, "result:ok"))
}

func TestPublisher_StoreFailureIsTyped(t *testing.T) {
	store := NewMemoryStore()
	cause := errors.New("connection reset")
	store.FailWith(cause)
	pub := NewPublisher(store)

	err := pub.Publish(context.Background(), &definition.Definition{Namespace: "demo", ID: "flow1"}, "demo.yml")
	require.ErrorIs(t, err, ErrStore)
	require.ErrorIs(t, err, cause)

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "demo.flow1", serr.Key)
}

func TestPublisher_DisabledIsNoop(t *testing.T) {
	pub := NewPublisher(nil)
	require.False(t, pub.Enabled())
	require.NoError(t, pub.Publish(context.Background(), &definition.Definition{}, "x.yml"))
	require.NoError(t, pub.Close())
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
