package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/metadata"
	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/pubsub"
	"github.com/zjrosen/flowsync/internal/synccache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func outcomeEvent(o pipeline.Outcome) pubsub.Event[pipeline.Outcome] {
	return pubsub.Event[pipeline.Outcome]{Type: pubsub.OutcomeEvent, Payload: o, Timestamp: time.Now()}
}

func TestHealth(t *testing.T) {
	s := New(Options{})
	code, body := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestStatus_RecentOutcomes(t *testing.T) {
	detector := synccache.NewDetector(synccache.Entries{"/flows/demo.yml": "abc"})
	s := New(Options{Detector: detector})

	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:        "/flows/demo.yml",
		State:       pipeline.Created,
		Metadata:    pipeline.MetadataPublished,
		Ref:         definition.Ref{Namespace: "demo", ID: "flow1"},
		Fingerprint: "abc",
		Calls:       1,
	}))
	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:     "/flows/broken.yml",
		State:    pipeline.Failed,
		Metadata: pipeline.MetadataSkipped,
		Err:      errors.New("missing required field: tasks"),
	}))
	// A later outcome for the same file replaces the earlier one.
	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:     "/flows/demo.yml",
		State:    pipeline.Unchanged,
		Metadata: pipeline.MetadataSkipped,
	}))
	s.Observe(pubsub.Event[pipeline.Outcome]{Type: pubsub.FlushEvent, Timestamp: time.Now()})

	code, body := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, code)

	files := body["files"].([]any)
	require.Len(t, files, 2)
	first := files[0].(map[string]any)
	second := files[1].(map[string]any)
	assert.Equal(t, "/flows/broken.yml", first["path"])
	assert.Equal(t, "failed", first["state"])
	assert.Equal(t, "missing required field: tasks", first["error"])
	assert.Equal(t, "/flows/demo.yml", second["path"])
	assert.Equal(t, "unchanged", second["state"])

	totals := body["totals"].(map[string]any)
	assert.EqualValues(t, 1, totals["created"])
	assert.EqualValues(t, 1, totals["unchanged"])
	assert.EqualValues(t, 1, totals["failed"])
	assert.EqualValues(t, 0, totals["updated"])
	assert.EqualValues(t, 1, body["cache_entries"])
	assert.Contains(t, body, "last_flush")
}

func TestStatus_FileLookup(t *testing.T) {
	s := New(Options{})
	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:  "/abs/demo.yml",
		State: pipeline.Updated,
		Ref:   definition.Ref{Namespace: "demo", ID: "flow1"},
	}))
	s.Observe(outcomeEvent(pipeline.Outcome{Path: "rel/other.yml", State: pipeline.Created}))

	code, body := get(t, s.Handler(), "/status/abs/demo.yml")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "updated", body["state"])
	assert.Equal(t, "demo.flow1", body["flow"])

	code, body = get(t, s.Handler(), "/status/rel/other.yml")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "created", body["state"])

	code, _ = get(t, s.Handler(), "/status/missing.yml")
	require.Equal(t, http.StatusNotFound, code)
}

func TestMetadataLookup(t *testing.T) {
	store := metadata.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), metadata.Projection{Key: "demo.flow1", Title: "Demo"}))
	s := New(Options{Metadata: store})

	code, body := get(t, s.Handler(), "/metadata/demo.flow1")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Demo", body["title"])

	// Served from cache until a successful sync invalidates it.
	require.NoError(t, store.Upsert(context.Background(), metadata.Projection{Key: "demo.flow1", Title: "Renamed"}))
	_, body = get(t, s.Handler(), "/metadata/demo.flow1")
	assert.Equal(t, "Demo", body["title"])

	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:  "/flows/demo.yml",
		State: pipeline.Updated,
		Ref:   definition.Ref{Namespace: "demo", ID: "flow1"},
	}))
	_, body = get(t, s.Handler(), "/metadata/demo.flow1")
	assert.Equal(t, "Renamed", body["title"])

	code, _ = get(t, s.Handler(), "/metadata/nope.none")
	require.Equal(t, http.StatusNotFound, code)
}

func TestMetadataLookup_NotFoundClearedBySync(t *testing.T) {
	store := metadata.NewMemoryStore()
	s := New(Options{Metadata: store})

	code, _ := get(t, s.Handler(), "/metadata/demo.flow2")
	require.Equal(t, http.StatusNotFound, code)

	// The miss is remembered briefly, so a direct write is not seen yet.
	require.NoError(t, store.Upsert(context.Background(), metadata.Projection{Key: "demo.flow2", Title: "New"}))
	code, _ = get(t, s.Handler(), "/metadata/demo.flow2")
	require.Equal(t, http.StatusNotFound, code)

	s.Observe(outcomeEvent(pipeline.Outcome{
		Path:  "/flows/flow2.yml",
		State: pipeline.Created,
		Ref:   definition.Ref{Namespace: "demo", ID: "flow2"},
	}))
	code, body := get(t, s.Handler(), "/metadata/demo.flow2")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "New", body["title"])
}

func TestMetadataLookup_StoreErrors(t *testing.T) {
	store := metadata.NewMemoryStore()
	s := New(Options{Metadata: failingGet{store}})
	code, _ := get(t, s.Handler(), "/metadata/demo.flow1")
	require.Equal(t, http.StatusBadGateway, code)

	code, _ = get(t, New(Options{}).Handler(), "/metadata/demo.flow1")
	require.Equal(t, http.StatusServiceUnavailable, code)
}

type failingGet struct{ *metadata.MemoryStore }

func (failingGet) Get(context.Context, string) (metadata.Projection, error) {
	return metadata.Projection{}, errors.New("connection refused")
}

func TestRun_ConsumesBrokerAndShutsDown(t *testing.T) {
	broker := pubsub.NewBroker[pipeline.Outcome]()
	defer broker.Close()
	s := New(Options{Broker: broker})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	broker.Consume(ctx, s.Observe)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return broker.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)
	broker.Publish(pubsub.OutcomeEvent, pipeline.Outcome{Path: "a.yml", State: pipeline.Created})

	url := "http://" + ln.Addr().String() + "/status/a.yml"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec,noctx // test server
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
