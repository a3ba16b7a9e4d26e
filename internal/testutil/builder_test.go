package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuilder_WithFlow(t *testing.T) {
	dir := t.TempDir()

	paths := NewBuilder(t, dir).
		WithFlow("demo.yml", "demo", "flow1").
		Build()

	require.Equal(t, []string{filepath.Join(dir, "demo.yml")}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	require.Equal(t, "demo", doc["namespace"])
	require.Equal(t, "flow1", doc["id"])
	require.Len(t, doc["tasks"], 1)
}

func TestBuilder_Without(t *testing.T) {
	path := WriteFlow(t, t.TempDir(), "x.yml", "demo", "x", Without("tasks", "namespace"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &doc))
	require.NotContains(t, doc, "tasks")
	require.NotContains(t, doc, "namespace")
	require.Equal(t, "x", doc["id"])
}

func TestBuilder_WithStandardFlows(t *testing.T) {
	dir := t.TempDir()
	paths := NewBuilder(t, dir).WithStandardFlows().Build()
	require.Len(t, paths, 5)

	raw, err := os.ReadFile(filepath.Join(dir, "billing", "invoice.yaml"))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(raw), "customer"))
	require.True(t, strings.Contains(string(raw), "finance"))
}

func TestFlowServer_DefaultsAndScripts(t *testing.T) {
	fs := NewFlowServer(t)
	fs.Script(http.MethodPost, "/api/v1/flows",
		Reply{Status: http.StatusConflict, Body: `{"message":"exists"}`},
		Reply{Status: http.StatusCreated})

	post := func() int {
		resp, err := http.Post(fs.URL+"/api/v1/flows", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusConflict, post())
	require.Equal(t, http.StatusCreated, post())
	require.Equal(t, http.StatusCreated, post())

	req, err := http.NewRequest(http.MethodPut, fs.URL+"/api/v1/flows/demo/flow1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, 3, fs.Count(http.MethodPost))
	require.Equal(t, 1, fs.Count(http.MethodPut))
	require.Equal(t, "/api/v1/flows/demo/flow1", fs.Requests()[3].Path)

	fs.Reset()
	require.Empty(t, fs.Requests())
}

func TestFlowServer_ResetDropsScripts(t *testing.T) {
	fs := NewFlowServer(t)
	fs.Script(http.MethodPost, "/api/v1/flows", Reply{Status: http.StatusInternalServerError})
	fs.Reset()
	fs.Script(http.MethodPost, "/api/v1/flows", Reply{Status: http.StatusAccepted})

	resp, err := http.Post(fs.URL+"/api/v1/flows", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "replies scripted before Reset must not be served")
}

func TestNewTestDB(t *testing.T) {
	db := NewTestDB(t)
	_, err := db.Exec(`CREATE TABLE t (k TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (k) VALUES ('a')`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	require.Equal(t, 1, n)
}
