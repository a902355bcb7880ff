package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/index"
	"github.com/poiesic/recall/metrics"
	"github.com/poiesic/recall/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 4

func useMockProvider(t *testing.T) *mock.MockEmbedder {
	t.Helper()
	embedder := mock.NewMockEmbedder(testDim)
	prev := newProvider
	newProvider = func(*ai.Config) (ai.Provider, error) {
		return mock.NewMockProviderWithEmbedder(embedder), nil
	}
	t.Cleanup(func() { newProvider = prev })
	return embedder
}

// run executes one command against db and returns stdout.
func run(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	argv := append([]string{"recall", "--log-level", "error", args[0], "--db", db, "--dimensions", "4"}, args[1:]...)
	err := newApp(&stdout, &stderr).Run(argv)
	return stdout.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const documents = `{"id":"a","owner_id":"alice","content":"apples","created_at":"2025-05-01T00:00:00Z","vector":[1,0,0,0]}
{"id":"b","owner_id":"alice","content":"bananas","created_at":"2025-05-02T00:00:00Z","vector":[0,1,0,0],"tags":["fruit"]}

{"id":"c","owner_id":"bob","content":"cherries","created_at":"2025-05-03T00:00:00Z","vector":[1,0,0,0]}
{"id":"d","owner_id":"alice","content":"dates","created_at":"2025-05-04T00:00:00Z"}
`

func TestSetupLogger(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{"recall", "--log-level", "loud", "stats", "--db", t.TempDir(), "--dimensions", "4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRequiredFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{"recall", "stats", "--dimensions", "4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")

	err = newApp(&stdout, &stderr).Run([]string{"recall", "stats", "--db", t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimensions")
}

func TestDatabaseFromEnvironment(t *testing.T) {
	t.Setenv("RECALL_DB", t.TempDir())
	t.Setenv("RECALL_DIMENSIONS", "4")

	var stdout, stderr bytes.Buffer
	require.NoError(t, newApp(&stdout, &stderr).Run([]string{"recall", "stats"}))

	var stats index.Stats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	assert.Zero(t, stats.ActiveCount)
}

func TestImportSearchForget(t *testing.T) {
	db := t.TempDir()
	input := writeFile(t, "docs.jsonl", documents)

	_, err := run(t, db, "import", "--file", input)
	require.NoError(t, err)

	out, err := run(t, db, "stats")
	require.NoError(t, err)
	var stats index.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.ActiveCount)

	request := writeFile(t, "request.json", `{"owner_id":"alice","query_vector":[1,0,0,0],"k":5,"half_life_days":30}`)
	out, err = run(t, db, "search", "--request", request)
	require.NoError(t, err)
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, core.DocumentID("a"), resp.Results[0].DocumentID)
	assert.Equal(t, core.DocumentID("b"), resp.Results[1].DocumentID)

	out, err = run(t, db, "search", "--request", request, "--tag", "fruit")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, core.DocumentID("b"), resp.Results[0].DocumentID)

	_, err = run(t, db, "forget", "--owner", "bob", "--id", "a")
	assert.Error(t, err)

	out, err = run(t, db, "forget", "--owner", "alice", "--id", "a")
	require.NoError(t, err)
	assert.Equal(t, "forgot a (soft)\n", out)

	out, err = run(t, db, "search", "--request", request)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, core.DocumentID("b"), resp.Results[0].DocumentID)

	out, err = run(t, db, "forget", "--owner", "alice", "--id", "b", "--mode", "hard")
	require.NoError(t, err)
	assert.Equal(t, "forgot b (hard)\n", out)

	_, err = run(t, db, "forget", "--owner", "alice", "--id", "b", "--mode", "sometimes")
	assert.Error(t, err)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := run(t, t.TempDir(), "search", "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--request or --text")
}

func TestSearchRejectsBadRequest(t *testing.T) {
	request := writeFile(t, "request.json", `{"owner_id":"alice","query_vector":[1,0],"k":5}`)
	_, err := run(t, t.TempDir(), "search", "--request", request)
	assert.ErrorIs(t, err, core.ErrInvalidDimension)
}

func TestTextImportAndSearch(t *testing.T) {
	useMockProvider(t)
	db := t.TempDir()
	input := writeFile(t, "docs.jsonl", strings.Join([]string{
		`{"id":"x","owner_id":"alice","content":"the quick brown fox"}`,
		`{"id":"y","owner_id":"alice","content":"a lazy dog"}`,
	}, "\n"))

	_, err := run(t, db, "import", "--file", input, "--embed")
	require.NoError(t, err)

	out, err := run(t, db, "search", "--owner", "alice", "--text", "a lazy dog", "--k", "1")
	require.NoError(t, err)
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, core.DocumentID("y"), resp.Results[0].DocumentID)
}

func TestBackfill(t *testing.T) {
	embedder := useMockProvider(t)
	db := t.TempDir()
	input := writeFile(t, "docs.jsonl", documents)

	_, err := run(t, db, "import", "--file", input)
	require.NoError(t, err)

	_, err = run(t, db, "backfill", "--retry-delay", "1ms")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount())

	out, err := run(t, db, "stats")
	require.NoError(t, err)
	var stats index.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 4, stats.ActiveCount)

	_, err = run(t, db, "backfill", "--batch-size", "0")
	assert.Error(t, err)
}

func TestRebuild(t *testing.T) {
	db := t.TempDir()
	input := writeFile(t, "docs.jsonl", documents)
	_, err := run(t, db, "import", "--file", input)
	require.NoError(t, err)

	out, err := run(t, db, "rebuild", "--index-kind", "hnsw")
	require.NoError(t, err)
	var stats index.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, index.KindHNSW, stats.Kind)
	assert.Equal(t, 3, stats.Indexed)

	out, err = run(t, db, "stats", "--index-kind", "hnsw")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, uint64(1), stats.Generation)

	_, err = run(t, db, "stats", "--index-kind", "btree")
	assert.ErrorIs(t, err, index.ErrUnknownKind)
}

func TestSettings(t *testing.T) {
	db := t.TempDir()

	out, err := run(t, db, "settings", "--owner", "alice")
	require.NoError(t, err)
	var view settingsView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, core.DefaultHalfLifeDays, view.HalfLifeDays)
	assert.False(t, view.HardDelete)

	out, err = run(t, db, "settings", "--owner", "alice", "--half-life", "7", "--hard-delete")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, 7.0, view.HalfLifeDays)
	assert.True(t, view.HardDelete)

	_, err = run(t, db, "settings", "--owner", "alice", "--half-life", "-1")
	assert.ErrorIs(t, err, core.ErrInvalidHalfLife)
}

func TestServeMetrics(t *testing.T) {
	collector := metrics.NewCollector(metrics.DefaultConfig())
	collector.RecordFallback()

	srv, addr, err := serveMetrics("127.0.0.1:0", collector)
	require.NoError(t, err)
	defer stopMetrics(srv)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "recall_index_fallback_scans_total 1")
}

func TestMetricsAddrFlag(t *testing.T) {
	out, err := run(t, t.TempDir(), "stats", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
	var stats index.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))

	_, err = run(t, t.TempDir(), "stats", "--metrics-addr", "not an address")
	assert.Error(t, err)
}
