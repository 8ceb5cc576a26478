// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackend is a scripted EasyAPI server.
type testBackend struct {
	t        *testing.T
	upgrader websocket.Upgrader

	submits    int
	lastSubmit map[string]any
	polls      int
	cancelled  []string
	// streamReplies are written per "get" query; the last one is terminal.
	streamReplies []TaskResult
}

func (b *testBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.t.Helper()
		assert.Equal(b.t, "id-1", r.Header.Get("easyapi-id"))
		assert.Equal(b.t, "key-1", r.Header.Get("easyapi-key"))

		path := strings.TrimPrefix(r.URL.Path, "/")
		switch {
		case path == "":
			writeJSON(w, ServerInfo{Server: "Test Server", ID: "id-1"})
		case path == "entries/" && r.Method == http.MethodGet:
			assert.Equal(b.t, "0", r.URL.Query().Get("skip"))
			assert.Equal(b.t, "-1", r.URL.Query().Get("limit"))
			assert.Equal(b.t, "true", r.URL.Query().Get("name"))
			writeJSON(w, map[string]any{"records": [][]string{{"add", "Addition"}, {"mult", "Multiplication"}}})
		case path == "io/" && r.Method == http.MethodGet:
			assert.Equal(b.t, "true", r.URL.Query().Get("full"))
			writeJSON(w, map[string]any{"records": sampleRecords()})
		case path == "entries/add" && r.Method == http.MethodGet:
			assert.Equal(b.t, "true", r.URL.Query().Get("io"))
			writeJSON(w, addEntry())
		case path == "entries/add,mult" && r.Method == http.MethodGet:
			assert.Equal(b.t, "true", r.URL.Query().Get("io"))
			writeJSON(w, map[string]*EntryInfo{"add": addEntry(), "mult": multEntry()})
		case path == "entries/add" && r.Method == http.MethodPost:
			assert.Equal(b.t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(b.t, json.NewDecoder(r.Body).Decode(&b.lastSubmit))
			b.submits++
			writeJSON(w, map[string]any{"task_id": "task-1"})
		case path == "tasks/task-1" && r.Method == http.MethodGet:
			b.polls++
			if b.polls < 3 {
				writeJSON(w, TaskResult{Status: "RUNNING"})
				return
			}
			writeJSON(w, TaskResult{Status: "SUCCESS", Success: boolPtr(true), Output: float64(6)})
		case path == "tasks/task-1/cancel" && r.Method == http.MethodPost:
			b.cancelled = append(b.cancelled, "task-1")
			writeJSON(w, map[string]any{"success": true})
		case path == "tasks/task-1/ws":
			b.serveStream(w, r)
		default:
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
		}
	})
}

func (b *testBackend) serveStream(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	require.NoError(b.t, err)
	defer conn.Close()
	for _, reply := range b.streamReplies {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		data, err := json.Marshal(reply)
		require.NoError(b.t, err)
		require.NoError(b.t, conn.WriteMessage(websocket.TextMessage, data))
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func startBackend(t *testing.T) (*testBackend, *httptest.Server) {
	t.Helper()
	backend := &testBackend{t: t}
	ts := httptest.NewServer(backend.handler())
	t.Cleanup(ts.Close)
	return backend, ts
}

func connectClient(t *testing.T, ts *httptest.Server, mode Mode) *Client {
	t.Helper()
	client, err := Connect(context.Background(), Options{
		Host:         ts.URL,
		APIID:        "id-1",
		APIKey:       "key-1",
		Mode:         mode,
		Logger:       slog.New(slog.DiscardHandler),
		Reporter:     func(string) Reporter { return NopReporter{} },
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestConnect(t *testing.T) {
	_, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	assert.Equal(t, "Test Server", client.ServerName())
	assert.Equal(t, []string{"add", "mult"}, client.Entries())
	assert.Equal(t, 2, client.Len())
	assert.Equal(t, 3, client.IOTypes().Len())
	assert.Equal(t, ts.URL+"/", client.Host())
}

func TestConnectValidatesOptions(t *testing.T) {
	_, err := Connect(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Connect(context.Background(), Options{Host: "http://x", Mode: Mode("carrier-pigeon")})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestConnectUnreachableHost(t *testing.T) {
	_, err := Connect(context.Background(), Options{Host: "http://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestClientDescribe(t *testing.T) {
	_, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	md := client.Describe()
	assert.Contains(t, md, "### Test Server")
	assert.Contains(t, md, "**Addition**: add")
}

func TestAlgorithmUnknownEntry(t *testing.T) {
	_, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	_, err := client.Algorithm(context.Background(), "subtract")
	assert.ErrorIs(t, err, ErrUnknownEntry)
}

func TestCallOverPolling(t *testing.T) {
	backend, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	algo, err := client.Algorithm(context.Background(), "add")
	require.NoError(t, err)

	out, err := algo.Call(context.Background(), map[string]any{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, float64(6), out)
	assert.Equal(t, 1, backend.submits)
	assert.Equal(t, map[string]any{"a": float64(5), "b": float64(1)}, backend.lastSubmit)
}

func TestCallOverWebSocket(t *testing.T) {
	backend, ts := startBackend(t)
	backend.streamReplies = []TaskResult{
		{Status: "RUNNING"},
		{Status: "SUCCESS", Success: boolPtr(true), Output: float64(6)},
	}
	client := connectClient(t, ts, ModeWebSocket)

	algo, err := client.Algorithm(context.Background(), "add")
	require.NoError(t, err)

	out, err := algo.Call(context.Background(), map[string]any{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, float64(6), out)
}

func TestStreamClosedWithoutTerminal(t *testing.T) {
	backend, ts := startBackend(t)
	backend.streamReplies = []TaskResult{{Status: "RUNNING"}}
	client := connectClient(t, ts, ModeWebSocket)

	algo, err := client.Algorithm(context.Background(), "add")
	require.NoError(t, err)

	_, err = algo.Call(context.Background(), map[string]any{"a": 5})
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestCancelTask(t *testing.T) {
	backend, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	ok, err := client.CancelTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"task-1"}, backend.cancelled)
}

func TestNonSuccessStatusCarriesBody(t *testing.T) {
	_, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	_, err := client.Entry(context.Background(), "../nope")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusNotFound, transportErr.Status)
	assert.Contains(t, transportErr.Body, "not found")
}

func TestZstdResponseDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "zstd", r.Header.Get("Accept-Encoding"))
		payload, err := json.Marshal(map[string]any{"task_id": "task-9"})
		require.NoError(t, err)
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write(enc.EncodeAll(payload, nil))
	}))
	t.Cleanup(ts.Close)

	c := &Client{
		host:   ts.URL + "/",
		apiID:  "id-1",
		apiKey: "key-1",
		httpc:  ts.Client(),
		logger: slog.New(slog.DiscardHandler),
	}
	id, err := c.SubmitTask(context.Background(), "add", map[string]any{"a": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "task-9", id)
}

func TestAlgorithmsBatch(t *testing.T) {
	_, ts := startBackend(t)
	client := connectClient(t, ts, ModeHTTP)

	algos, err := client.Algorithms(context.Background(), "add", "mult")
	require.NoError(t, err)
	require.Len(t, algos, 2)
	assert.Equal(t, "add", algos["add"].Name())
	assert.Equal(t, "mult", algos["mult"].Name())

	_, err = client.Algorithms(context.Background(), "add", "subtract")
	assert.ErrorIs(t, err, ErrUnknownEntry)
}
