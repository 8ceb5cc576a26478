// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession scripts server behavior for proxy tests.
type fakeSession struct {
	entries map[string]*EntryInfo
	ios     map[string]map[string]any

	// results are returned from TaskResult in order, last one repeating.
	results []TaskResult
	// stream scripts OpenTaskStream; nil means streaming is unavailable.
	stream *fakeConn

	ioFetches    int
	submits      int
	polls        int
	cancelled    []string
	cancelAccept bool
	lastParams   map[string]any
}

func (f *fakeSession) Host() string       { return "http://fake.test/" }
func (f *fakeSession) ServerName() string { return "Fake Server" }

func (f *fakeSession) Entry(ctx context.Context, name string) (*EntryInfo, error) {
	info, ok := f.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return info, nil
}

func (f *fakeSession) IORecord(ctx context.Context, id string) (map[string]any, error) {
	f.ioFetches++
	rec, ok := f.ios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (f *fakeSession) SubmitTask(ctx context.Context, entry string, params map[string]any) (string, error) {
	f.submits++
	f.lastParams = params
	return fmt.Sprintf("task-%d", f.submits), nil
}

func (f *fakeSession) TaskResult(ctx context.Context, taskID string) (TaskResult, error) {
	i := f.polls
	f.polls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

func (f *fakeSession) CancelTask(ctx context.Context, taskID string) (bool, error) {
	f.cancelled = append(f.cancelled, taskID)
	return f.cancelAccept, nil
}

func (f *fakeSession) OpenTaskStream(ctx context.Context, taskID string) (TaskConn, error) {
	if f.stream == nil {
		return nil, ErrStreamClosed
	}
	return f.stream, nil
}

// fakeConn replays scripted stream replies, disconnecting when they run out.
type fakeConn struct {
	replies []TaskResult
	queries int
	closed  bool
}

func (c *fakeConn) Query(text string) (TaskResult, error) {
	if c.queries >= len(c.replies) {
		c.closed = true
		return TaskResult{}, ErrStreamClosed
	}
	res := c.replies[c.queries]
	c.queries++
	if res.Terminal() {
		c.closed = true
	}
	return res, nil
}

func (c *fakeConn) Connected() bool { return !c.closed }
func (c *fakeConn) Close() error    { c.closed = true; return nil }

func boolPtr(b bool) *bool { return &b }

func addEntry() *EntryInfo {
	return &EntryInfo{
		ID:          "entry-add",
		Name:        "add",
		Description: "Adds two numbers.",
		Version:     "1",
		References:  []string{"https://example.test/add"},
		Inputs: map[string]ParamInfo{
			"a": {Name: "a", IO: "pct-1", Desc: "first addend"},
			"b": {Name: "b", IO: "pct-1", Desc: "second addend", Default: float64(1), Optional: true},
		},
		Outputs: map[string]ParamInfo{
			"sum": {Name: "sum", IO: "pct-1", Desc: "the sum"},
		},
	}
}

func multEntry() *EntryInfo {
	return &EntryInfo{
		ID:          "entry-mult",
		Name:        "mult",
		Description: "Multiplies two numbers.",
		Version:     "1",
		Inputs: map[string]ParamInfo{
			"a": {Name: "a", IO: "pct-1", Desc: "first factor"},
			"b": {Name: "b", IO: "pct-1", Desc: "second factor"},
		},
		Outputs: map[string]ParamInfo{
			"product": {Name: "product", IO: "pct-1", Desc: "the product"},
		},
	}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		entries: map[string]*EntryInfo{"add": addEntry()},
		ios:     sampleRecords(),
	}
}

func testCallOptions() callOptions {
	return callOptions{
		reporter:     func(string) Reporter { return NopReporter{} },
		logger:       slog.New(slog.DiscardHandler),
		pollInterval: time.Millisecond,
	}
}

func buildProxy(t *testing.T, s *fakeSession, mode Mode) *Algorithm {
	t.Helper()
	algo, err := newAlgorithm(context.Background(), s, "add", NewRegistry(), mode, nil, testCallOptions())
	require.NoError(t, err)
	return algo
}

func TestNewAlgorithmResolvesMetadata(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	assert.Equal(t, "add", algo.Name())
	assert.Equal(t, "entry-add", algo.ID())
	assert.Equal(t, "1", algo.Version())
	require.Contains(t, algo.Inputs, "a")
	require.Contains(t, algo.Inputs, "b")
	assert.Equal(t, "percentage", algo.Inputs["a"].IOType.Name)
	assert.True(t, algo.Inputs["b"].Optional)
	require.Contains(t, algo.Outputs, "sum")

	// Three parameters share one iotype id; it is fetched once.
	assert.Equal(t, 1, s.ioFetches)
}

func TestNewAlgorithmCachesFetchedIOTypes(t *testing.T) {
	s := newFakeSession()
	ios := NewRegistry()

	first, err := newAlgorithm(context.Background(), s, "add", ios, ModeHTTP, nil, testCallOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, s.ioFetches)
	assert.True(t, ios.Contains("pct-1"))

	// A second proxy resolving the same id hits the shared cache, not the
	// server, and sees the same IOType instance.
	second, err := newAlgorithm(context.Background(), s, "add", ios, ModeHTTP, nil, testCallOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, s.ioFetches)
	assert.Same(t, first.Inputs["a"].IOType, second.Inputs["a"].IOType)
}

func TestNewAlgorithmReusesCachedIOTypes(t *testing.T) {
	s := newFakeSession()
	ios := NewRegistry()
	require.NoError(t, ios.Load(s.ios))

	_, err := newAlgorithm(context.Background(), s, "add", ios, ModeHTTP, nil, testCallOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, s.ioFetches)
}

func TestCallMissingRequiredArgument(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	_, err := algo.Call(context.Background(), map[string]any{"b": 2})
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "a", missing.Param)
	// Validation fails before anything reaches the server.
	assert.Equal(t, 0, s.submits)
}

func TestCallRejectsUnexpectedArgument(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	_, err := algo.Call(context.Background(), map[string]any{"a": 5, "c": 1})
	assert.ErrorContains(t, err, "unexpected argument c")
	assert.Equal(t, 0, s.submits)
}

func TestCallValidationFailureStopsLocally(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	_, err := algo.Call(context.Background(), map[string]any{"a": 250})
	assertStackCode(t, err, "IO-META-NUM-MAX")
	assert.Equal(t, 0, s.submits)
}

func TestCallPollingSuccess(t *testing.T) {
	s := newFakeSession()
	s.results = []TaskResult{
		{Status: "PENDING"},
		{Status: "RUNNING"},
		{Status: "SUCCESS", Success: boolPtr(true), Output: map[string]any{"sum": float64(6)}},
	}
	algo := buildProxy(t, s, ModeHTTP)

	out, err := algo.Call(context.Background(), map[string]any{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sum": float64(6)}, out)
	// The omitted optional argument is sent as its default.
	assert.Equal(t, map[string]any{"a": float64(5), "b": float64(1)}, s.lastParams)
	assert.Empty(t, algo.TaskID())
}

func TestCallPollingFailure(t *testing.T) {
	s := newFakeSession()
	s.results = []TaskResult{
		{Status: "FAILURE", Success: boolPtr(false), Output: "division by zero"},
	}
	algo := buildProxy(t, s, ModeHTTP)

	_, err := algo.Call(context.Background(), map[string]any{"a": 5, "b": 0})
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "add", taskErr.Entry)
	assert.Equal(t, "task-1", taskErr.TaskID)
	assert.Equal(t, "division by zero", taskErr.Output)
	assert.Empty(t, algo.TaskID())
}

func TestCallStreamingSuccess(t *testing.T) {
	s := newFakeSession()
	s.stream = &fakeConn{replies: []TaskResult{
		{Status: "RUNNING"},
		{Status: "SUCCESS", Success: boolPtr(true), Output: float64(6)},
	}}
	algo := buildProxy(t, s, ModeWebSocket)

	out, err := algo.Call(context.Background(), map[string]any{"a": 5})
	require.NoError(t, err)
	assert.Equal(t, float64(6), out)
	assert.True(t, s.stream.closed)
}

func TestCallStreamingClosedWithoutTerminal(t *testing.T) {
	s := newFakeSession()
	s.stream = &fakeConn{replies: []TaskResult{{Status: "RUNNING"}}}
	algo := buildProxy(t, s, ModeWebSocket)

	_, err := algo.Call(context.Background(), map[string]any{"a": 5})
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestCallContextCancelRequestsTaskCancel(t *testing.T) {
	s := newFakeSession()
	s.results = []TaskResult{{Status: "RUNNING"}}
	s.cancelAccept = true
	algo := buildProxy(t, s, ModeHTTP)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := algo.Call(ctx, map[string]any{"a": 5})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"task-1"}, s.cancelled)
	assert.Empty(t, algo.TaskID())
}

func TestCancelWithoutTaskIsNoop(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	algo.Cancel(context.Background())
	assert.Empty(t, s.cancelled)
}

func TestCallHookObservesOutcome(t *testing.T) {
	s := newFakeSession()
	s.results = []TaskResult{
		{Status: "RUNNING"},
		{Status: "SUCCESS", Success: boolPtr(true), Output: float64(6)},
	}
	hook := &recordingHook{}
	opts := testCallOptions()
	opts.hook = hook

	algo, err := newAlgorithm(context.Background(), s, "add", NewRegistry(), ModeHTTP, nil, opts)
	require.NoError(t, err)

	_, err = algo.Call(context.Background(), map[string]any{"a": 5})
	require.NoError(t, err)

	require.Len(t, hook.ends, 1)
	end := hook.ends[0]
	assert.Equal(t, "add", end.info.Entry)
	assert.Equal(t, ModeHTTP, end.info.Mode)
	assert.Equal(t, "task-1", end.info.TaskID)
	assert.NoError(t, end.err)
	assert.Equal(t, int64(1), end.stats.StatusUpdates)
}

type hookEnd struct {
	info  CallInfo
	stats CallStatistics
	err   error
}

type recordingHook struct {
	starts int
	ends   []hookEnd
}

func (h *recordingHook) OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken) {
	h.starts++
	return ctx, h.starts
}

func (h *recordingHook) OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error) {
	h.ends = append(h.ends, hookEnd{info: info, stats: *stats, err: err})
}

func TestAlgorithmDoc(t *testing.T) {
	s := newFakeSession()
	algo := buildProxy(t, s, ModeHTTP)

	doc := algo.Doc()
	assert.Contains(t, doc, "### add")
	assert.Contains(t, doc, "Adds two numbers.")
	assert.Contains(t, doc, "**a**")
	assert.Contains(t, doc, "_[OPTIONAL]_=`1`")
	assert.Contains(t, doc, "#### Returns")
	assert.Contains(t, doc, "1. https://example.test/add")
}
