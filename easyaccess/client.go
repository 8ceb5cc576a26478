// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/easy-api/easyaccess-go/easyaccess/docflow"
)

// Credential headers carried on every request and at socket connect time.
const (
	headerAPIID  = "easyapi-id"
	headerAPIKey = "easyapi-key"
)

// serverInfoTimeout bounds the lightweight server-info request. It is the
// only request-level timeout in the protocol; submit, poll, and stream calls
// are bounded by the caller's context instead.
const serverInfoTimeout = 250 * time.Millisecond

// Options configures a Client.
type Options struct {
	// Host is the server base URL, e.g. "http://localhost:8000/". Required.
	Host string
	// APIID and APIKey are the credential pair sent on every request.
	APIID  string
	APIKey string
	// Mode selects the default dispatch mode for proxies built by this
	// client. Defaults to ModeWebSocket.
	Mode Mode
	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
	// Logger receives debug logs around requests and wait loops.
	// Defaults to slog.Default().
	Logger *slog.Logger
	// Reporter builds the per-call progress reporter. Defaults to a timed
	// terminal spinner on stdout; use func(string) Reporter { return
	// NopReporter{} } to silence progress output.
	Reporter ReporterFactory
	// Hook observes calls for tracing and metrics. Optional.
	Hook DispatchHook
	// PollInterval overrides the fixed wait between status queries.
	PollInterval time.Duration
}

func (o *Options) validate() error {
	if o.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidOptions)
	}
	if o.Mode != "" && o.Mode != ModeHTTP && o.Mode != ModeWebSocket {
		return fmt.Errorf("%w: mode %s not supported", ErrInvalidOptions, o.Mode)
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.Mode == "" {
		o.Mode = ModeWebSocket
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Reporter == nil {
		o.Reporter = SpinnerFactory(os.Stdout)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
}

// Client is a session against one server. It authenticates every request
// with the credential pair, discovers the available entries at connect time,
// and primes the shared IOType cache that all proxies resolve through.
type Client struct {
	host         string
	apiID        string
	apiKey       string
	mode         Mode
	httpc        *http.Client
	logger       *slog.Logger
	reporter     ReporterFactory
	hook         DispatchHook
	pollInterval time.Duration

	serverInfo ServerInfo
	entryPairs [][]string
	entries    []string
	ios        *Registry
}

// Connect opens a session: it fetches the server info, the entry list, and
// the full iotype map, and fails if any of those are unreachable.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	c := &Client{
		host:         strings.TrimSuffix(opts.Host, "/") + "/",
		apiID:        opts.APIID,
		apiKey:       opts.APIKey,
		mode:         opts.Mode,
		httpc:        opts.HTTPClient,
		logger:       opts.Logger,
		reporter:     opts.Reporter,
		hook:         opts.Hook,
		pollInterval: opts.PollInterval,
		ios:          NewRegistry(),
	}

	if err := c.get(ctx, "", nil, serverInfoTimeout, &c.serverInfo); err != nil {
		return nil, fmt.Errorf("fetching server info: %w", err)
	}

	var entries struct {
		Records [][]string `json:"records"`
	}
	query := url.Values{}
	query.Set("skip", "0")
	query.Set("limit", "-1")
	query.Set("name", "true")
	if err := c.get(ctx, "entries/", query, 0, &entries); err != nil {
		return nil, fmt.Errorf("fetching entries: %w", err)
	}
	c.entryPairs = entries.Records
	for _, pair := range entries.Records {
		if len(pair) > 0 {
			c.entries = append(c.entries, pair[0])
		}
	}

	records, err := c.IORecords(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("fetching iotypes: %w", err)
	}
	if err := c.ios.Load(records); err != nil {
		return nil, fmt.Errorf("loading iotypes: %w", err)
	}

	c.logger.Debug("connected", "server", c.serverInfo.Server, "entries", len(c.entries))
	return c, nil
}

// Host returns the server base URL.
func (c *Client) Host() string { return c.host }

// ServerName returns the display name reported by the server.
func (c *Client) ServerName() string { return c.serverInfo.Server }

// Mode returns the default dispatch mode for proxies built by this client.
func (c *Client) Mode() Mode { return c.mode }

// Entries returns the names of the algorithms available on the server.
func (c *Client) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of available algorithms.
func (c *Client) Len() int { return len(c.entries) }

// IOTypes returns the shared IOType registry primed at connect time.
// Proxies add any iotypes they resolve later; single-threaded use only.
func (c *Client) IOTypes() *Registry { return c.ios }

// SetDispatchHook registers a hook called around each algorithm call.
// It applies to proxies constructed after the call.
func (c *Client) SetDispatchHook(hook DispatchHook) { c.hook = hook }

// Describe renders a markdown summary of the server and its entries.
func (c *Client) Describe() string {
	seq := docflow.NewSequence()
	for _, pair := range c.entryPairs {
		if len(pair) >= 2 {
			seq.Add(pair[1], pair[0])
		}
	}
	return docflow.NewDocument(
		docflow.NewTitle(c.serverInfo.Server, 3),
		docflow.Text("Authenticated as "+c.serverInfo.ID),
		seq,
	).Markdown()
}

// Algorithm builds a proxy for one entry, fetching its metadata from the
// server. Unknown names fail before any metadata request.
func (c *Client) Algorithm(ctx context.Context, name string) (*Algorithm, error) {
	if !c.knownEntry(name) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
	}
	return newAlgorithm(ctx, c, name, c.ios, c.mode, nil, c.callOptions())
}

// Algorithms builds proxies for several entries from one batch metadata
// fetch.
func (c *Client) Algorithms(ctx context.Context, names ...string) (map[string]*Algorithm, error) {
	for _, name := range names {
		if !c.knownEntry(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
		}
	}
	if len(names) == 1 {
		algo, err := c.Algorithm(ctx, names[0])
		if err != nil {
			return nil, err
		}
		return map[string]*Algorithm{names[0]: algo}, nil
	}
	query := url.Values{}
	query.Set("io", "true")
	var batch map[string]*EntryInfo
	if err := c.get(ctx, "entries/"+strings.Join(names, ","), query, 0, &batch); err != nil {
		return nil, err
	}
	out := make(map[string]*Algorithm, len(batch))
	for name, info := range batch {
		algo, err := newAlgorithm(ctx, c, name, c.ios, c.mode, info, c.callOptions())
		if err != nil {
			return nil, err
		}
		out[name] = algo
	}
	return out, nil
}

func (c *Client) knownEntry(name string) bool {
	for _, entry := range c.entries {
		if entry == name {
			return true
		}
	}
	return false
}

func (c *Client) callOptions() callOptions {
	return callOptions{
		reporter:     c.reporter,
		hook:         c.hook,
		logger:       c.logger,
		pollInterval: c.pollInterval,
	}
}

// --- Session implementation ---

// Entry fetches one entry's metadata record, including parameter schemas.
func (c *Client) Entry(ctx context.Context, name string) (*EntryInfo, error) {
	query := url.Values{}
	query.Set("io", "true")
	var info EntryInfo
	if err := c.get(ctx, "entries/"+name, query, 0, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// IORecords fetches the server's iotype catalog. With full set, each record
// carries the whole schema; otherwise only the id to name pairing.
func (c *Client) IORecords(ctx context.Context, full bool) (map[string]map[string]any, error) {
	var reply struct {
		Records map[string]map[string]any `json:"records"`
	}
	query := url.Values{}
	query.Set("skip", "0")
	query.Set("limit", "-1")
	query.Set("full", strconv.FormatBool(full))
	if err := c.get(ctx, "io/", query, 0, &reply); err != nil {
		return nil, err
	}
	return reply.Records, nil
}

// IORecord fetches the raw iotype record for one id.
func (c *Client) IORecord(ctx context.Context, id string) (map[string]any, error) {
	var rec map[string]any
	if err := c.get(ctx, "io/"+id, nil, 0, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SubmitTask schedules one execution of an entry.
func (c *Client) SubmitTask(ctx context.Context, entry string, params map[string]any) (string, error) {
	var reply struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, "entries/"+entry, params, &reply); err != nil {
		return "", err
	}
	return reply.TaskID, nil
}

// TaskResult fetches the current status of a task.
func (c *Client) TaskResult(ctx context.Context, taskID string) (TaskResult, error) {
	var res TaskResult
	if err := c.get(ctx, "tasks/"+taskID, nil, 0, &res); err != nil {
		return TaskResult{}, err
	}
	return res, nil
}

// CancelTask requests cancellation of a running task.
func (c *Client) CancelTask(ctx context.Context, taskID string) (bool, error) {
	var reply struct {
		Success bool `json:"success"`
	}
	if err := c.post(ctx, "tasks/"+taskID+"/cancel", nil, &reply); err != nil {
		return false, err
	}
	return reply.Success, nil
}

// OpenTaskStream opens the task-scoped socket.
func (c *Client) OpenTaskStream(ctx context.Context, taskID string) (TaskConn, error) {
	return c.dialTaskStream(ctx, taskID)
}

// --- Request plumbing ---

func (c *Client) endpoint(path string) string {
	return c.host + path
}

// get issues a GET with data passed as query parameters. A non-zero timeout
// bounds just this request.
func (c *Client) get(ctx context.Context, path string, query url.Values, timeout time.Duration, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	target := c.endpoint(path)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// post issues a POST with a JSON-encoded body.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends one request with the credential headers and decodes the JSON
// reply into out. Any non-200 response is a TransportError carrying the raw
// body. Responses compressed with zstd are decoded transparently.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set(headerAPIID, c.apiID)
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept-Encoding", "zstd")

	c.logger.Debug("request", "method", req.Method, "url", req.URL.String())
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// readBody drains the response, decoding a zstd content encoding if the
// server applied one. net/http only undoes gzip on its own.
func readBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") != "zstd" {
		return io.ReadAll(resp.Body)
	}
	dec, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd response: %w", err)
	}
	defer dec.Close()
	return io.ReadAll(dec.IOReadCloser())
}
