// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import "context"

// TaskResult is one task status reply. Until the task reaches a terminal
// state the server reports only a status text; the terminal reply carries a
// success flag and the output payload.
type TaskResult struct {
	Status  string `json:"status"`
	Success *bool  `json:"success"`
	Output  any    `json:"output"`
}

// Terminal reports whether the reply carries the terminal success flag.
func (r TaskResult) Terminal() bool {
	return r.Success != nil
}

// Failed reports whether the reply is a terminal failure.
func (r TaskResult) Failed() bool {
	return r.Success != nil && !*r.Success
}

// TaskConn is a bidirectional connection scoped to one task. The remote side
// closes the connection once a terminal payload has been delivered.
type TaskConn interface {
	// Query sends one text query and blocks for the decoded reply. A reply
	// carrying the terminal success flag closes the connection immediately
	// after it is read.
	Query(text string) (TaskResult, error)
	// Connected reports whether the connection is still open.
	Connected() bool
	Close() error
}

// ServerInfo identifies the connected server.
type ServerInfo struct {
	Server string `json:"server"`
	ID     string `json:"id"`
}

// ParamInfo is the wire record describing one parameter slot of an entry.
type ParamInfo struct {
	Name     string `json:"name"`
	IO       string `json:"io"`
	Desc     string `json:"desc"`
	Default  any    `json:"default"`
	Optional bool   `json:"optional"`
}

// EntryInfo is the wire record describing one algorithm entry.
type EntryInfo struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Version     string               `json:"version"`
	References  []string             `json:"references"`
	Inputs      map[string]ParamInfo `json:"inputs"`
	Outputs     map[string]ParamInfo `json:"outputs"`
}

// Session is the server-facing surface an algorithm proxy depends on.
// *Client implements it; tests substitute fakes.
type Session interface {
	// Host returns the server base URL.
	Host() string
	// ServerName returns the display name reported by the server.
	ServerName() string
	// Entry fetches the metadata record for one entry, including parameters.
	Entry(ctx context.Context, name string) (*EntryInfo, error)
	// IORecord fetches the raw iotype record for one id.
	IORecord(ctx context.Context, id string) (map[string]any, error)
	// SubmitTask schedules one execution of an entry and returns the task id.
	SubmitTask(ctx context.Context, entry string, params map[string]any) (string, error)
	// TaskResult fetches the current status of a task.
	TaskResult(ctx context.Context, taskID string) (TaskResult, error)
	// CancelTask requests cancellation; it reports whether the server accepted.
	CancelTask(ctx context.Context, taskID string) (bool, error)
	// OpenTaskStream opens a task-scoped bidirectional connection.
	OpenTaskStream(ctx context.Context, taskID string) (TaskConn, error)
}
