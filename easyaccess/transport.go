// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Mode selects how a proxy waits for task completion.
type Mode string

const (
	// ModeHTTP polls the task status endpoint at a fixed interval.
	ModeHTTP Mode = "http"
	// ModeWebSocket queries a task-scoped socket until the remote side
	// closes it after the terminal payload.
	ModeWebSocket Mode = "websocket"
)

// ParseMode parses a mode tag, accepting the protocol's synonyms.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "http", "https":
		return ModeHTTP, nil
	case "socket", "websocket":
		return ModeWebSocket, nil
	default:
		return "", fmt.Errorf("mode %s not supported", s)
	}
}

// defaultPollInterval is the fixed wait between status queries in both modes.
const defaultPollInterval = 100 * time.Millisecond

// taskTransport runs the wait loop for one submitted task until a terminal
// result. The report callback receives each intermediate status text.
type taskTransport interface {
	Await(ctx context.Context, s Session, taskID string, report func(status string)) (TaskResult, error)
}

// transportForMode selects the wait-loop implementation once, at proxy
// construction.
func transportForMode(mode Mode, interval time.Duration, logger *slog.Logger) (taskTransport, error) {
	switch mode {
	case ModeHTTP:
		return &pollingTransport{interval: interval, logger: logger}, nil
	case ModeWebSocket:
		return &streamingTransport{interval: interval, logger: logger}, nil
	default:
		return nil, fmt.Errorf("mode %s not supported", mode)
	}
}

// pollingTransport repeatedly requests task status over the session until the
// response carries the terminal success flag. It blocks the calling goroutine
// for the whole task duration.
type pollingTransport struct {
	interval time.Duration
	logger   *slog.Logger
}

func (t *pollingTransport) Await(ctx context.Context, s Session, taskID string, report func(string)) (TaskResult, error) {
	if err := wait(ctx, t.interval); err != nil {
		return TaskResult{}, err
	}
	for {
		res, err := s.TaskResult(ctx, taskID)
		if err != nil {
			return TaskResult{}, err
		}
		if res.Terminal() {
			return res, nil
		}
		t.logger.Debug("task status", "task_id", taskID, "status", res.Status)
		report(res.Status)
		if err := wait(ctx, t.interval); err != nil {
			return TaskResult{}, err
		}
	}
}

// streamingTransport opens a dedicated task stream and queries it in lockstep
// until the remote side closes the connection after the terminal payload. A
// connection that drops without one terminates the wait with ErrStreamClosed.
type streamingTransport struct {
	interval time.Duration
	logger   *slog.Logger
}

func (t *streamingTransport) Await(ctx context.Context, s Session, taskID string, report func(string)) (TaskResult, error) {
	conn, err := s.OpenTaskStream(ctx, taskID)
	if err != nil {
		return TaskResult{}, err
	}
	defer conn.Close()

	if err := wait(ctx, t.interval); err != nil {
		return TaskResult{}, err
	}
	res, err := conn.Query("get")
	if err != nil && conn.Connected() {
		return TaskResult{}, err
	}
	for conn.Connected() {
		t.logger.Debug("task status", "task_id", taskID, "status", res.Status)
		report(res.Status)
		if err := wait(ctx, t.interval); err != nil {
			return TaskResult{}, err
		}
		res, err = conn.Query("get")
		if err != nil {
			if conn.Connected() {
				return TaskResult{}, err
			}
			break
		}
	}
	if !res.Terminal() {
		return TaskResult{}, ErrStreamClosed
	}
	return res, nil
}

// wait sleeps for the poll interval, honoring cancellation.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
