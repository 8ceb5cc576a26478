// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is a TaskConn over a gorilla websocket connection. The credential
// headers are sent at dial time; replies are JSON texts, and a reply carrying
// the terminal success flag closes the connection right after it is read.
type wsConn struct {
	conn      *websocket.Conn
	connected bool
}

// dialTaskStream connects the task-scoped socket. The socket URL is the HTTP
// URL with the leading http token replaced by ws.
func (c *Client) dialTaskStream(ctx context.Context, taskID string) (TaskConn, error) {
	wsURL := strings.Replace(c.endpoint("tasks/"+taskID+"/ws"), "http", "ws", 1)
	header := http.Header{}
	header.Set(headerAPIID, c.apiID)
	header.Set(headerAPIKey, c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Status: resp.StatusCode, Body: err.Error()}
		}
		return nil, fmt.Errorf("dialing task stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	c.logger.Debug("task stream open", "task_id", taskID, "url", wsURL)
	return &wsConn{conn: conn, connected: true}, nil
}

// Query sends one text query and blocks for the JSON reply.
func (w *wsConn) Query(text string) (TaskResult, error) {
	if !w.connected {
		return TaskResult{}, ErrStreamClosed
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		w.connected = false
		return TaskResult{}, fmt.Errorf("task stream send: %w", err)
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		w.connected = false
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return TaskResult{}, ErrStreamClosed
		}
		return TaskResult{}, fmt.Errorf("task stream recv: %w", err)
	}
	var res TaskResult
	if err := json.Unmarshal(data, &res); err != nil {
		return TaskResult{}, fmt.Errorf("task stream reply: %w", err)
	}
	if res.Terminal() {
		// The terminal payload ends the stream; close without waiting for
		// the remote close frame.
		_ = w.Close()
	}
	return res, nil
}

// Connected reports whether the connection is still open.
func (w *wsConn) Connected() bool {
	return w.connected
}

// Close closes the connection. Safe to call more than once.
func (w *wsConn) Close() error {
	if !w.connected {
		return nil
	}
	w.connected = false
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return w.conn.Close()
}
