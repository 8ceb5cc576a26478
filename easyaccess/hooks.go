// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import "context"

// DispatchHook provides observability callpoints around one algorithm call,
// from argument validation through the terminal task outcome.
// Implementations must be safe for concurrent use.
type DispatchHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the DispatchHook that created it.
type HookToken interface{}

// CallInfo carries call metadata passed to hooks.
type CallInfo struct {
	Entry  string // algorithm entry name
	Mode   Mode   // dispatch mode the proxy was built with
	Host   string // server base URL
	TaskID string // set once the task is submitted, empty before
}

// CallStatistics holds per-call counters.
type CallStatistics struct {
	StatusUpdates int64 // status texts observed while waiting
	Cancelled     bool  // whether the call ended in a cancellation request
}

// RecordStatus records one observed status update.
func (s *CallStatistics) RecordStatus() {
	s.StatusUpdates++
}
