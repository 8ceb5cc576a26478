// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

// Package easyaccess is a client for EasyAPI servers, which host algorithms
// behind a uniform HTTP and WebSocket protocol. It turns remotely hosted
// algorithms into local proxies with typed, validated parameters.
//
// # Sessions
//
// [Connect] opens a session: it authenticates with an id/key credential
// pair, fetches the server identity and algorithm catalog, and primes a
// shared [Registry] of iotypes (parameter schemas). Every subsequent
// request carries the credentials as headers.
//
//	client, err := easyaccess.Connect(ctx, easyaccess.Options{
//		Host:   "http://localhost:8000",
//		APIID:  id,
//		APIKey: key,
//	})
//
// # Algorithm proxies
//
// [Client.Algorithm] builds an [Algorithm] proxy from the entry's metadata.
// Calling a proxy validates each argument against its [IOType] (kind
// coercion plus condition checks: numeric ranges for numbers, regular
// expression patterns for strings), fills defaults for omitted optional
// parameters, submits a task, and blocks until the terminal result:
//
//	algo, err := client.Algorithm(ctx, "add")
//	out, err := algo.Call(ctx, map[string]any{"a": 1, "b": 2})
//
// While waiting, the proxy either polls the task status endpoint
// ([ModeHTTP]) or drives a task-scoped WebSocket ([ModeWebSocket], the
// default); the mode is fixed when the proxy is built. Cancelling the
// call's context sends a best-effort cancel request for the in-flight task.
//
// # Validation errors
//
// Condition violations are reported as [StackError] values with stable
// bracketed codes, e.g. "[IO-META-NUM-MIN] ...". Match the class with
// errors.Is(err, easyaccess.ErrStack) or inspect the code with errors.As.
//
// # Observability
//
// A [DispatchHook] observes each call from validation through the terminal
// outcome. The easyaccess/otel subpackage provides an OpenTelemetry hook
// with spans and metrics.
package easyaccess
