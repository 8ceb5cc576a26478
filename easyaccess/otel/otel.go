// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

// Package easyotel provides OpenTelemetry instrumentation for easyaccess
// clients. It implements the [easyaccess.DispatchHook] interface to add
// distributed tracing and metrics to algorithm calls.
//
// Usage:
//
//	client, _ := easyaccess.Connect(ctx, opts)
//	easyotel.InstrumentClient(client, easyotel.DefaultConfig())
package easyotel

import (
	"context"
	"fmt"
	"time"

	"github.com/easy-api/easyaccess-go/easyaccess"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "easyaccess"

// OtelConfig configures OpenTelemetry instrumentation for an easyaccess client.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value.
	// Defaults to the connected server's display name or "EasyAccess".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider and MeterProvider are resolved from the global OTel SDK at
// instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentClient attaches OpenTelemetry instrumentation to an easyaccess
// client. The hook is installed via [easyaccess.Client.SetDispatchHook] and
// applies to proxies constructed afterwards.
func InstrumentClient(client *easyaccess.Client, cfg OtelConfig) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.ServiceName == "" {
		if sn := client.ServerName(); sn != "" {
			cfg.ServiceName = sn
		} else {
			cfg.ServiceName = "EasyAccess"
		}
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.callCounter, _ = meter.Int64Counter("easyaccess.client.calls",
			metric.WithUnit("{call}"),
			metric.WithDescription("Number of algorithm calls"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("easyaccess.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of algorithm calls"),
		)
	}

	client.SetDispatchHook(hook)
}

// otelHook implements easyaccess.DispatchHook with OpenTelemetry tracing and
// metrics.
type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	callCounter       metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnCallStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnCallStart starts a client span for one algorithm call.
func (h *otelHook) OnCallStart(ctx context.Context, info easyaccess.CallInfo) (context.Context, easyaccess.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("easyaccess/%s", info.Entry)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "easyapi"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Entry),
		attribute.String("easyaccess.mode", string(info.Mode)),
		attribute.String("server.address", info.Host),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnCallEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnCallEnd(ctx context.Context, token easyaccess.HookToken, info easyaccess.CallInfo, stats *easyaccess.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "easyapi"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Entry),
			attribute.String("easyaccess.mode", string(info.Mode)),
			attribute.String("status", status),
		)
		if h.callCounter != nil {
			h.callCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if info.TaskID != "" {
			st.span.SetAttributes(attribute.String("easyaccess.task_id", info.TaskID))
		}
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("easyaccess.status_updates", stats.StatusUpdates),
				attribute.Bool("easyaccess.cancelled", stats.Cancelled),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			errType := fmt.Sprintf("%T", err)
			if stackErr, ok := err.(*easyaccess.StackError); ok {
				errType = stackErr.Code
			}
			st.span.SetAttributes(attribute.String("easyaccess.error_type", errType))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
