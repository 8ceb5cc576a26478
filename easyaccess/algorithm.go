// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/easy-api/easyaccess-go/easyaccess/docflow"
)

// callOptions bundles the per-client knobs a proxy inherits at construction.
type callOptions struct {
	reporter     ReporterFactory
	hook         DispatchHook
	logger       *slog.Logger
	pollInterval time.Duration
}

// Algorithm is a local proxy for one remote entry. Calling it validates the
// arguments against their parameter schemas, submits a task, waits for the
// terminal result in the proxy's dispatch mode, and returns the output.
//
// A proxy tracks at most one in-flight task and is not safe for concurrent
// calls; build one proxy per goroutine instead.
type Algorithm struct {
	id          string
	name        string
	description string
	version     string
	references  []string

	// Inputs and Outputs map parameter names to their resolved schemas.
	Inputs  map[string]*Parameter
	Outputs map[string]*Parameter

	session   Session
	mode      Mode
	transport taskTransport
	opts      callOptions
	doc       string

	// taskID is the in-flight task, empty when idle.
	taskID string
}

// newAlgorithm builds a proxy, fetching entry metadata unless the caller
// supplies a prefetched record, and resolving parameter iotypes through the
// shared cache.
func newAlgorithm(ctx context.Context, s Session, name string, ios *Registry, mode Mode, info *EntryInfo, opts callOptions) (*Algorithm, error) {
	if info == nil {
		var err error
		info, err = s.Entry(ctx, name)
		if err != nil {
			return nil, err
		}
	}
	transport, err := transportForMode(mode, opts.pollInterval, opts.logger)
	if err != nil {
		return nil, err
	}

	a := &Algorithm{
		id:          info.ID,
		name:        info.Name,
		description: info.Description,
		version:     info.Version,
		references:  info.References,
		session:     s,
		mode:        mode,
		transport:   transport,
		opts:        opts,
	}
	if a.Inputs, err = resolveParams(ctx, s, ios, info.Inputs); err != nil {
		return nil, err
	}
	if a.Outputs, err = resolveParams(ctx, s, ios, info.Outputs); err != nil {
		return nil, err
	}
	a.doc = a.renderDoc()
	return a, nil
}

// resolveParams builds Parameter values from wire records, resolving each
// iotype id through the shared cache and fetching only the missing ones.
func resolveParams(ctx context.Context, s Session, ios *Registry, records map[string]ParamInfo) (map[string]*Parameter, error) {
	out := make(map[string]*Parameter, len(records))
	for name, rec := range records {
		if !ios.Contains(rec.IO) {
			raw, err := s.IORecord(ctx, rec.IO)
			if err != nil {
				return nil, fmt.Errorf("resolving iotype %s: %w", rec.IO, err)
			}
			if err := ios.Set(rec.IO, raw); err != nil {
				return nil, err
			}
		}
		io, err := ios.Get(rec.IO)
		if err != nil {
			return nil, err
		}
		out[name] = &Parameter{
			Name:     rec.Name,
			IOType:   io,
			Desc:     rec.Desc,
			Default:  rec.Default,
			Optional: rec.Optional,
		}
	}
	return out, nil
}

// Name returns the entry name.
func (a *Algorithm) Name() string { return a.name }

// ID returns the entry id.
func (a *Algorithm) ID() string { return a.id }

// Version returns the entry version tag.
func (a *Algorithm) Version() string { return a.version }

// Description returns the entry description.
func (a *Algorithm) Description() string { return a.description }

// References returns the entry's reference links.
func (a *Algorithm) References() []string { return a.references }

// TaskID returns the in-flight task id, empty when idle.
func (a *Algorithm) TaskID() string { return a.taskID }

// Doc returns the markdown documentation rendered at construction.
func (a *Algorithm) Doc() string { return a.doc }

// buildParams merges the supplied arguments with parameter defaults and
// validates every value against its iotype. Missing required arguments and
// condition violations fail before anything reaches the server.
func (a *Algorithm) buildParams(args map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(a.Inputs))
	for name, p := range a.Inputs {
		v, ok := args[name]
		if !ok {
			if !p.Optional {
				return nil, &MissingArgumentError{Param: name}
			}
			params[name] = p.Default
			continue
		}
		checked, err := p.IOType.Validate(v)
		if err != nil {
			return nil, err
		}
		params[name] = checked
	}
	for name := range args {
		if _, ok := a.Inputs[name]; !ok {
			return nil, fmt.Errorf("unexpected argument %s", name)
		}
	}
	return params, nil
}

// Call invokes the entry and blocks until the task reaches a terminal state.
// Cancelling the context sends a best-effort cancel request for the in-flight
// task and returns the context error. A terminal failure is returned as a
// *TaskError carrying the server's output.
func (a *Algorithm) Call(ctx context.Context, args map[string]any) (any, error) {
	info := CallInfo{Entry: a.name, Mode: a.mode, Host: a.session.Host()}
	stats := &CallStatistics{}
	var token HookToken
	if a.opts.hook != nil {
		ctx, token = a.opts.hook.OnCallStart(ctx, info)
	}
	out, err := a.call(ctx, args, &info, stats)
	if a.opts.hook != nil {
		a.opts.hook.OnCallEnd(ctx, token, info, stats, err)
	}
	return out, err
}

func (a *Algorithm) call(ctx context.Context, args map[string]any, info *CallInfo, stats *CallStatistics) (any, error) {
	params, err := a.buildParams(args)
	if err != nil {
		return nil, err
	}

	taskID, err := a.session.SubmitTask(ctx, a.name, params)
	if err != nil {
		return nil, err
	}
	a.taskID = taskID
	defer func() { a.taskID = "" }()
	info.TaskID = taskID

	rep := a.reporterFor(fmt.Sprintf("Task %s Submitted", taskID))
	res, err := a.transport.Await(ctx, a.session, taskID, func(status string) {
		stats.RecordStatus()
		rep.Update(status)
	})
	if err != nil {
		if ctx.Err() != nil {
			stats.Cancelled = true
			a.cancelCurrent(context.WithoutCancel(ctx), rep)
			return nil, ctx.Err()
		}
		rep.Fail(fmt.Sprintf("Task %s Failed", taskID))
		return nil, err
	}
	if res.Failed() {
		rep.Fail(fmt.Sprintf("%s %v", a.name, res.Output))
		return nil, &TaskError{Entry: a.name, TaskID: taskID, Output: res.Output}
	}
	rep.Done(fmt.Sprintf("Task %s Finished.", taskID))
	return res.Output, nil
}

// Cancel requests cancellation of the in-flight task, if any. The outcome is
// reported, not returned: a rejected cancel is not an error.
func (a *Algorithm) Cancel(ctx context.Context) {
	if a.taskID == "" {
		return
	}
	a.cancelCurrent(ctx, a.reporterFor(fmt.Sprintf("Cancelling task %s", a.taskID)))
}

func (a *Algorithm) cancelCurrent(ctx context.Context, rep Reporter) {
	ok, err := a.session.CancelTask(ctx, a.taskID)
	switch {
	case err != nil:
		a.opts.logger.Warn("cancel request failed", "task_id", a.taskID, "error", err)
		rep.Fail(fmt.Sprintf("Task %s failed to be cancelled", a.taskID))
	case ok:
		rep.Fail(fmt.Sprintf("Task %s cancelled", a.taskID))
	default:
		rep.Fail(fmt.Sprintf("Task %s failed to be cancelled", a.taskID))
	}
}

func (a *Algorithm) reporterFor(desc string) Reporter {
	if a.opts.reporter == nil {
		return NopReporter{}
	}
	return a.opts.reporter(desc)
}

// renderDoc composes the proxy's markdown documentation from its metadata
// and resolved parameter schemas.
func (a *Algorithm) renderDoc() string {
	doc := docflow.NewDocument(
		docflow.NewTitle(a.name, 3),
		docflow.Text("Hosted on "+a.session.Host()),
		docflow.Text("Version "+docflow.Code(a.version)),
		docflow.Text(a.description),
	)
	doc.Add(docflow.NewTitle("Parameters", 4))
	doc.Add(paramSequence(a.Inputs))
	doc.Add(docflow.NewTitle("Returns", 4))
	doc.Add(paramSequence(a.Outputs))
	if len(a.references) > 0 {
		doc.Add(docflow.NewTitle("References", 4))
		doc.Add(docflow.NewList(a.references...).Numbered())
	}
	return doc.Markdown()
}

// paramSequence renders parameters in name order, one bullet each:
// (meta:**ioname**)_[OPTIONAL]_=`default` desc (`condition`) iotype doc.
func paramSequence(params map[string]*Parameter) *docflow.Sequence {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	seq := docflow.NewSequence()
	for _, name := range names {
		p := params[name]
		text := fmt.Sprintf("(%s:**%s**)", p.IOType.Meta, p.IOType.Name)
		if p.Optional {
			text += "_[OPTIONAL]_=" + docflow.Code(p.Default)
		}
		text += " " + p.Desc
		if p.IOType.Condition != nil {
			if cond, err := json.Marshal(p.IOType.Condition); err == nil {
				text += " (" + docflow.Code(string(cond)) + ")"
			}
		}
		if p.IOType.Doc != "" {
			text += " " + p.IOType.Doc
		}
		seq.Add(name, text)
	}
	return seq
}
