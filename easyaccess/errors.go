// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error produced by the typed-value model and the
// error stack. The kinds mirror the protocol's error taxonomy: a value that
// cannot be coerced to its declared kind, a structurally invalid condition
// payload, a well-formed condition the value fails to satisfy, and a generic
// runtime failure.
type ErrorKind int

const (
	// KindRuntime is the fallback kind for unregistered error ids.
	KindRuntime ErrorKind = iota
	// KindMeta indicates the raw value could not be coerced to the declared meta kind.
	KindMeta
	// KindConditionFormat indicates the condition payload is structurally invalid for the kind.
	KindConditionFormat
	// KindConditionMatch indicates the value coerced fine but violates a well-formed condition.
	KindConditionMatch
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindConditionFormat:
		return "condition-format"
	case KindConditionMatch:
		return "condition-match"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// ErrStack is a sentinel for use with errors.Is to check whether any error in
// a chain is a *StackError.
var ErrStack = &StackError{}

// StackError is an identified error from an ErrorStack. Its message always
// renders as "[CODE] info" so logs can be correlated by id.
type StackError struct {
	Code string
	Kind ErrorKind
	Info string
}

func (e *StackError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Info)
}

// Is supports errors.Is by matching any *StackError target.
func (e *StackError) Is(target error) bool {
	_, ok := target.(*StackError)
	return ok
}

// StackEntry maps an error id to its kind and message template.
type StackEntry struct {
	Kind ErrorKind
	Info string
}

// ErrorStack is a keyed registry of identified errors. Lookup of an
// unregistered id never fails with a missing key; it yields the fixed
// "[ERR-UNKNOWN] Unknown error" fallback instead.
type ErrorStack struct {
	entries map[string]StackEntry
}

const (
	unknownErrorCode = "ERR-UNKNOWN"
	unknownErrorInfo = "Unknown error"
)

// NewErrorStack creates an error stack from an id -> entry mapping.
func NewErrorStack(entries map[string]StackEntry) *ErrorStack {
	return &ErrorStack{entries: entries}
}

// Len returns the number of registered error ids.
func (s *ErrorStack) Len() int {
	return len(s.entries)
}

// New builds the error registered under the given id. It is called at each
// failure site and its result returned directly; unknown ids yield the
// ERR-UNKNOWN fallback.
func (s *ErrorStack) New(code string) error {
	entry, ok := s.entries[code]
	if !ok {
		return &StackError{Code: unknownErrorCode, Kind: KindRuntime, Info: unknownErrorInfo}
	}
	return &StackError{Code: code, Kind: entry.Kind, Info: entry.Info}
}

// Error ids raised by the typed-value model.
const (
	errNum       = "IO-META-NUM"
	errNumMin    = "IO-META-NUM-MIN"
	errNumMax    = "IO-META-NUM-MAX"
	errNumMinMax = "IO-META-NUM-MINMAX"
	errNumIrr    = "IO-META-NUM-IRR"
	errStr       = "IO-META-STR"
	errStrIrr    = "IO-META-STR-IRR"
	errStrNM     = "IO-META-STR-NM"
	errNumArr    = "IO-META-NUMARR"
	errNumArrIrr = "IO-META-NUMARR-IRR"
)

// ioErrors is the error stack backing IOType validation.
var ioErrors = NewErrorStack(map[string]StackEntry{
	errNum:       {Kind: KindMeta, Info: "Not float data"},
	errNumMin:    {Kind: KindConditionMatch, Info: "Value smaller than min"},
	errNumMax:    {Kind: KindConditionMatch, Info: "Value larger than max"},
	errNumMinMax: {Kind: KindConditionFormat, Info: "Min > Max"},
	errNumIrr:    {Kind: KindConditionFormat, Info: "Irregular conditional format"},
	errStr:       {Kind: KindMeta, Info: "Not string data"},
	errStrIrr:    {Kind: KindConditionFormat, Info: "Irregular conditional format"},
	errStrNM:     {Kind: KindConditionMatch, Info: "Regular expression not match"},
	errNumArr:    {Kind: KindMeta, Info: "Not float array"},
	errNumArrIrr: {Kind: KindConditionFormat, Info: "Float array not support condition"},
})

// Sentinel errors for caller-side classification.
var (
	// ErrInvalidOptions is returned by Connect for unusable client options.
	ErrInvalidOptions = errors.New("invalid client options")
	// ErrUnknownEntry is returned when an algorithm name is not registered on the server.
	ErrUnknownEntry = errors.New("algorithm does not exist")
	// ErrNotFound is returned by registry lookups for unregistered iotype ids.
	ErrNotFound = errors.New("iotype not found")
	// ErrBadRecord is returned when an imported iotype record is missing required fields.
	ErrBadRecord = errors.New("irregular iotype record")
	// ErrStreamClosed is returned when a task stream closes before delivering a terminal payload.
	ErrStreamClosed = errors.New("task stream closed before terminal result")
)

// MissingArgumentError reports a required call argument the caller omitted.
type MissingArgumentError struct {
	Param string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("%s is required", e.Param)
}

// TransportError is a non-success response from the server. The body is
// carried verbatim as the error detail.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}

// TaskError is a task that reached a terminal state with success=false. The
// server-reported output is carried as the message.
type TaskError struct {
	Entry  string
	TaskID string
	Output any
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Entry, e.Output)
}
