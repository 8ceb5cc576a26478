// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Registry holds IOTypes keyed by id, in a stable order so listings can be
// paginated. It doubles as the shared IOType cache algorithm proxies resolve
// through; it is safe for single-threaded use only (callers with concurrent
// proxies must impose their own write lock).
type Registry struct {
	ids     []string
	iotypes map[string]*IOType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{iotypes: make(map[string]*IOType)}
}

// OpenRegistry loads a registry from a .json or .csv file.
func OpenRegistry(path string) (*Registry, error) {
	r := NewRegistry()
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}
	return r, nil
}

// Set validates and stores one iotype record under the given id. The record
// must contain exactly the required fields; a missing field fails naming the
// offending key.
func (r *Registry) Set(id string, rec map[string]any) error {
	for _, field := range iotypeFields {
		if _, ok := rec[field]; !ok {
			return fmt.Errorf("%w: record %s is missing %q", ErrBadRecord, id, field)
		}
	}
	t, err := NewIOType(rec)
	if err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	if _, exists := r.iotypes[id]; !exists {
		r.ids = append(r.ids, id)
	}
	r.iotypes[id] = t
	return nil
}

// Load bulk-loads records from an in-memory mapping. Ids are inserted in
// sorted order so listings stay deterministic across loads.
func (r *Registry) Load(records map[string]map[string]any) error {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.Set(id, records[id]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the IOType registered under id.
func (r *Registry) Get(id string) (*IOType, error) {
	t, ok := r.iotypes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}

// Contains reports whether an IOType is registered under id.
func (r *Registry) Contains(id string) bool {
	_, ok := r.iotypes[id]
	return ok
}

// Len returns the number of registered IOTypes.
func (r *Registry) Len() int {
	return len(r.iotypes)
}

// Records returns a page of registered ids. A limit <= 0 means no limit:
// everything from skip onward.
func (r *Registry) Records(skip, limit int) []string {
	if skip < 0 {
		skip = 0
	}
	if skip > len(r.ids) {
		skip = len(r.ids)
	}
	page := r.ids[skip:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	out := make([]string, len(page))
	copy(out, page)
	return out
}

// ToDict exports the flat id -> schema mapping. With no ids given, every
// registered IOType is included; unknown ids fail.
func (r *Registry) ToDict(ids ...string) (map[string]map[string]any, error) {
	if len(ids) == 0 {
		ids = r.ids
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		t, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out[id] = t.Schema()
	}
	return out, nil
}

// LoadFile bulk-loads records from a tabular (.csv) or structured-text
// (.json) file.
func (r *Registry) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return r.loadCSV(f)
	case ".json":
		return r.loadJSON(f)
	default:
		return fmt.Errorf("file type not supported: %s", path)
	}
}

// loadJSON reads the flat id -> schema mapping.
func (r *Registry) loadJSON(src io.Reader) error {
	var records map[string]map[string]any
	if err := json.NewDecoder(src).Decode(&records); err != nil {
		return fmt.Errorf("decoding iotype records: %w", err)
	}
	return r.Load(records)
}

// JSON serializes the registry to the flat id -> schema mapping.
func (r *Registry) JSON() ([]byte, error) {
	dict, err := r.ToDict()
	if err != nil {
		return nil, err
	}
	return json.Marshal(dict)
}

// WriteJSON writes the JSON serialization to a file.
func (r *Registry) WriteJSON(path string) error {
	data, err := r.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// csvSchema is the tabular layout for registry import/export: one row per
// iotype, every cell utf8. Condition cells hold the JSON encoding of the
// condition payload, with the empty cell meaning absent.
var csvSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "meta", Type: arrow.BinaryTypes.String},
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "doc", Type: arrow.BinaryTypes.String},
	{Name: "version", Type: arrow.BinaryTypes.String},
	{Name: "condition", Type: arrow.BinaryTypes.String},
}, nil)

// CSV serializes the registry to tabular form.
func (r *Registry) CSV() ([]byte, error) {
	rec, err := r.buildCSVRecord()
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf, csvSchema, csv.WithHeader(true))
	if err := w.Write(rec); err != nil {
		return nil, fmt.Errorf("writing iotype records: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), w.Error()
}

// WriteCSV writes the tabular serialization to a file.
func (r *Registry) WriteCSV(path string) error {
	data, err := r.CSV()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// buildCSVRecord builds the arrow record backing the CSV serialization.
func (r *Registry) buildCSVRecord() (arrow.Record, error) {
	mem := memory.NewGoAllocator()
	builders := make([]*array.StringBuilder, csvSchema.NumFields())
	for i := range builders {
		builders[i] = array.NewStringBuilder(mem)
		defer builders[i].Release()
	}
	for _, id := range r.ids {
		t := r.iotypes[id]
		condition := ""
		if t.Condition != nil {
			data, err := json.Marshal(t.Condition)
			if err != nil {
				return nil, fmt.Errorf("encoding condition of %s: %w", id, err)
			}
			condition = string(data)
		}
		for i, cell := range []string{id, t.Meta.String(), t.Name, t.Doc, t.Version, condition} {
			builders[i].Append(cell)
		}
	}
	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
		defer cols[i].Release()
	}
	return array.NewRecord(csvSchema, cols, int64(len(r.ids))), nil
}

// loadCSV reads the tabular form back into the registry.
func (r *Registry) loadCSV(src io.Reader) error {
	reader := csv.NewReader(src, csvSchema, csv.WithHeader(true), csv.WithChunk(-1))
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()
		cols := make([]*array.String, rec.NumCols())
		for i := range cols {
			col, ok := rec.Column(i).(*array.String)
			if !ok {
				return fmt.Errorf("%w: column %s is not text", ErrBadRecord, csvSchema.Field(i).Name)
			}
			cols[i] = col
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			id := cols[0].Value(row)
			var condition any
			if cell := cols[5].Value(row); cell != "" {
				if err := json.Unmarshal([]byte(cell), &condition); err != nil {
					return fmt.Errorf("%w: record %s has an undecodable condition", ErrBadRecord, id)
				}
			}
			record := map[string]any{
				"id":        cols[0].Value(row),
				"meta":      cols[1].Value(row),
				"name":      cols[2].Value(row),
				"doc":       cols[3].Value(row),
				"version":   cols[4].Value(row),
				"condition": condition,
			}
			if err := r.Set(id, record); err != nil {
				return err
			}
		}
	}
	return reader.Err()
}
