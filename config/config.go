// Package config implements the process-wide configuration store
// (spec §3 "Configuration root", §4.7 "Configuration store").
//
// A Root is an immutable nested tree of {bool, int64, float64, string,
// []Value, map[string]Value}. Store holds one atomically-swapped
// pointer to the current Root; Reload parses a new Root and swaps it
// in wholesale, giving readers a consistent snapshot with no locking
// on the read path — the copy-on-write discipline spec §3 requires.
//
// Dotted-path Query is grounded on the pack repo
// searchktools-fast-server's config/manager.go, which offers the same
// Get/GetString/GetInt convenience accessors over a flat key space;
// here the tree is nested (matching the source config_file.hpp) and
// flattened only at query time by splitting the path on '.'.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Value is one node of the configuration tree.
type Value struct {
	kind rawKind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

type rawKind int

const (
	kindNull rawKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

func (v Value) IsNull() bool   { return v.kind == kindNull }
func (v Value) IsBool() bool   { return v.kind == kindBool }
func (v Value) IsNumber() bool { return v.kind == kindNumber }
func (v Value) IsString() bool { return v.kind == kindString }
func (v Value) IsArray() bool  { return v.kind == kindArray }
func (v Value) IsObject() bool { return v.kind == kindObject }

func (v Value) AsBool() bool       { return v.b }
func (v Value) AsFloat64() float64 { return v.n }
func (v Value) AsInt64() int64     { return int64(v.n) }
func (v Value) AsString() string  { return v.s }
func (v Value) AsArray() []Value  { return v.arr }

// String renders a Value for diagnostics (used in error messages).
func (v Value) String() string {
	switch v.kind {
	case kindNull:
		return "null"
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case kindString:
		return strconv.Quote(v.s)
	case kindArray:
		return fmt.Sprintf("array[%d]", len(v.arr))
	case kindObject:
		return fmt.Sprintf("object[%d]", len(v.obj))
	default:
		return "?"
	}
}

func valueOf(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Value{kind: kindNull}
	case bool:
		return Value{kind: kindBool, b: x}
	case float64:
		return Value{kind: kindNumber, n: x}
	case string:
		return Value{kind: kindString, s: x}
	case []any:
		arr := make([]Value, len(x))
		for i, e := range x {
			arr[i] = valueOf(e)
		}
		return Value{kind: kindArray, arr: arr}
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, e := range x {
			obj[k] = valueOf(e)
		}
		return Value{kind: kindObject, obj: obj}
	default:
		return Value{kind: kindNull}
	}
}

// Root is an immutable configuration snapshot.
type Root struct {
	top map[string]Value
	// path is the config file a Reload()-ed root was parsed from, or
	// empty for the initial root NewStore installs; kept for diagnostics
	// only.
	path string
}

// TypeMismatchError is returned by Query when a path element names a
// field that exists but is not an object, matching the source
// config_file.hpp "fatal configuration error" semantics (spec §4.7).
type TypeMismatchError struct {
	Path    string
	AtField string
	Got     Value
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("config: path %q: field %q is not an object (got %s)", e.Path, e.AtField, e.Got)
}

// Query walks path segments through the tree. A missing key at any
// point resolves to the null Value (not an error). Walking *through*
// a field that exists but holds a non-object value is a
// *TypeMismatchError, per spec §4.7.
func (r *Root) Query(path ...string) (Value, error) {
	cur := Value{kind: kindObject, obj: r.top}
	for i, seg := range path {
		if !cur.IsObject() {
			return Value{}, &TypeMismatchError{
				Path:    strings.Join(path[:i], "."),
				AtField: path[i-1],
				Got:     cur,
			}
		}
		next, ok := cur.obj[seg]
		if !ok {
			return Value{kind: kindNull}, nil
		}
		cur = next
	}
	return cur, nil
}

// Store holds the current Root behind an atomic pointer so Snapshot
// never blocks behind Reload.
type Store struct {
	current atomic.Pointer[Root]
}

// NewStore returns a Store with an empty root, suitable for use
// before the first Reload (e.g. in unit tests constructing a private
// runtime per spec §9's "Global state" design note).
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Root{top: map[string]Value{}})
	return s
}

// Snapshot returns the current Root. Cheap: it is just an atomic load.
func (s *Store) Snapshot() *Root {
	return s.current.Load()
}

// Reload parses path as JSON and atomically swaps it in as the new
// current Root. On parse failure the previous snapshot remains in
// effect (strong exception guarantee, spec §7).
func (s *Store) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	top := make(map[string]Value, len(raw))
	for k, v := range raw {
		top[k] = valueOf(v)
	}
	s.current.Store(&Root{top: top, path: path})
	return nil
}

// Query is a convenience that snapshots then queries, so callers don't
// need to hold a Root across the call.
func (s *Store) Query(path ...string) (Value, error) {
	return s.Snapshot().Query(path...)
}

// Int64 reads an integer field with a default, logging nothing:
// callers decide whether a missing/wrong-typed field is fatal.
func (s *Store) Int64(def int64, path ...string) int64 {
	v, err := s.Query(path...)
	if err != nil || !v.IsNumber() {
		return def
	}
	return v.AsInt64()
}

// String reads a string field with a default.
func (s *Store) String(def string, path ...string) string {
	v, err := s.Query(path...)
	if err != nil || !v.IsString() {
		return def
	}
	return v.AsString()
}

// Bool reads a boolean field with a default.
func (s *Store) Bool(def bool, path ...string) bool {
	v, err := s.Query(path...)
	if err != nil || !v.IsBool() {
		return def
	}
	return v.AsBool()
}

// StringArray reads a []string field, ignoring non-string elements.
func (s *Store) StringArray(path ...string) []string {
	v, err := s.Query(path...)
	if err != nil || !v.IsArray() {
		return nil
	}
	out := make([]string, 0, len(v.AsArray()))
	for _, e := range v.AsArray() {
		if e.IsString() {
			out = append(out, e.AsString())
		}
	}
	return out
}
