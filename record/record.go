// Package record defines the unit of validation: an opaquely-typed data
// set that exposes a stable string identity and dotted-path attribute
// navigation. The engine never mutates a Record.
package record

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/Hochfrequenz/bo4e-migration-framework/internal/pathbuf"
)

// MissingAttributeError is returned by Get when a segment of the dotted
// path does not exist on the record. Path is the requested path up to and
// including the segment that could not be resolved.
type MissingAttributeError struct {
	Path    string
	Segment string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%q does not exist", e.Path)
}

// Record is the unit of validation. It is externally owned; the engine
// only reads from it.
type Record interface {
	// ID returns a stable string identity used for diagnostics.
	ID() string

	// Get navigates the dotted path (e.g. "a.b", "a[3].b") and returns the
	// resolved value, or a *MissingAttributeError if a segment is absent.
	Get(path string) (any, error)
}

// Get walks path on an arbitrary Go value (map[string]any, struct, slice,
// pointer) using reflection. It is the shared navigation algorithm behind
// MapRecord and any caller-defined Record whose Get delegates here.
func Get(root any, path string) (any, error) {
	segments := strings.Split(path, ".")
	current := root
	built := pathbuf.Acquire()
	defer built.Release()

	for i, rawSeg := range segments {
		name, idx, hasIdx := splitIndex(rawSeg)

		next, ok := field(current, name)
		if !ok {
			built.WriteDotted(name)
			return nil, &MissingAttributeError{Path: built.String(), Segment: name}
		}
		built.WriteDotted(name)
		current = next

		if hasIdx {
			elem, ok := index(current, idx)
			if !ok {
				built.WriteIndex(idx)
				return nil, &MissingAttributeError{Path: built.String(), Segment: rawSeg}
			}
			built.WriteIndex(idx)
			current = elem
		}

		_ = i
	}
	return current, nil
}

// splitIndex splits "name[3]" into ("name", 3, true) or "name" into
// ("name", 0, false).
func splitIndex(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idxStr := seg[open+1 : len(seg)-1]
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}

// field resolves a named attribute on obj: a map key, a struct field
// (case-sensitive Go exported name), or a pointer thereto.
func field(obj any, name string) (any, bool) {
	if obj == nil {
		return nil, false
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(name)
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := v.MapIndex(key.Convert(v.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Struct:
		f := v.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	default:
		return nil, false
	}
}

// index resolves the i-th element of a slice/array, or a pointer thereto.
func index(obj any, i int) (any, bool) {
	if obj == nil {
		return nil, false
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}
	if i < 0 || i >= v.Len() {
		return nil, false
	}
	return v.Index(i).Interface(), true
}
