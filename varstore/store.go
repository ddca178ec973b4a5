package varstore

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Separator joins nested keys into a dotted path.
const Separator = "."

var (
	// ErrNotMapping is returned when the top level of a
	// document is not a key-value mapping.
	ErrNotMapping = errors.New("document root is not a mapping")

	// ErrDuplicatePath is returned when two leaves flatten
	// to the same dotted path.
	ErrDuplicatePath = errors.New("duplicate variable path")

	// ErrUnsupportedValue is returned for leaf values that
	// have no canonical string form.
	ErrUnsupportedValue = errors.New("unsupported value type")
)

// Store is an immutable mapping from dotted paths to
// string values. The zero value is an empty store. A Store
// is safe for concurrent lookups.
type Store struct {
	vars map[string]string
}

// Flatten builds a Store from a decoded document. Nested
// maps contribute their keys to the path; scalar leaves are
// stringified. Null leaves and sequences are not
// addressable by a dotted path and are skipped.
func Flatten(doc any) (*Store, error) {
	const errCtx = "flattening document"

	st := &Store{vars: make(map[string]string)}

	if doc == nil {
		return st, nil
	}

	root, ok, err := asMapping(nil, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if !ok {
		return nil, fmt.Errorf(
			"%s: %w: got %T", errCtx, ErrNotMapping, doc,
		)
	}

	if err := st.walk(nil, root); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return st, nil
}

// walk flattens node below the keys in parents. An empty
// key is a path segment like any other.
func (st *Store) walk(
	parents []string,
	node map[string]any,
) error {
	for key, val := range node {
		keys := append(parents[:len(parents):len(parents)], key)
		pa := strings.Join(keys, Separator)

		child, ok, err := asMapping(keys, val)
		if err != nil {
			return err
		}

		if ok {
			if err := st.walk(keys, child); err != nil {
				return err
			}

			continue
		}

		if val == nil {
			continue
		}

		if isSequence(val) {
			slog.Debug("skipping sequence value", "path", pa)
			continue
		}

		str, err := stringify(val)
		if err != nil {
			return fmt.Errorf("%s: %w", pa, err)
		}

		if _, dup := st.vars[pa]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, pa)
		}

		st.vars[pa] = str
	}

	return nil
}

// asMapping normalizes the map shapes produced by the
// document decoders into map[string]any. Keys of different
// types that print the same, such as 1 and "1", are
// reported as duplicate paths below the keys in parents.
func asMapping(
	parents []string,
	val any,
) (map[string]any, bool, error) {
	switch typed := val.(type) {
	case map[string]any:
		return typed, true, nil
	case map[any]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			name := fmt.Sprint(key)
			if _, dup := out[name]; dup {
				keys := append(parents[:len(parents):len(parents)], name)

				return nil, false, fmt.Errorf(
					"%w: %s", ErrDuplicatePath,
					strings.Join(keys, Separator),
				)
			}

			out[name] = item
		}

		return out, true, nil
	}

	return nil, false, nil
}

func isSequence(val any) bool {
	kind := reflect.ValueOf(val).Kind()

	return kind == reflect.Slice || kind == reflect.Array
}

// stringify renders a scalar leaf in its canonical text
// form.
func stringify(val any) (string, error) {
	switch typed := val.(type) {
	case string:
		return typed, nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int:
		return strconv.Itoa(typed), nil
	case int8:
		return strconv.FormatInt(int64(typed), 10), nil
	case int16:
		return strconv.FormatInt(int64(typed), 10), nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint64:
		return strconv.FormatUint(typed, 10), nil
	case float32:
		return formatFloat(float64(typed), 32), nil
	case float64:
		return formatFloat(typed, 64), nil
	case time.Time:
		return typed.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		// json.Number and the TOML local date/time types.
		return typed.String(), nil
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, val)
}

func formatFloat(fl float64, bitSize int) string {
	switch {
	case math.IsInf(fl, 1):
		return "+Inf"
	case math.IsInf(fl, -1):
		return "-Inf"
	case math.IsNaN(fl):
		return "NaN"
	}

	return strconv.FormatFloat(fl, 'f', -1, bitSize)
}

// Lookup returns the value stored at the dotted path. The
// boolean is false when the path is absent; absence is not
// an error.
func (st *Store) Lookup(path string) (string, bool) {
	if st == nil {
		return "", false
	}

	val, ok := st.vars[path]

	return val, ok
}

// Len returns the number of variables.
func (st *Store) Len() int {
	if st == nil {
		return 0
	}

	return len(st.vars)
}

// Keys returns all dotted paths in lexical order.
func (st *Store) Keys() []string {
	if st == nil {
		return nil
	}

	keys := make([]string, 0, len(st.vars))
	for key := range st.vars {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Map returns a copy of the underlying mapping.
func (st *Store) Map() map[string]string {
	out := make(map[string]string, st.Len())
	if st == nil {
		return out
	}

	for key, val := range st.vars {
		out[key] = val
	}

	return out
}

// With returns a new Store holding the receiver's variables
// with overrides applied on top. The receiver is left
// untouched.
func (st *Store) With(overrides map[string]string) *Store {
	merged := st.Map()
	for key, val := range overrides {
		merged[key] = val
	}

	return &Store{vars: merged}
}

// ParseAssignments parses "path=value" pairs. The value may
// contain further '=' characters; the path may not be
// empty.
func ParseAssignments(pairs []string) (map[string]string, error) {
	const errCtx = "parsing assignments"

	out := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf(
				"%s: assignment must be path=value, got %q",
				errCtx, pair,
			)
		}

		out[strings.TrimSpace(parts[0])] = parts[1]
	}

	return out, nil
}
