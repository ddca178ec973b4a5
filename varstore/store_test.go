package varstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/tempa/varstore"
)

func TestFlatten_nested_maps(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{
		"a": map[string]any{"b": "X"},
	})
	require.NoError(t, err)

	got, ok := st.Lookup("a.b")
	assert.True(t, ok)
	assert.Equal(t, "X", got)

	_, ok = st.Lookup("a")
	assert.False(t, ok)

	_, ok = st.Lookup("b")
	assert.False(t, ok)

	assert.Equal(t, 1, st.Len())
}

func TestFlatten_deep_nesting(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{
		"l1": map[string]any{
			"l2": map[string]any{
				"l3": map[string]any{"leaf": "deep"},
			},
			"side": "shallow",
		},
	})
	require.NoError(t, err)

	assert.Equal(
		t,
		[]string{"l1.l2.l3.leaf", "l1.side"},
		st.Keys(),
	)
}

func TestFlatten_scalars_are_stringified(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{
		"int":    42,
		"neg":    int64(-7),
		"uint":   uint64(18446744073709551615),
		"float":  3.25,
		"whole":  float64(10),
		"small":  float32(0.5),
		"bool":   true,
		"time":   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		"string": "text",
	})
	require.NoError(t, err)

	want := map[string]string{
		"int":    "42",
		"neg":    "-7",
		"uint":   "18446744073709551615",
		"float":  "3.25",
		"whole":  "10",
		"small":  "0.5",
		"bool":   "true",
		"time":   "2024-03-01T12:00:00Z",
		"string": "text",
	}
	assert.Equal(t, want, st.Map())
}

func TestFlatten_skips_nulls_and_sequences(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{
		"empty": nil,
		"list":  []any{"a", "b"},
		"kept":  "yes",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"kept"}, st.Keys())
}

func TestFlatten_interface_keyed_maps(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[any]any{
		"ports": map[any]any{80: "http"},
	})
	require.NoError(t, err)

	got, ok := st.Lookup("ports.80")
	assert.True(t, ok)
	assert.Equal(t, "http", got)
}

func TestFlatten_nil_document(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(nil)
	require.NoError(t, err)
	assert.Zero(t, st.Len())
}

func TestFlatten_root_not_mapping(t *testing.T) {
	t.Parallel()

	_, err := varstore.Flatten([]any{"a"})
	require.ErrorIs(t, err, varstore.ErrNotMapping)
}

func TestFlatten_duplicate_paths(t *testing.T) {
	t.Parallel()

	_, err := varstore.Flatten(map[string]any{
		"a":   map[string]any{"b": "nested"},
		"a.b": "dotted",
	})
	require.ErrorIs(t, err, varstore.ErrDuplicatePath)
}

func TestFlatten_empty_key_is_a_path_segment(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{
		"":  map[string]any{"b": "under-empty"},
		"b": "top",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		".b": "under-empty",
		"b":  "top",
	}, st.Map())
}

func TestFlatten_keys_that_print_alike_collide(t *testing.T) {
	t.Parallel()

	_, err := varstore.Flatten(map[string]any{
		"a": map[any]any{1: "int", "1": "str"},
	})
	require.ErrorIs(t, err, varstore.ErrDuplicatePath)
	assert.Contains(t, err.Error(), "a.1")
}

func TestFlatten_unsupported_leaf(t *testing.T) {
	t.Parallel()

	_, err := varstore.Flatten(map[string]any{
		"fn": struct{}{},
	})
	require.ErrorIs(t, err, varstore.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "fn")
}

func TestStore_zero_value(t *testing.T) {
	t.Parallel()

	var st varstore.Store

	_, ok := st.Lookup("anything")
	assert.False(t, ok)
	assert.Empty(t, st.Keys())
	assert.Empty(t, st.Map())
}

func TestStore_With_does_not_mutate_receiver(t *testing.T) {
	t.Parallel()

	base, err := varstore.Flatten(map[string]any{
		"prog": map[string]any{"name": "Tempa"},
	})
	require.NoError(t, err)

	over := base.With(map[string]string{
		"prog.name":    "Other",
		"prog.version": "2",
	})

	got, _ := base.Lookup("prog.name")
	assert.Equal(t, "Tempa", got)
	assert.Equal(t, 1, base.Len())

	got, _ = over.Lookup("prog.name")
	assert.Equal(t, "Other", got)

	got, _ = over.Lookup("prog.version")
	assert.Equal(t, "2", got)
}

func TestStore_Map_returns_copy(t *testing.T) {
	t.Parallel()

	st, err := varstore.Flatten(map[string]any{"k": "v"})
	require.NoError(t, err)

	mp := st.Map()
	mp["k"] = "changed"

	got, _ := st.Lookup("k")
	assert.Equal(t, "v", got)
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	got, err := varstore.ParseAssignments([]string{
		"prog.name=Tempa",
		"expr=a=b",
		" spaced =value",
		"empty=",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"prog.name": "Tempa",
		"expr":      "a=b",
		"spaced":    "value",
		"empty":     "",
	}, got)
}

func TestParseAssignments_bad_format(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"NOEQUALS", "=value", "  =x"} {
		_, err := varstore.ParseAssignments([]string{bad})
		require.Error(t, err, bad)
		assert.Contains(t, err.Error(), "path=value")
	}
}
