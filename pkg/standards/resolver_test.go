package standards

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func layer(name LayerName, doc map[string]any) Layer {
	return Layer{Name: name, Doc: doc}
}

func TestScalarMostSpecificWins(t *testing.T) {
	layers := []Layer{
		layer(LayerDefault, map[string]any{"max_tokens": 10000}),
		layer(LayerOrganization, map[string]any{"max_tokens": 8000}),
		layer(LayerRepository, map[string]any{"max_tokens": 5000}),
	}

	r, err := Resolve("max_tokens", layers)
	require.NoError(t, err)
	assert.Equal(t, 5000, r.Value)
	require.Len(t, r.Provenance, 1)
	assert.Equal(t, LayerRepository, r.Provenance[0].Layer)
	assert.Equal(t, "", r.Provenance[0].Path)
}

func TestScalarSingleLayerProvenance(t *testing.T) {
	for _, name := range Precedence {
		layers := []Layer{layer(name, map[string]any{"editor": "vim"})}
		r, err := Resolve("editor", layers)
		require.NoError(t, err)
		assert.Equal(t, "vim", r.Value)
		require.Len(t, r.Provenance, 1)
		assert.Equal(t, name, r.Provenance[0].Layer)
	}
}

func TestListConcatMostSpecificFirst(t *testing.T) {
	layers := []Layer{
		layer(LayerDefault, map[string]any{"ignore": []any{"*.pyc"}}),
		layer(LayerOrganization, map[string]any{"ignore": []any{"*.log"}}),
		layer(LayerRepository, map[string]any{"ignore": []any{"node_modules/"}}),
	}

	r, err := Resolve("ignore", layers)
	require.NoError(t, err)
	assert.Equal(t, []any{"node_modules/", "*.log", "*.pyc"}, r.Value)
	assert.Len(t, r.Provenance, 3)
}

func TestListLengthIsSumOfDefiningLayers(t *testing.T) {
	layers := []Layer{
		layer(LayerLocal, map[string]any{"checks": []any{"a", "b"}}),
		layer(LayerTeam, map[string]any{"checks": []any{"b", "c", "d"}}),
	}

	r, err := Resolve("checks", layers)
	require.NoError(t, err)
	assert.Len(t, r.Value, 5) // duplicates preserved by default
}

func TestListDedupeKeepsFirstOccurrence(t *testing.T) {
	layers := []Layer{
		layer(LayerLocal, map[string]any{"checks": []any{"a", "b"}}),
		layer(LayerTeam, map[string]any{"checks": []any{"b", "c"}}),
	}

	r, err := ResolveWith("checks", layers, Options{Dedupe: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, r.Value)
}

func TestMapMergeRecursesAndPassesThrough(t *testing.T) {
	layers := []Layer{
		layer(LayerRepository, map[string]any{
			"limits": map[string]any{"commit": map[string]any{"max_files": 20}},
		}),
		layer(LayerDefault, map[string]any{
			"limits": map[string]any{
				"commit": map[string]any{"max_files": 50, "max_bytes": 1000000},
				"push":   map[string]any{"max_commits": 10},
			},
		}),
	}

	r, err := Resolve("limits", layers)
	require.NoError(t, err)

	m := r.Value.(map[string]any)
	commit := m["commit"].(map[string]any)
	assert.Equal(t, 20, commit["max_files"])      // repository leaf wins
	assert.Equal(t, 1000000, commit["max_bytes"]) // default-only leaf passes through
	push := m["push"].(map[string]any)
	assert.Equal(t, 10, push["max_commits"])

	paths := map[string]LayerName{}
	for _, c := range r.Provenance {
		paths[c.Path] = c.Layer
	}
	assert.Equal(t, LayerRepository, paths["commit.max_files"])
	assert.Equal(t, LayerDefault, paths["commit.max_bytes"])
}

func TestMixedTypesFallBackToScalarRule(t *testing.T) {
	layers := []Layer{
		layer(LayerLocal, map[string]any{"hooks": "disabled"}),
		layer(LayerDefault, map[string]any{"hooks": []any{"fmt", "lint"}}),
	}

	r, err := Resolve("hooks", layers)
	require.NoError(t, err)
	assert.Equal(t, "disabled", r.Value)
}

func TestLayerInputOrderIrrelevant(t *testing.T) {
	a := layer(LayerDefault, map[string]any{"v": 1})
	b := layer(LayerLocal, map[string]any{"v": 2})

	r1, err := Resolve("v", []Layer{a, b})
	require.NoError(t, err)
	r2, err := Resolve("v", []Layer{b, a})
	require.NoError(t, err)
	assert.Equal(t, r1.Value, r2.Value)
	assert.Equal(t, 2, r1.Value)
}

func TestUnreadableLayerReportedNotDropped(t *testing.T) {
	layers := []Layer{
		layer(LayerRepository, map[string]any{"max_tokens": 5000}),
		{Name: LayerOrganization, Err: errors.New("yaml: bad document")},
	}

	r, err := Resolve("max_tokens", layers)
	require.Error(t, err)
	var ue *UnreadableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, LayerOrganization, ue.Layer)
	// Value from the healthy layers is still available for the caller.
	assert.Equal(t, 5000, r.Value)
}

func TestKeyNotDefined(t *testing.T) {
	_, err := Resolve("nonexistent", []Layer{layer(LayerDefault, map[string]any{})})
	assert.ErrorIs(t, err, ErrNotDefined)
}

func TestResolveAll(t *testing.T) {
	layers := []Layer{
		layer(LayerLocal, map[string]any{"a": 1}),
		layer(LayerDefault, map[string]any{"a": 2, "b": "x"}),
	}

	all, err := ResolveAll(layers, Options{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all["a"].Value)
	assert.Equal(t, "x", all["b"].Value)
}

// Map merge over [A,B,C] must equal merging [A,B] and then merging the
// result with C, for the fixed precedence order.
func TestMapMergeAssociative(t *testing.T) {
	a := map[string]any{"cfg": map[string]any{"x": 1, "nest": map[string]any{"p": "a"}}}
	b := map[string]any{"cfg": map[string]any{"y": 2, "nest": map[string]any{"p": "b", "q": "b"}}}
	c := map[string]any{"cfg": map[string]any{"x": 3, "z": 4, "nest": map[string]any{"r": "c"}}}

	full, err := Resolve("cfg", []Layer{
		layer(LayerLocal, a), layer(LayerRepository, b), layer(LayerTeam, c),
	})
	require.NoError(t, err)

	ab, err := Resolve("cfg", []Layer{layer(LayerLocal, a), layer(LayerRepository, b)})
	require.NoError(t, err)
	staged, err := Resolve("cfg", []Layer{
		layer(LayerLocal, map[string]any{"cfg": ab.Value}),
		layer(LayerTeam, c),
	})
	require.NoError(t, err)

	assert.Equal(t, full.Value, staged.Value)
}
