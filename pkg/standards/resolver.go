package standards

import (
	"reflect"
)

// layerValue pairs a value with the layer that defined it.
type layerValue struct {
	layer LayerName
	value any
}

// Resolve merges one key across the given layers with default options.
// A returned UnreadableError (possibly joined) accompanies the best-effort
// value computed from the healthy layers; it never replaces it.
func Resolve(key string, layers []Layer) (Resolved, error) {
	return ResolveWith(key, layers, Options{})
}

// ResolveWith merges one key across the given layers.
func ResolveWith(key string, layers []Layer, opts Options) (Resolved, error) {
	ordered, layerErr := orderLayers(layers)

	var values []layerValue
	for _, l := range ordered {
		if v, ok := l.Doc[key]; ok {
			values = append(values, layerValue{layer: l.Name, value: v})
		}
	}
	if len(values) == 0 {
		if layerErr != nil {
			return Resolved{Key: key}, layerErr
		}
		return Resolved{Key: key}, ErrNotDefined
	}

	res := Resolved{Key: key}
	res.Value = merge(values, "", &res.Provenance, opts)
	return res, layerErr
}

// ResolveAll merges every key defined in any readable layer.
func ResolveAll(layers []Layer, opts Options) (map[string]Resolved, error) {
	ordered, layerErr := orderLayers(layers)

	seen := map[string]bool{}
	out := make(map[string]Resolved)
	for _, l := range ordered {
		for key := range l.Doc {
			if seen[key] {
				continue
			}
			seen[key] = true
			r, err := ResolveWith(key, ordered, opts)
			if err != nil {
				// ordered contains no unreadable layers, so the only
				// possible error here would be ErrNotDefined, which
				// cannot happen for a key taken from a layer doc.
				return nil, err
			}
			out[key] = r
		}
	}
	return out, layerErr
}

// merge applies the per-type rules to the defining values, most specific
// first. Mixed-type definitions fall back to the scalar rule: the most
// specific layer wins the value outright.
func merge(values []layerValue, path string, prov *[]Contribution, opts Options) any {
	if allMaps(values) {
		return mergeMaps(values, path, prov, opts)
	}
	if allLists(values) {
		return mergeLists(values, path, prov, opts)
	}
	*prov = append(*prov, Contribution{Layer: values[0].layer, Path: path})
	return values[0].value
}

func allMaps(values []layerValue) bool {
	for _, v := range values {
		if _, ok := v.value.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func allLists(values []layerValue) bool {
	for _, v := range values {
		if _, ok := v.value.([]any); !ok {
			return false
		}
	}
	return true
}

// mergeMaps merges recursively; keys present in only one layer pass through
// untouched, shared keys recurse with the same layer ordering.
func mergeMaps(values []layerValue, path string, prov *[]Contribution, opts Options) map[string]any {
	out := make(map[string]any)
	for _, lv := range values {
		m := lv.value.(map[string]any)
		for key := range m {
			if _, done := out[key]; done {
				continue
			}
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			var sub []layerValue
			for _, inner := range values {
				if v, ok := inner.value.(map[string]any)[key]; ok {
					sub = append(sub, layerValue{layer: inner.layer, value: v})
				}
			}
			out[key] = merge(sub, childPath, prov, opts)
		}
	}
	return out
}

// mergeLists concatenates most specific first, preserving each layer's
// internal order. Duplicates survive unless opts.Dedupe is set.
func mergeLists(values []layerValue, path string, prov *[]Contribution, opts Options) []any {
	var out []any
	for _, lv := range values {
		list := lv.value.([]any)
		if len(list) == 0 {
			continue
		}
		*prov = append(*prov, Contribution{Layer: lv.layer, Path: path})
		out = append(out, list...)
	}
	if !opts.Dedupe {
		return out
	}
	deduped := make([]any, 0, len(out))
	for _, item := range out {
		dup := false
		for _, kept := range deduped {
			if reflect.DeepEqual(item, kept) {
				dup = true
				break
			}
		}
		if !dup {
			deduped = append(deduped, item)
		}
	}
	return deduped
}
