package standards

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acho-dev/acho/pkg/canonicalize"
)

// LoadLayerFile reads one YAML layer snapshot. A missing file yields an
// empty, healthy layer (absent layers are normal); a present but unreadable
// or malformed file yields a layer with Err set so resolution can report it
// instead of dropping it.
func LoadLayerFile(name LayerName, path string) Layer {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Layer{Name: name, Doc: map[string]any{}}
		}
		return Layer{Name: name, Err: fmt.Errorf("read %s: %w", path, err)}
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Layer{Name: name, Err: fmt.Errorf("parse %s: %w", path, err)}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return Layer{Name: name, Doc: doc}
}

// SetHash returns a deterministic digest of the ordered layer set, used to
// key the derived resolved-standards cache. Unreadable layers hash their
// error text so a repaired layer invalidates stale cache rows.
func SetHash(layers []Layer) (string, error) {
	type entry struct {
		Name LayerName      `json:"name"`
		Doc  map[string]any `json:"doc,omitempty"`
		Err  string         `json:"err,omitempty"`
	}
	entries := make([]entry, 0, len(layers))
	for _, l := range layers {
		e := entry{Name: l.Name, Doc: l.Doc}
		if l.Err != nil {
			e.Err = l.Err.Error()
		}
		entries = append(entries, e)
	}
	return canonicalize.Hash(entries)
}
