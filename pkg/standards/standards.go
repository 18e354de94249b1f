// Package standards resolves layered governance configuration.
//
// Configuration arrives as an ordered set of read-only layer snapshots
// (local override, repository, team, organization, framework default).
// Resolve merges them per key with per-type semantics: scalars are won
// outright by the most specific layer, lists are concatenated most specific
// first, and maps merge recursively. The resolver is a pure function over
// already-loaded snapshots; loading and caching live in collaborators.
package standards

import (
	"errors"
	"fmt"
)

// LayerName identifies one configuration source.
type LayerName string

const (
	LayerLocal        LayerName = "local"
	LayerRepository   LayerName = "repository"
	LayerTeam         LayerName = "team"
	LayerOrganization LayerName = "organization"
	LayerDefault      LayerName = "default"
)

// Precedence lists layer names most specific first. Layers whose name is not
// listed here sort after all known layers, in their supplied order.
var Precedence = []LayerName{
	LayerLocal,
	LayerRepository,
	LayerTeam,
	LayerOrganization,
	LayerDefault,
}

// Layer is one read-only configuration snapshot. Err records a read or parse
// failure; an errored layer contributes nothing but is never dropped
// silently — Resolve reports it and the caller decides whether to proceed.
type Layer struct {
	Name LayerName
	Doc  map[string]any
	Err  error
}

// Contribution records which layer supplied which part of a resolved value.
// Path is a dotted path inside the value; the empty path is the whole value.
type Contribution struct {
	Layer LayerName `json:"layer"`
	Path  string    `json:"path"`
}

// Resolved is the merge outcome for one key with full provenance.
type Resolved struct {
	Key        string         `json:"key"`
	Value      any            `json:"value"`
	Provenance []Contribution `json:"provenance"`
}

// Options tunes resolution. Duplicates in concatenated lists are preserved
// unless Dedupe is set; deduplication keeps the first (most specific)
// occurrence.
type Options struct {
	Dedupe bool
}

// ErrNotDefined reports that no readable layer defines the requested key.
var ErrNotDefined = errors.New("standards: key not defined in any layer")

// UnreadableError is the structured failure for a corrupt or unreadable
// layer. Resolution continues over the remaining layers; the caller decides
// whether a partial result is acceptable.
type UnreadableError struct {
	Layer LayerName
	Err   error
}

func (e *UnreadableError) Error() string {
	return fmt.Sprintf("standards: layer %q unreadable: %v", e.Layer, e.Err)
}

func (e *UnreadableError) Unwrap() error { return e.Err }

func rank(name LayerName) int {
	for i, n := range Precedence {
		if n == name {
			return i
		}
	}
	return len(Precedence)
}

// orderLayers returns the readable layers in precedence order and an
// aggregated error for the unreadable ones (nil when all are healthy).
func orderLayers(layers []Layer) ([]Layer, error) {
	ordered := make([]Layer, 0, len(layers))
	var errs []error
	for _, l := range layers {
		if l.Err != nil {
			errs = append(errs, &UnreadableError{Layer: l.Name, Err: l.Err})
			continue
		}
		ordered = append(ordered, l)
	}
	// Stable insertion sort by precedence rank; layer sets are tiny.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank(ordered[j].Name) < rank(ordered[j-1].Name); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered, errors.Join(errs...)
}
