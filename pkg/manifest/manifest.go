// Package manifest loads and validates the governance manifest: the
// declaration of gates, sensitive-operation rules, and protected branches
// that the gate engine enforces. Manifests come either from a single YAML
// file or assembled from the layered standards, and are always validated
// against the embedded JSON Schema before use.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/acho-dev/acho/pkg/gate"
	"github.com/acho-dev/acho/pkg/standards"
)

// CoreVersion is the enforcement core's own version, checked against a
// manifest's min_core_version.
const CoreVersion = "1.2.0"

// Manifest is the validated governance declaration for one repository.
type Manifest struct {
	Version           string               `json:"version" yaml:"version"`
	MinCoreVersion    string               `json:"min_core_version,omitempty" yaml:"min_core_version,omitempty"`
	ProtectedBranches []string             `json:"protected_branches,omitempty" yaml:"protected_branches,omitempty"`
	Gates             []gate.Definition    `json:"gates,omitempty" yaml:"gates,omitempty"`
	SensitiveRules    []gate.SensitiveRule `json:"sensitive_rules,omitempty" yaml:"sensitive_rules,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	return fromDocument(doc)
}

// FromLayers assembles a manifest from the layered standards. Gate lists,
// rule lists, and protected branches concatenate across layers most
// specific first; the policy version is a scalar won by the most specific
// layer. An unreadable layer fails assembly — proceeding on a partial
// policy would silently weaken enforcement.
func FromLayers(layers []standards.Layer) (*Manifest, error) {
	doc := map[string]any{}
	for _, key := range []string{"version", "min_core_version", "protected_branches", "gates", "sensitive_rules"} {
		r, err := standards.Resolve(key, layers)
		if err != nil {
			if errors.Is(err, standards.ErrNotDefined) {
				continue
			}
			return nil, fmt.Errorf("manifest: resolve %q: %w", key, err)
		}
		doc[key] = r.Value
	}
	return fromDocument(doc)
}

func fromDocument(doc any) (*Manifest, error) {
	normalized, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(normalized); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, fmt.Errorf("manifest: policy version %q is not semver: %w", m.Version, err)
	}
	if err := m.checkCoreVersion(); err != nil {
		return nil, err
	}
	return &m, nil
}

// normalize round-trips a YAML-decoded document through encoding/json so
// schema validation sees canonical JSON types.
func normalize(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("manifest: normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("manifest: normalize: %w", err)
	}
	return out, nil
}

func validateSchema(doc any) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://acho.schemas.local/manifest.schema.json"
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("manifest: schema load: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("manifest: schema compile: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("manifest: invalid: %w", err)
	}
	return nil
}

func (m *Manifest) checkCoreVersion() error {
	if m.MinCoreVersion == "" {
		return nil
	}
	min, err := semver.NewVersion(m.MinCoreVersion)
	if err != nil {
		return fmt.Errorf("manifest: min_core_version %q is not semver: %w", m.MinCoreVersion, err)
	}
	core := semver.MustParse(CoreVersion)
	if core.LessThan(min) {
		return fmt.Errorf("manifest: requires core >= %s, running %s; upgrade the tool", min, core)
	}
	return nil
}

// GateConfig converts the manifest into the gate engine's configuration.
func (m *Manifest) GateConfig() gate.Config {
	return gate.Config{
		PolicyVersion:     m.Version,
		ProtectedBranches: m.ProtectedBranches,
		Gates:             m.Gates,
		SensitiveRules:    m.SensitiveRules,
	}
}
