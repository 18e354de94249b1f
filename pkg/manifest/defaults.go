package manifest

import "github.com/acho-dev/acho/pkg/standards"

// DefaultLayer is the framework-default configuration layer: the floor
// every repository inherits unless a more specific layer overrides or
// extends it.
func DefaultLayer() standards.Layer {
	return standards.Layer{
		Name: standards.LayerDefault,
		Doc: map[string]any{
			"version":            "1.0.0",
			"protected_branches": []any{"main", "master"},
			"gates": []any{
				map[string]any{
					"id":          "secret-scan",
					"stage":       "pre-commit",
					"level":       "mandatory",
					"tool":        "gitleaks",
					"args":        []any{"protect", "--staged"},
					"remediation": "remove the detected secret from the staged changes, rotate it if it was ever committed, and re-run",
				},
			},
			"sensitive_rules": []any{
				map[string]any{
					"pattern":     `(^|/)\.env(\..+)?$`,
					"category":    "sensitive-file",
					"description": "environment files routinely hold credentials",
				},
				map[string]any{
					"pattern":     `(^|/)id_(rsa|ed25519|ecdsa)$|\.pem$|\.key$`,
					"category":    "sensitive-file",
					"description": "private key material",
				},
				map[string]any{
					"pattern":     `rm\s+-[a-z]*r[a-z]*f|git\s+push\s+--force|git\s+reset\s+--hard`,
					"category":    "destructive",
					"description": "irreversible deletion or history rewrite",
				},
				map[string]any{
					"pattern":     `terraform\s+(destroy|apply)|kubectl\s+(delete|apply)|DROP\s+(TABLE|DATABASE)`,
					"category":    "infrastructure",
					"description": "infrastructure mutation",
				},
			},
		},
	}
}
