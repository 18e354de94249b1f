package manifest

// schemaJSON is the embedded JSON Schema every manifest must satisfy,
// whether it came from a file or from the layered standards.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version"],
  "properties": {
    "version": { "type": "string", "minLength": 1 },
    "min_core_version": { "type": "string" },
    "protected_branches": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "gates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "stage", "level"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "stage": {
            "enum": ["pre-commit", "pre-push", "pre-merge", "session-start", "session-end"]
          },
          "level": { "enum": ["mandatory", "warn", "conditional"] },
          "tool": { "type": "string" },
          "args": { "type": "array", "items": { "type": "string" } },
          "trigger": { "type": "string" },
          "remediation": { "type": "string" }
        },
        "additionalProperties": false
      }
    },
    "sensitive_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pattern", "category"],
        "properties": {
          "pattern": { "type": "string", "minLength": 1 },
          "category": { "enum": ["destructive", "sensitive-file", "infrastructure"] },
          "description": { "type": "string" }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": true
}`
