package paramfile

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	pcerrors "github.com/systmms/paramctl/internal/errors"
)

// fileSchema structurally validates a parameter file before decoding, so
// shape errors surface with schema messages instead of decode failures
// halfway into a record. Dot-keys other than the known directives pass with
// any shape; Load skips them.
const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    ".BASEPATH": {"type": "string"},
    ".INPUTS": {"$ref": "#/definitions/inputs"},
    ".INPUT": {"$ref": "#/definitions/inputs"},
    ".COMMON": {"type": "object"}
  },
  "patternProperties": {
    "^\\.": {}
  },
  "additionalProperties": {
    "oneOf": [
      {"type": ["string", "number", "boolean"]},
      {"type": "array", "items": {"type": ["string", "number", "boolean"]}},
      {
        "type": "object",
        "properties": {
          "Type": {"enum": ["String", "StringList", "SecureString"]},
          "Value": {
            "oneOf": [
              {"type": ["string", "number", "boolean"]},
              {"type": "array", "items": {"type": ["string", "number", "boolean"]}}
            ]
          },
          "EncryptedValue": {"type": "string"},
          "Input": {"type": "string"},
          "KeyId": {"type": "string"},
          "AllowedPattern": {"type": "string"},
          "Description": {"type": "string"},
          "Overwrite": {"type": "boolean"},
          "Disable": {"type": ["boolean", "string"]},
          "Disabled": {"type": ["boolean", "string"]}
        },
        "additionalProperties": false
      }
    ]
  },
  "definitions": {
    "inputs": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [
          {"enum": ["String", "StringList", "SecureString"]},
          {
            "type": "object",
            "properties": {
              "Type": {"enum": ["String", "StringList", "SecureString"]},
              "Pattern": {"type": "string"},
              "Description": {"type": "string"},
              "Default": {
                "oneOf": [
                  {"type": ["string", "number", "boolean"]},
                  {"type": "array", "items": {"type": ["string", "number", "boolean"]}}
                ]
              }
            },
            "additionalProperties": false
          }
        ]
      }
    }
  }
}`

func validateDocument(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return pcerrors.UserError{
			Message:    "Failed to parse parameter file",
			Details:    err.Error(),
			Suggestion: "Check for YAML indentation errors and missing quotes",
		}
	}
	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(fileSchema),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var details []string
		for _, e := range result.Errors() {
			details = append(details, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return pcerrors.ValidationError{
			Message: "parameter file does not match the expected shape: " + strings.Join(details, "; "),
		}
	}
	return nil
}
