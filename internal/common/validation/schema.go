// Package validation checks externally supplied catalog files against a
// JSON schema before they are trusted by the dialogue core.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// catalogSchema describes the intent catalog document: a list of intents,
// each with an ordered slot list, dispatch target and prompt texts.
const catalogSchema = `{
	"type": "object",
	"required": ["intents"],
	"properties": {
		"intents": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "dispatch"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"dispatch": {
						"type": "string",
						"enum": ["balance", "transfer", "block_card", "unblock_card", "history", "atm_lookup", "loan_info", "none"]
					},
					"requires_pin": {"type": "boolean"},
					"requires_confirm": {"type": "boolean"},
					"confirm_template": {"type": "string"},
					"slots": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name", "type"],
							"properties": {
								"name": {"type": "string", "minLength": 1},
								"type": {"type": "string", "enum": ["account", "amount", "pin", "card"]},
								"prompt": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// ValidateCatalogJSON validates raw catalog JSON against the schema.
// Returns a single error naming every violation.
func ValidateCatalogJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(catalogSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("catalog schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("catalog is invalid: %s", strings.Join(msgs, "; "))
	}

	return nil
}
