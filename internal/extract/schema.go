package extract

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/tradedocs-cli/internal/model"
)

// recordSchema is the soft contract for a merged record. Mismatches are
// warnings, not failures: minor model drift must not block the user from
// seeing best-effort data.
const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["invoiceNumber", "lineItems"],
	"properties": {
		"invoiceNumber": {"type": "string", "minLength": 1},
		"invoiceDate": {"type": "string"},
		"currency": {"type": "string"},
		"incoterm": {"type": "string"},
		"totalAmount": {"type": "number", "minimum": 0},
		"totalNetWeight": {"type": "number", "minimum": 0},
		"totalGrossWeight": {"type": "number", "minimum": 0},
		"packageCount": {"type": "number", "minimum": 0},
		"lineItems": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["description"],
				"properties": {
					"description": {"type": "string"},
					"hsCode": {"type": "string"},
					"quantity": {"type": "number", "minimum": 0},
					"unitPrice": {"type": "number", "minimum": 0},
					"amount": {"type": "number", "minimum": 0},
					"netWeight": {"type": "number", "minimum": 0},
					"unitNetWeight": {"type": "number", "minimum": 0},
					"grossWeight": {"type": "number", "minimum": 0}
				}
			}
		}
	}
}`

var (
	compiledSchema     *jsonschema.Schema
	compileSchemaOnce  sync.Once
	compileSchemaError error
)

// checkSchema validates the merged record against the soft contract.
// A non-nil return is advisory; the caller logs it and continues.
func checkSchema(rec *model.InvoiceRecord) error {
	compileSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("record.json", bytes.NewReader([]byte(recordSchema))); err != nil {
			compileSchemaError = eris.Wrap(err, "extract: add schema resource")
			return
		}
		s, err := compiler.Compile("record.json")
		if err != nil {
			compileSchemaError = eris.Wrap(err, "extract: compile schema")
			return
		}
		compiledSchema = s
	})
	if compileSchemaError != nil {
		return compileSchemaError
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "extract: marshal record for validation")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return eris.Wrap(err, "extract: unmarshal record for validation")
	}
	if err := compiledSchema.Validate(v); err != nil {
		return eris.Wrap(err, "extract: record does not match schema")
	}
	return nil
}
