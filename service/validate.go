package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bobfox23/Certificate-tool/model"
)

// extractionSchema is the structural contract for model output. The
// three report fields and each instance's gameName/gameCode must be
// present (null is fine, absent is not); gameInstances and files must
// be arrays; every file entry needs a string name.
const extractionSchema = `{
	"type": "object",
	"required": ["reportNumber", "certificationDate", "supplierRegistrationNumber", "gameInstances"],
	"properties": {
		"reportNumber": {"type": ["string", "null"]},
		"certificationDate": {"type": ["string", "null"]},
		"supplierRegistrationNumber": {"type": ["string", "null"]},
		"gameInstances": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["gameName", "gameCode", "files"],
				"properties": {
					"gameName": {"type": ["string", "null"]},
					"gameCode": {"type": ["string", "null"]},
					"files": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name"],
							"properties": {
								"name": {"type": "string"},
								"md5": {"type": ["string", "null"]},
								"sha1": {"type": ["string", "null"]}
							}
						}
					}
				}
			}
		}
	}
}`

var compiledExtractionSchema = mustCompileSchema(extractionSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader([]byte(src))); err != nil {
		panic(fmt.Sprintf("add extraction schema: %v", err))
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		panic(fmt.Sprintf("compile extraction schema: %v", err))
	}
	return schema
}

// ValidateExtraction checks a decoded model response against the
// extraction schema and coerces it into a fully defaulted
// ExtractedInfo. rawText is kept (bounded) on failures for diagnosis.
func ValidateExtraction(raw any, rawText string) (*model.ExtractedInfo, error) {
	if err := compiledExtractionSchema.Validate(raw); err != nil {
		return nil, &SchemaError{Reason: err.Error(), Raw: rawText}
	}

	// Re-encode the validated value and decode into the typed model.
	// Absent optionals become nil pointers, which marshal as explicit
	// nulls downstream.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("re-encode: %v", err), Raw: rawText}
	}

	var info model.ExtractedInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("decode: %v", err), Raw: rawText}
	}

	if info.GameInstances == nil {
		info.GameInstances = []model.GameInstance{}
	}
	for i := range info.GameInstances {
		if info.GameInstances[i].Files == nil {
			info.GameInstances[i].Files = []model.FileDetail{}
		}
	}

	return &info, nil
}
