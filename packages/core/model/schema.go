package model

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const definitions = `
"definitions": {
	"info": {
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"description": {"type": "string"},
			"version": {"type": "string"}
		}
	},
	"environment": {
		"type": "object",
		"properties": {
			"key": {"type": "string"},
			"info": {"$ref": "#/definitions/info"},
			"server": {
				"type": "object",
				"properties": {"uri": {"type": "string"}},
				"required": ["uri"]
			},
			"variables": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"value": {"type": "string"},
						"enabled": {"type": "boolean"}
					},
					"required": ["name"]
				}
			},
			"encapsulated": {"type": "boolean"}
		}
	},
	"step": {
		"type": "object",
		"properties": {
			"kind": {"type": "string", "minLength": 1},
			"enabled": {"type": "boolean"}
		},
		"required": ["kind"]
	},
	"flow": {
		"type": "object",
		"properties": {
			"trigger": {"enum": ["request", "response"]},
			"actions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"condition": {
							"type": "object",
							"properties": {
								"source": {"enum": ["url", "method", "headers", "body", "status"]},
								"operator": {"type": "string"},
								"value": {"type": "string"},
								"alwaysPass": {"type": "boolean"}
							}
						},
						"steps": {"type": "array", "items": {"$ref": "#/definitions/step"}}
					}
				}
			}
		},
		"required": ["trigger"]
	},
	"item": {
		"type": "object",
		"properties": {
			"kind": {"enum": ["folder", "request"]},
			"key": {"type": "string"},
			"info": {"$ref": "#/definitions/info"},
			"method": {"type": "string", "minLength": 1},
			"url": {"type": "string"},
			"headers": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {"name": {"type": "string"}, "value": {"type": "string"}},
					"required": ["name"]
				}
			},
			"payload": {"type": "string"},
			"authorization": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"type": {"enum": ["basic", "bearer", "api-key", "oauth2", "digest", "aws", "ntlm", "client-certificate"]},
						"enabled": {"type": "boolean"},
						"config": {"type": "object"}
					},
					"required": ["type"]
				}
			},
			"config": {"type": "object"},
			"flows": {"type": "array", "items": {"$ref": "#/definitions/flow"}},
			"items": {"type": "array", "items": {"$ref": "#/definitions/item"}},
			"environments": {"type": "array", "items": {"$ref": "#/definitions/environment"}}
		},
		"required": ["kind"]
	}
}`

// ProjectSchema is the JSON schema of a project document
const ProjectSchema = `{
"$schema": "http://json-schema.org/draft-07/schema#",
"type": "object",
"properties": {
	"key": {"type": "string"},
	"info": {"$ref": "#/definitions/info"},
	"items": {"type": "array", "items": {"$ref": "#/definitions/item"}},
	"environments": {"type": "array", "items": {"$ref": "#/definitions/environment"}},
	"certificates": {
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"key": {"type": "string"},
				"cert": {"type": "string"},
				"certKey": {"type": "string"}
			},
			"required": ["cert", "certKey"]
		}
	}
},
"required": ["info"],
` + definitions + `
}`

// EnvironmentSchema is the JSON schema of a standalone environment file
const EnvironmentSchema = `{
"$schema": "http://json-schema.org/draft-07/schema#",
"allOf": [{"$ref": "#/definitions/environment"}],
` + definitions + `
}`

// ValidationError lists the schema violations of a document
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validate checks a JSON document against schema
func Validate(document []byte, schema string) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return &ValidationError{Errors: errs}
}
