package api

import "github.com/xeipuuv/gojsonschema"

const destinationSchema = `{
	"type": "object",
	"properties": {
		"url":         {"type": "string"},
		"serviceKey":  {"type": "string"},
		"databaseUrl": {"type": "string"}
	},
	"anyOf": [
		{"required": ["url"], "properties": {"url": {"minLength": 1}}},
		{"required": ["databaseUrl"], "properties": {"databaseUrl": {"minLength": 1}}}
	],
	"additionalProperties": false
}`

const cloneRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["destination"],
	"properties": {
		"destination": ` + destinationSchema + `,
		"source": {
			"type": "object",
			"required": ["url"],
			"properties": {
				"url":        {"type": "string", "minLength": 1},
				"serviceKey": {"type": "string"}
			},
			"additionalProperties": false
		},
		"includeData":        {"type": "boolean"},
		"resetDestination":   {"type": "boolean"},
		"skipValidation":     {"type": "boolean"},
		"preferCliExecution": {"type": "boolean"}
	},
	"additionalProperties": false
}`

const importRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["sql"],
	"properties": {
		"sql": {"type": "string"},
		"destination": ` + destinationSchema + `,
		"options": {
			"type": "object",
			"properties": {
				"dryRun":          {"type": "boolean"},
				"continueOnError": {"type": "boolean"},
				"skipValidation":  {"type": "boolean"}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

var (
	cloneSchema  = mustSchema(cloneRequestSchema)
	importSchema = mustSchema(importRequestSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("invalid request schema: " + err.Error())
	}
	return s
}

// validateBody checks body against schema and returns the violations.
func validateBody(schema *gojsonschema.Schema, body []byte) ([]string, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}
