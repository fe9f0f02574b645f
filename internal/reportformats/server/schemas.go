package server

import (
	"encoding/json"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tansive/reportformatsrv/internal/common/httpx"
)

// Request schemas only check shape. Value checks stay with the registry so
// that the numeric result codes are preserved.
const createSchemaJSON = `{
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string"},
		"summary": {"type": "string"},
		"description": {"type": "string"},
		"extension": {"type": "string"},
		"content_type": {"type": "string"},
		"signature": {"type": "string"},
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "pattern": "^[^/\\\\]*$", "not": {"enum": [".", ".."]}},
					"content": {"type": "string", "contentEncoding": "base64"}
				},
				"required": ["name", "content"],
				"additionalProperties": false
			}
		},
		"params": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"type": {"type": "string"},
					"value": {"type": "string"},
					"fallback": {"type": ["string", "null"]},
					"min": {"type": "string"},
					"max": {"type": "string"},
					"options": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["name"],
				"additionalProperties": false
			}
		}
	},
	"additionalProperties": false
}`

const modifySchemaJSON = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"summary": {"type": "string"},
		"active": {"type": "boolean"},
		"predefined": {"type": "string"},
		"param_name": {"type": "string"},
		"param_value": {"type": "string"},
		"param_value_base64": {"type": "boolean"}
	},
	"additionalProperties": false
}`

const copySchemaJSON = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"}
	},
	"additionalProperties": false
}`

const generateSchemaJSON = `{
	"type": "object",
	"properties": {
		"report": {"type": "string", "minLength": 1}
	},
	"required": ["report"],
	"additionalProperties": false
}`

var (
	createSchema   = jsonschema.MustCompileString("create.json", createSchemaJSON)
	modifySchema   = jsonschema.MustCompileString("modify.json", modifySchemaJSON)
	copySchema     = jsonschema.MustCompileString("copy.json", copySchemaJSON)
	generateSchema = jsonschema.MustCompileString("generate.json", generateSchemaJSON)
)

// decodeBody validates the request body against schema and decodes it into
// dst. An empty body is treated as an empty object.
func decodeBody(r *http.Request, schema *jsonschema.Schema, dst any) error {
	body, err := httpx.ReadRequestBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ErrInvalidBody.MsgErr("request is not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return ErrInvalidBody.Msg(err.Error())
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return ErrInvalidBody.Err(err)
	}
	return nil
}
