package event

import (
	"github.com/xeipuuv/gojsonschema"
)

// Every event type has a fixed metadata schema. Metadata that does not
// validate is dropped before the row is written.
var metadataSchemas = map[Type]string{
	TypeInstanceCreated: `{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"owner": {"type": "string"},
			"location": {"type": "string"},
			"snapshotId": {"type": "string"}
		},
		"required": ["name", "owner"],
		"additionalProperties": false
	}`,
	TypeInstanceCreateFailed: `{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"owner": {"type": "string"},
			"reason": {"type": "string"}
		},
		"required": ["owner", "reason"],
		"additionalProperties": false
	}`,
	TypeStepReported: `{
		"type": "object",
		"properties": {"step": {"type": "string"}},
		"required": ["step"],
		"additionalProperties": false
	}`,
	TypeCallbackReceived: `{
		"type": "object",
		"properties": {"vmWallet": {"type": "string"}},
		"required": ["vmWallet"],
		"additionalProperties": false
	}`,
	TypeFundingFailed: `{
		"type": "object",
		"properties": {
			"asset": {"type": "string"},
			"reason": {"type": "string"}
		},
		"required": ["asset", "reason"],
		"additionalProperties": false
	}`,
	TypeMintSucceeded: `{
		"type": "object",
		"properties": {"mint": {"type": "string"}},
		"required": ["mint"],
		"additionalProperties": false
	}`,
	TypeMintFailed: `{
		"type": "object",
		"properties": {"reason": {"type": "string"}},
		"required": ["reason"],
		"additionalProperties": false
	}`,
	TypeIdentityTransferFailed: `{
		"type": "object",
		"properties": {
			"mint": {"type": "string"},
			"reason": {"type": "string"}
		},
		"required": ["mint", "reason"],
		"additionalProperties": false
	}`,
	TypeInstanceRenamed: `{
		"type": "object",
		"properties": {
			"from": {"type": "string"},
			"to": {"type": "string"}
		},
		"required": ["from", "to"],
		"additionalProperties": false
	}`,
	TypeInstanceAgentUpdated: `{
		"type": "object",
		"properties": {
			"displayName": {"type": "string"},
			"description": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	TypeInstanceExtended: `{
		"type": "object",
		"properties": {"expiresAt": {"type": "string"}},
		"required": ["expiresAt"],
		"additionalProperties": false
	}`,
	TypeInstanceRestarted: `{
		"type": "object",
		"additionalProperties": false
	}`,
	TypeInstanceDeleted: `{
		"type": "object",
		"properties": {"reason": {"type": "string", "enum": ["user", "expired"]}},
		"required": ["reason"],
		"additionalProperties": false
	}`,
	TypeInstanceClaimed: `{
		"type": "object",
		"properties": {
			"wallet": {"type": "string"},
			"previousOwner": {"type": "string"}
		},
		"required": ["wallet", "previousOwner"],
		"additionalProperties": false
	}`,
	TypeInstanceRecovered: `{
		"type": "object",
		"properties": {
			"mint": {"type": "string"},
			"wallet": {"type": "string"}
		},
		"required": ["mint", "wallet"],
		"additionalProperties": false
	}`,
}

func compileSchemas() map[Type]*gojsonschema.Schema {
	compiled := make(map[Type]*gojsonschema.Schema, len(metadataSchemas))

	for eventType, document := range metadataSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
		if err != nil {
			panic("Invalid metadata schema for event type " + string(eventType))
		}
		compiled[eventType] = schema
	}

	return compiled
}
