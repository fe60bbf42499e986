// Package monitor validates inbound payment requests against an embedded
// JSON schema before they reach the orchestration core.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// intentSchema describes the createPayment request contract. Amount is a
// decimal string; provider must be one of the registered adapters.
const intentSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["amount", "currency", "provider"],
	"properties": {
		"amount": {
			"type": "string",
			"pattern": "^[0-9]+(\\.[0-9]+)?$"
		},
		"currency": {
			"type": "string",
			"minLength": 3,
			"maxLength": 3
		},
		"provider": {
			"type": "string",
			"enum": ["xendit", "paystack", "paypal", "moneygram", "binance"]
		},
		"payerEmail": {
			"type": "string",
			"format": "email"
		},
		"description": {
			"type": "string",
			"maxLength": 1024
		},
		"externalReference": {
			"type": "string",
			"minLength": 1,
			"maxLength": 128
		},
		"metadata": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		}
	},
	"additionalProperties": false
}`

// ContractMonitor validates request bodies against the intent schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the embedded schema.
func NewContractMonitor() (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(intentSchema))
	if err != nil {
		return nil, fmt.Errorf("monitor: compile intent schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks a request body against the schema. It returns true if
// valid, or false and the list of violations.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validate request: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violations into one operator-readable string.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "validation errors: " + strings.Join(violations, "; ")
}
