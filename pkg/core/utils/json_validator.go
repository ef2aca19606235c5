package utils

import (
	"encoding/json"
	"fmt"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// RepairJSON fixes common hand-editing mistakes in JSON config files.
// Uses github.com/RealAlexandreAI/json-repair. Handles:
// - Trailing commas
// - Single quotes instead of double quotes
// - Unquoted keys
// - Comments
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// ParseHJSONToStruct parses Hjson directly into a Go struct.
// The value is round-tripped through standard JSON so that `json` struct
// tags apply exactly as they would for a .json file.
func ParseHJSONToStruct(hjsonData string, schema interface{}) error {
	var generic interface{}
	if err := hjson.Unmarshal([]byte(hjsonData), &generic); err != nil {
		return fmt.Errorf("HJSON_UNMARSHAL_ERROR: %v", err)
	}
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("JSON_MARSHAL_ERROR: %v", err)
	}
	if err := json.Unmarshal(jsonBytes, schema); err != nil {
		return fmt.Errorf("HJSON_UNMARSHAL_ERROR: %v", err)
	}
	return nil
}

// DecodeLenient decodes a JSON-ish config document into schema.
// Order of attempts:
// 1. Standard JSON
// 2. Hjson (comments, unquoted keys and strings)
// 3. JSON repair (broken quoting, unclosed brackets)
//
// The error from the strict attempt is returned when every strategy fails,
// since it points at the first real problem in the file.
func DecodeLenient(input []byte, schema interface{}) error {
	strictErr := json.Unmarshal(input, schema)
	if strictErr == nil {
		return nil
	}

	if err := ParseHJSONToStruct(string(input), schema); err == nil {
		return nil
	}

	if repaired, err := RepairJSON(string(input)); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return nil
		}
	}

	return fmt.Errorf("LENIENT_PARSE_FAILED: %w", strictErr)
}
