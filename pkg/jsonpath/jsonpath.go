// Package jsonpath extracts values from JSON documents with a small
// JSONPath subset backed by gjson.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract extracts a value from a JSON string using a JSONPath expression
func Extract(json string, path string) (string, error) {
	if json == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.Valid(json) {
		return "", fmt.Errorf("invalid JSON")
	}

	result := gjson.Get(json, convertToGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}

	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// convertToGjsonPath converts a JSONPath expression to a gjson path format
//
//	JSONPath: $.users[0].name
//	gjson:    users.0.name
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}
	path = strings.TrimPrefix(path, ".")

	// Bracket notation with quotes: ['name'] or ["name"]
	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)

	// Array notation [n] becomes .n
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	return strings.TrimPrefix(path, ".")
}
