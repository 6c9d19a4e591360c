package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const infraJSON = `{
	"alb_dns_name": {"sensitive": false, "type": "string", "value": "demo-alb-123.ap-northeast-2.elb.amazonaws.com"},
	"instance_ids": {"value": ["i-0a", "i-0b"]},
	"nothing": null
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		expected      string
		expectedError bool
	}{
		{name: "Nested property", path: "$.alb_dns_name.value", expected: "demo-alb-123.ap-northeast-2.elb.amazonaws.com"},
		{name: "Without dollar", path: "alb_dns_name.type", expected: "string"},
		{name: "Bracket notation", path: "$['alb_dns_name']['sensitive']", expected: "false"},
		{name: "Array element", path: "$.instance_ids.value[1]", expected: "i-0b"},
		{name: "Null value", path: "$.nothing", expected: "null"},
		{name: "Missing path", path: "$.alb_dns_name.missing", expectedError: true},
		{name: "Empty path", path: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(infraJSON, tt.path)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtract_InvalidInput(t *testing.T) {
	_, err := Extract("", "$.a")
	assert.Error(t, err)

	_, err = Extract("{not json", "$.a")
	assert.Error(t, err)
}

func TestConvertToGjsonPath(t *testing.T) {
	tests := map[string]string{
		"$":                  "@this",
		"$.a.b":              "a.b",
		"$.a[0].b":           "a.0.b",
		"$['a']['b']":        "a.b",
		`$["a"].b`:           "a.b",
		"alb_dns_name.value": "alb_dns_name.value",
	}
	for in, want := range tests {
		assert.Equal(t, want, convertToGjsonPath(in), in)
	}
}
