package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/wesleyorama2/infraload/pkg/jsonpath"
	"github.com/wesleyorama2/infraload/pkg/jsonschema"
)

// ALBPath is where the load balancer DNS name lives in an infra config
// file (terraform output -json).
const ALBPath = "$.alb_dns_name.value"

// infraSchema accepts any terraform output that carries a non-empty
// alb_dns_name.
var infraSchema = jsonschema.MustCompile("infra_config.json", `{
	"type": "object",
	"required": ["alb_dns_name"],
	"properties": {
		"alb_dns_name": {
			"type": "object",
			"required": ["value"],
			"properties": {
				"value": { "type": "string", "minLength": 1 }
			}
		}
	}
}`)

// LookupALBURL reads the load balancer address from an infra config file.
func LookupALBURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read infra config: %w", err)
	}

	if errs := infraSchema.Validate(data); len(errs) > 0 {
		return "", fmt.Errorf("invalid infra config %s: %w", path, errs)
	}

	value, err := jsonpath.Extract(string(data), ALBPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s from %s: %w", ALBPath, path, err)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s is empty in %s", ALBPath, path)
	}
	return value, nil
}
