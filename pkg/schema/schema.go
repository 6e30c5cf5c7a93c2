// Package schema synthesizes the minimal JSON instance that satisfies a
// JSON Schema draft-07 document, used by bindCredential to produce sample
// credential data without a subject-supplied payload.
package schema

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Sample synthesizes the simplest instance conforming to a decoded JSON
// Schema draft-07 document: only properties listed under "required" are
// populated (every declared property, if "required" is absent), and leaf
// values are generated from "type"/"format" rather than left as bare zero
// values.
func Sample(rawSchema map[string]interface{}) (interface{}, error) {
	return sampleValue(rawSchema)
}

func sampleValue(node map[string]interface{}) (interface{}, error) {
	typ, _ := node["type"].(string)
	switch typ {
	case "object", "":
		return sampleObject(node)
	case "array":
		return sampleArray(node)
	case "string":
		return sampleString(node), nil
	case "integer":
		return int64(gofakeit.Number(0, 1000)), nil
	case "number":
		return gofakeit.Float64Range(0, 1000), nil
	case "boolean":
		return gofakeit.Bool(), nil
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported schema type %q", typ)
	}
}

func sampleObject(node map[string]interface{}) (map[string]interface{}, error) {
	properties, _ := node["properties"].(map[string]interface{})
	keys := requiredOrAll(node, properties)

	instance := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		propRaw, ok := properties[key]
		if !ok {
			continue
		}
		prop, ok := propRaw.(map[string]interface{})
		if !ok {
			continue
		}
		value, err := sampleValue(prop)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		instance[key] = value
	}
	return instance, nil
}

func requiredOrAll(node map[string]interface{}, properties map[string]interface{}) []string {
	if req, ok := node["required"].([]interface{}); ok && len(req) > 0 {
		keys := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	return keys
}

func sampleArray(node map[string]interface{}) ([]interface{}, error) {
	items, _ := node["items"].(map[string]interface{})
	if items == nil {
		return []interface{}{}, nil
	}
	value, err := sampleValue(items)
	if err != nil {
		return nil, err
	}
	return []interface{}{value}, nil
}

// sampleString picks a gofakeit generator by JSON Schema "format", falling
// back to a plain word for an unformatted or unrecognized string schema.
func sampleString(node map[string]interface{}) string {
	format, _ := node["format"].(string)
	switch format {
	case "email":
		return gofakeit.Email()
	case "uri", "url":
		return gofakeit.URL()
	case "date-time":
		return gofakeit.Date().UTC().Format(time.RFC3339)
	case "date":
		return gofakeit.Date().UTC().Format("2006-01-02")
	case "uuid":
		return gofakeit.UUID()
	case "hostname":
		return gofakeit.DomainName()
	default:
		return gofakeit.Word()
	}
}
