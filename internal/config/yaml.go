package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// toJSON hands back config bytes ready for the strict JSON decoder.
// JSON files pass through untouched; .yaml/.yml files are decoded and
// re-encoded so DisallowUnknownFields applies to them too.
func toJSON(path string, data []byte) ([]byte, error) {
	if !isYAMLPath(path) {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("re-encode yaml as json: %w", err)
	}
	return out, nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// stringifyKeys walks the decoded document and forces every map key to a
// string. YAML allows non-string keys, JSON does not.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringifyKeys(child)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[fmt.Sprint(k)] = stringifyKeys(child)
		}
		return out
	case []any:
		for i, child := range node {
			node[i] = stringifyKeys(child)
		}
		return node
	}
	return v
}
