package mcp

import (
	"fmt"

	"snapshot-query/internal/render"
	"snapshot-query/internal/snapshot"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// requireStringArg returns the argument or an error naming it.
func requireStringArg(args map[string]interface{}, key string) (string, error) {
	if _, ok := args[key]; !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	return getStringArg(args, key), nil
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}

// elementList is the common payload for element-returning tools.
func elementList(els []*snapshot.Element, limit int) map[string]interface{} {
	summaries := render.SummarizeAll(els, limit)
	return map[string]interface{}{
		"count":     len(els),
		"elements":  summaries,
		"truncated": len(summaries) < len(els),
	}
}

// resultCount reads "count" from a tool payload for tracing.
func resultCount(result interface{}) int {
	m, ok := result.(map[string]interface{})
	if !ok {
		return 0
	}
	if n, ok := m["count"].(int); ok {
		return n
	}
	return 0
}
