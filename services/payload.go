package services

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// decodePayload turns a transport message into a JSON object. Base64 is tried first; older producers
// wrote raw JSON, so a failed decode or parse falls back to parsing the text as-is.
func decodePayload(message string) map[string]any {
	message = strings.TrimSpace(message)
	if len(message) == 0 {
		return nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(message); err == nil {
		if payload := parseObject(decoded); payload != nil {
			return payload
		}
	}
	return parseObject([]byte(message))
}

func parseObject(data []byte) map[string]any {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload
}

// stringField returns the first key holding a non-empty scalar, rendered as a string.
func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := asString(payload[key]); ok {
			return value
		}
	}
	return ""
}

func asString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, len(v) > 0
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

// truthy mirrors how loosely-typed producers test for presence: empty strings, zero and false are absent.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return len(v) > 0
	case float64:
		return v != 0
	case bool:
		return v
	}
	return true
}

func has(payload map[string]any, keys ...string) bool {
	for _, key := range keys {
		if truthy(payload[key]) {
			return true
		}
	}
	return false
}

func hasAll(payload map[string]any, keys ...string) bool {
	for _, key := range keys {
		if !truthy(payload[key]) {
			return false
		}
	}
	return true
}

func objectField(payload map[string]any, key string) map[string]any {
	if nested, ok := payload[key].(map[string]any); ok {
		return nested
	}
	return nil
}

func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
