package docstore

import (
	"encoding/json"
	"fmt"
)

// EncodeValue serialises a metadata value for SQL-backed adapters.
func EncodeValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("docstore: encode meta: %w", err)
	}
	return string(data), nil
}

// DecodeValue reverses EncodeValue. Values that are not valid JSON are returned
// verbatim as strings so legacy rows stay readable.
func DecodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// StatusStrings converts a status filter for SQL array parameters.
func StatusStrings(statuses []Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
