package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashValue creates a deterministic content hash for any JSON-encodable value.
// Map keys are emitted in sorted order by encoding/json, so structurally equal
// values always hash to the same id regardless of construction order.
func HashValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash value: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ShortID truncates an id for use in file and directory names.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
