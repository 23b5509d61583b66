package graph

import (
	"fmt"

	"codegraph/util"
)

// NodeIdentity hashes the position-free structure of a function.
func NodeIdentity(structure any) (string, error) {
	id, err := util.HashValue(structure)
	if err != nil {
		return "", fmt.Errorf("node identity: %w", err)
	}
	return id, nil
}

// ParseFailID keys parse failures by source text only.
func ParseFailID(code string) string {
	return digest(map[string]any{"sourceText": code})
}

// PositionFailID keys relocation failures by source text only.
func PositionFailID(code string) string {
	return digest(map[string]any{"failKey": code})
}

// DefinitionFailID keys resolution failures by reason, call site and parent.
// The call site carries no file, so the parent is what tells two unresolved
// sites at the same line and column apart.
func DefinitionFailID(reason string, site CallSite, parentID string) string {
	return digest(map[string]any{
		"failReason":             reason,
		"callExpressionLocation": site,
		"parentId":               parentID,
	})
}

func digest(v map[string]any) string {
	id, err := util.HashValue(v)
	if err != nil {
		// Only strings and plain structs reach here.
		panic(err)
	}
	return id
}
