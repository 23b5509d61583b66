package scanner

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Snapshot keys.
const (
	KeyKind        = "kind"
	KeyNamed       = "named"
	KeyField       = "field"
	KeyText        = "text"
	KeyMissing     = "missing"
	KeyChildren    = "children"
	KeyStartByte   = "startByte"
	KeyEndByte     = "endByte"
	KeyStartRow    = "startRow"
	KeyStartColumn = "startColumn"
	KeyEndRow      = "endRow"
	KeyEndColumn   = "endColumn"
)

// PositionKeys are the snapshot fields that only encode where a node sits.
var PositionKeys = map[string]bool{
	KeyStartByte:   true,
	KeyEndByte:     true,
	KeyStartRow:    true,
	KeyStartColumn: true,
	KeyEndRow:      true,
	KeyEndColumn:   true,
}

// Snapshot materialises a syntax tree into plain maps and slices so it can be
// compared and hashed generically. Leaves carry their text.
func Snapshot(n *tree_sitter.Node, src []byte) map[string]any {
	return snapshot(n, "", src)
}

func snapshot(n *tree_sitter.Node, field string, src []byte) map[string]any {
	start, end := n.StartPosition(), n.EndPosition()
	m := map[string]any{
		KeyKind:        n.Kind(),
		KeyNamed:       n.IsNamed(),
		KeyStartByte:   int(n.StartByte()),
		KeyEndByte:     int(n.EndByte()),
		KeyStartRow:    int(start.Row),
		KeyStartColumn: int(start.Column),
		KeyEndRow:      int(end.Row),
		KeyEndColumn:   int(end.Column),
	}
	if field != "" {
		m[KeyField] = field
	}
	if n.IsMissing() {
		m[KeyMissing] = true
	}

	children := []any{}
	c := n.Walk()
	defer c.Close()
	if c.GotoFirstChild() {
		for {
			children = append(children, snapshot(c.Node(), c.FieldName(), src))
			if !c.GotoNextSibling() {
				break
			}
		}
	}
	if len(children) == 0 {
		m[KeyText] = n.Utf8Text(src)
	}
	m[KeyChildren] = children
	return m
}

// Prune returns a copy of v without the ignored keys at any depth.
func Prune(v any, ignore map[string]bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if ignore[k] {
				continue
			}
			out[k] = Prune(val, ignore)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Prune(val, ignore)
		}
		return out
	default:
		return v
	}
}

// Structure is the position-free snapshot of n, the input to node identity.
func Structure(n *tree_sitter.Node, src []byte) map[string]any {
	return Prune(Snapshot(n, src), PositionKeys).(map[string]any)
}
