package scanner

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/parser"
)

// Relocate finds the node in the file tree that is structurally equal to the
// fragment node, comparing candidates of the same kind in depth-first order.
// It returns nil when nothing matches.
func Relocate(fragment *tree_sitter.Node, fragmentSrc []byte, root *tree_sitter.Node, fileSrc []byte) *tree_sitter.Node {
	kind := fragment.Kind()
	childCount := fragment.ChildCount()
	var target map[string]any

	var found *tree_sitter.Node
	parser.Walk(root, func(n *tree_sitter.Node) bool {
		if n.Kind() != kind || n.ChildCount() != childCount {
			return true
		}
		if target == nil {
			target = Snapshot(fragment, fragmentSrc)
		}
		if LooksLike(Snapshot(n, fileSrc), target, PositionKeys) {
			found = n
			return false
		}
		return true
	})
	return found
}
