package parser

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
)

// FunctionName derives a display name for a positioned function node: its
// declared name, else the name it is bound to, else "Anonymous".
func FunctionName(lang *Language, fn *tree_sitter.Node, src []byte) string {
	if name := fn.ChildByFieldName("name"); name != nil {
		return name.Utf8Text(src)
	}

	parent := fn.Parent()
	if parent == nil {
		return graph.NameAnonymous
	}
	if b, ok := lang.Bindings[parent.Kind()]; ok {
		value := parent.ChildByFieldName(b.ValueField)
		name := parent.ChildByFieldName(b.NameField)
		if value != nil && name != nil && value.Id() == fn.Id() {
			return bindingName(lang, name, src)
		}
	}
	return graph.NameAnonymous
}

// bindingName takes the rightmost member of a property access such as
// module.exports.handler.
func bindingName(lang *Language, name *tree_sitter.Node, src []byte) string {
	if field, ok := lang.MemberKinds[name.Kind()]; ok {
		if last := name.ChildByFieldName(field); last != nil {
			return last.Utf8Text(src)
		}
	}
	return name.Utf8Text(src)
}
