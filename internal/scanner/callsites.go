package scanner

import (
	"errors"
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/source"
)

// ErrCalleeMismatch means some call expression produced no callee location.
var ErrCalleeMismatch = errors.New("call expression count does not match callee locations")

// CallSites lists the callee location of every call expression under fn.
// Property-access callees use their rightmost name.
func CallSites(lang *parser.Language, fn *tree_sitter.Node, src []byte, lines *source.LineIndex) ([]graph.CallSite, error) {
	calls, err := CallExpressions(lang, fn, src)
	if err != nil {
		return nil, err
	}

	sites := make([]graph.CallSite, 0, len(calls))
	for _, call := range calls {
		leaf := Callee(lang, call)
		if leaf == nil {
			continue
		}
		p := lines.Position(int(leaf.StartByte()))
		sites = append(sites, graph.CallSite{Line: p.Line + 1, Column: p.Character})
	}
	if len(sites) != len(calls) {
		return nil, fmt.Errorf("%w: %d calls, %d locations", ErrCalleeMismatch, len(calls), len(sites))
	}
	return sites, nil
}

// Callee returns the node a call site is reported at.
func Callee(lang *parser.Language, call *tree_sitter.Node) *tree_sitter.Node {
	callee := call.ChildByFieldName(lang.CalleeField)
	if callee == nil {
		callee = call.NamedChild(0)
	}
	if callee == nil {
		return nil
	}
	if field, ok := lang.MemberKinds[callee.Kind()]; ok {
		return callee.ChildByFieldName(field)
	}
	return callee
}
