package parser

import (
	"context"
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/graph"
	"codegraph/internal/source"
)

// EnclosingFunction returns the innermost function containing the byte
// offset. A position on the name of a binding whose value is a function, such
// as `const a = () => {}`, yields that function.
func EnclosingFunction(lang *Language, root *tree_sitter.Node, offset uint) *tree_sitter.Node {
	n := root.NamedDescendantForByteRange(offset, offset)
	for n != nil {
		if lang.IsFunction(n.Kind()) {
			return n
		}
		if b, ok := lang.Bindings[n.Kind()]; ok {
			if v := n.ChildByFieldName(b.ValueField); v != nil && lang.IsFunction(v.Kind()) {
				return v
			}
		}
		n = n.Parent()
	}
	return nil
}

// DeclaredFunction returns the function whose name covers the byte offset:
// the name of a declaration, or the name a function value is bound to. Any
// other identifier, such as a parameter or a local holding a callback, yields
// nil.
func DeclaredFunction(lang *Language, root *tree_sitter.Node, offset uint) *tree_sitter.Node {
	n := root.NamedDescendantForByteRange(offset, offset)
	for n != nil {
		if lang.IsFunction(n.Kind()) {
			if covers(n.ChildByFieldName("name"), offset) {
				return n
			}
			return nil
		}
		if b, ok := lang.Bindings[n.Kind()]; ok && covers(n.ChildByFieldName(b.NameField), offset) {
			if v := n.ChildByFieldName(b.ValueField); v != nil && lang.IsFunction(v.Kind()) {
				return v
			}
			return nil
		}
		n = n.Parent()
	}
	return nil
}

func covers(n *tree_sitter.Node, offset uint) bool {
	return n != nil && n.StartByte() <= offset && offset < n.EndByte()
}

// Documents loads files by URI.
type Documents interface {
	Document(ctx context.Context, uri string) (*source.Document, error)
}

// Expander widens identifier-only definition ranges to the declaration of the
// function they name. Ranges on anything but a function's name are left
// alone.
type Expander struct {
	parser *Parser
	docs   Documents
}

// NewExpander creates an Expander.
func NewExpander(p *Parser, docs Documents) *Expander {
	return &Expander{parser: p, docs: docs}
}

// Expand returns the locator of the function named at the start of c. The
// candidate is returned unchanged when it does not sit on a function name.
func (e *Expander) Expand(ctx context.Context, c graph.Candidate) (graph.Locator, error) {
	loc := c.Locator()
	lang, err := ForPath(c.URI)
	if err != nil {
		return loc, nil
	}
	doc, err := e.docs.Document(ctx, c.URI)
	if err != nil {
		return loc, err
	}

	r, ok, err := e.find(lang, doc.Lines, c.Range.Start, DeclaredFunction)
	if err != nil || !ok {
		return loc, err
	}
	return graph.Locator{URI: c.URI, Range: r}, nil
}

// FunctionAt finds the range of the innermost function around pos in the
// indexed text.
func (e *Expander) FunctionAt(lang *Language, lines *source.LineIndex, pos graph.Position) (graph.Range, bool, error) {
	return e.find(lang, lines, pos, EnclosingFunction)
}

type finder func(lang *Language, root *tree_sitter.Node, offset uint) *tree_sitter.Node

func (e *Expander) find(lang *Language, lines *source.LineIndex, pos graph.Position, fnAt finder) (graph.Range, bool, error) {
	offset, err := lines.Offset(pos)
	if err != nil {
		return graph.Range{}, false, err
	}
	tree, err := e.parser.Parse(lang, lines.Text())
	if err != nil {
		return graph.Range{}, false, fmt.Errorf("parse %s: %w", lang.Name, err)
	}
	defer tree.Close()

	fn := fnAt(lang, tree.Root(), uint(offset))
	if fn == nil {
		return graph.Range{}, false, nil
	}
	return NodeRange(lines, fn), true, nil
}

// NodeRange converts a node's byte span to a position range.
func NodeRange(lines *source.LineIndex, n *tree_sitter.Node) graph.Range {
	return graph.Range{
		Start: lines.Position(int(n.StartByte())),
		End:   lines.Position(int(n.EndByte())),
	}
}
