package parser

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

var (
	// ErrNoFunction means a fragment parsed but contained no function.
	ErrNoFunction = errors.New("no function in fragment")
	// ErrNoTree means tree-sitter returned no tree at all.
	ErrNoTree = errors.New("parser returned no tree")
)

// Parser parses source text with tree-sitter. One underlying parser is kept
// per language; calls are serialised.
type Parser struct {
	mu      sync.Mutex
	parsers map[string]*tree_sitter.Parser
}

// New creates a Parser.
func New() *Parser {
	return &Parser{parsers: make(map[string]*tree_sitter.Parser)}
}

// Close releases the underlying tree-sitter parsers.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, tp := range p.parsers {
		tp.Close()
		delete(p.parsers, name)
	}
}

// Tree is a parsed text. Nodes taken from it are only valid until Close.
type Tree struct {
	Lang   *Language
	Source []byte
	tree   *tree_sitter.Tree
}

// Root returns the root node.
func (t *Tree) Root() *tree_sitter.Node {
	return t.tree.RootNode()
}

// Text returns the source text of n.
func (t *Tree) Text(n *tree_sitter.Node) string {
	return n.Utf8Text(t.Source)
}

// Close frees the tree.
func (t *Tree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Parse parses a whole text.
func (p *Parser) Parse(lang *Language, text string) (*Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tp, ok := p.parsers[lang.Name]
	if !ok {
		tp = tree_sitter.NewParser()
		if err := tp.SetLanguage(lang.tsLanguage()); err != nil {
			tp.Close()
			return nil, fmt.Errorf("set language %s: %w", lang.Name, err)
		}
		p.parsers[lang.Name] = tp
	}

	src := []byte(text)
	tree := tp.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%s: %w", lang.Name, ErrNoTree)
	}
	return &Tree{Lang: lang, Source: src, tree: tree}, nil
}

// Fragment is an isolated function parse.
type Fragment struct {
	Tree *Tree
	Node *tree_sitter.Node
}

// Close frees the fragment's tree.
func (f *Fragment) Close() { f.Tree.Close() }

// ParseFunction parses the text of a single function and returns the
// function node with the smallest start offset. When that node does not start
// the fragment and the language has a method wrapper, the text is re-parsed as
// a class member so bare methods are found.
func (p *Parser) ParseFunction(lang *Language, text string) (*Fragment, error) {
	tree, err := p.Parse(lang, text)
	if err != nil {
		return nil, err
	}
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n"))
	fn := FirstFunction(lang, tree.Root())
	if fn != nil && int(fn.StartByte()) <= lead {
		return &Fragment{Tree: tree, Node: fn}, nil
	}

	if w := lang.MethodWrapper; w != nil {
		wrapped, err := p.Parse(lang, w.Prefix+text+w.Suffix)
		if err == nil {
			start := len(w.Prefix) + lead
			if m := firstOfKinds(wrapped.Root(), w.Kinds); m != nil && int(m.StartByte()) == start {
				tree.Close()
				return &Fragment{Tree: wrapped, Node: m}, nil
			}
			wrapped.Close()
		}
	}

	if fn == nil {
		tree.Close()
		return nil, fmt.Errorf("%s: %w", lang.Name, ErrNoFunction)
	}
	return &Fragment{Tree: tree, Node: fn}, nil
}

// FirstFunction returns the first function node in document order.
func FirstFunction(lang *Language, root *tree_sitter.Node) *tree_sitter.Node {
	return firstOfKinds(root, lang.FunctionKinds)
}

func firstOfKinds(root *tree_sitter.Node, kinds []string) *tree_sitter.Node {
	var found *tree_sitter.Node
	Walk(root, func(n *tree_sitter.Node) bool {
		for _, k := range kinds {
			if n.Kind() == k {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// Walk visits root and its descendants in pre-order until visit returns false.
func Walk(root *tree_sitter.Node, visit func(*tree_sitter.Node) bool) {
	c := root.Walk()
	defer c.Close()
	for {
		if !visit(c.Node()) {
			return
		}
		if c.GotoFirstChild() {
			continue
		}
		for !c.GotoNextSibling() {
			if !c.GotoParent() {
				return
			}
		}
	}
}
