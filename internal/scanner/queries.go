package scanner

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/parser"
)

// CallQueries capture every call expression, keyed by language name.
var CallQueries = map[string]string{
	"go":         `(call_expression) @call`,
	"python":     `(call) @call`,
	"javascript": `(call_expression) @call`,
	"typescript": `(call_expression) @call`,
	"tsx":        `(call_expression) @call`,
}

var (
	queryMu sync.Mutex
	queries = map[string]*tree_sitter.Query{}
)

func callQuery(lang *parser.Language) (*tree_sitter.Query, error) {
	queryMu.Lock()
	defer queryMu.Unlock()

	if q, ok := queries[lang.Name]; ok {
		return q, nil
	}
	src, ok := CallQueries[lang.Name]
	if !ok {
		return nil, fmt.Errorf("%w: no call query for %s", parser.ErrUnsupportedLanguage, lang.Name)
	}
	q, qerr := tree_sitter.NewQuery(lang.Grammar(), src)
	if qerr != nil {
		return nil, fmt.Errorf("compile call query for %s: %v", lang.Name, qerr)
	}
	queries[lang.Name] = q
	return q, nil
}

// CallExpressions returns every call node under root in document order.
func CallExpressions(lang *parser.Language, root *tree_sitter.Node, src []byte) ([]*tree_sitter.Node, error) {
	q, err := callQuery(lang)
	if err != nil {
		return nil, err
	}
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	var calls []*tree_sitter.Node
	matches := qc.Matches(q, root, src)
	for m := matches.Next(); m != nil; m = matches.Next() {
		for _, c := range m.Captures {
			n := c.Node
			calls = append(calls, &n)
		}
	}
	return calls, nil
}
