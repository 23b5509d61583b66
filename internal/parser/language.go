package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"codegraph/util"
)

// ErrUnsupportedLanguage is returned for files with an unknown extension.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Binding names the fields of a node that binds a name to a value, such as
// a variable declarator.
type Binding struct {
	NameField  string
	ValueField string
}

// Language describes one tree-sitter grammar and the node kinds the graph
// builder cares about.
type Language struct {
	Name string
	// ID is the language server languageId.
	ID      string
	grammar func() unsafe.Pointer

	FunctionKinds []string
	CallKinds     []string
	// CalleeField is the field holding the called expression of a call.
	CalleeField string
	// MemberKinds maps a property-access kind to the field holding its
	// rightmost name.
	MemberKinds map[string]string
	// Bindings maps a binding kind to its name/value fields, used to name
	// anonymous functions.
	Bindings map[string]Binding
	// MethodWrapper, when set, wraps a fragment so a bare method body parses
	// as a class member.
	MethodWrapper *Wrapper
}

// Wrapper surrounds fragment text before parsing.
type Wrapper struct {
	Prefix string
	Suffix string
	Kinds  []string
}

// IsFunction reports whether kind is a function definition kind.
func (l *Language) IsFunction(kind string) bool {
	return slices.Contains(l.FunctionKinds, kind)
}

// IsCall reports whether kind is a call expression kind.
func (l *Language) IsCall(kind string) bool {
	return slices.Contains(l.CallKinds, kind)
}

func (l *Language) tsLanguage() *tree_sitter.Language {
	return tree_sitter.NewLanguage(l.grammar())
}

var jsFunctionKinds = []string{
	"function_declaration",
	"generator_function_declaration",
	"function_expression",
	"generator_function",
	"arrow_function",
	"method_definition",
}

var jsMembers = map[string]string{"member_expression": "property"}

var jsBindings = map[string]Binding{
	"variable_declarator":     {NameField: "name", ValueField: "value"},
	"assignment_expression":   {NameField: "left", ValueField: "right"},
	"pair":                    {NameField: "key", ValueField: "value"},
	"public_field_definition": {NameField: "name", ValueField: "value"},
	"field_definition":        {NameField: "property", ValueField: "value"},
}

var classWrapper = &Wrapper{
	Prefix: "class __fragment__ {\n",
	Suffix: "\n}",
	Kinds:  []string{"method_definition"},
}

var (
	TypeScript = &Language{
		Name:          "typescript",
		ID:            "typescript",
		grammar:       tree_sitter_typescript.LanguageTypescript,
		FunctionKinds: jsFunctionKinds,
		CallKinds:     []string{"call_expression"},
		CalleeField:   "function",
		MemberKinds:   jsMembers,
		Bindings:      jsBindings,
		MethodWrapper: classWrapper,
	}
	TSX = &Language{
		Name:          "tsx",
		ID:            "typescriptreact",
		grammar:       tree_sitter_typescript.LanguageTSX,
		FunctionKinds: jsFunctionKinds,
		CallKinds:     []string{"call_expression"},
		CalleeField:   "function",
		MemberKinds:   jsMembers,
		Bindings:      jsBindings,
		MethodWrapper: classWrapper,
	}
	JavaScript = &Language{
		Name:          "javascript",
		ID:            "javascript",
		grammar:       tree_sitter_javascript.Language,
		FunctionKinds: jsFunctionKinds,
		CallKinds:     []string{"call_expression"},
		CalleeField:   "function",
		MemberKinds:   jsMembers,
		Bindings:      jsBindings,
		MethodWrapper: classWrapper,
	}
	Go = &Language{
		Name:          "go",
		ID:            "go",
		grammar:       tree_sitter_go.Language,
		FunctionKinds: []string{"function_declaration", "method_declaration", "func_literal"},
		CallKinds:     []string{"call_expression"},
		CalleeField:   "function",
		MemberKinds:   map[string]string{"selector_expression": "field"},
		Bindings:      map[string]Binding{},
	}
	Python = &Language{
		Name:          "python",
		ID:            "python",
		grammar:       tree_sitter_python.Language,
		FunctionKinds: []string{"function_definition", "lambda"},
		CallKinds:     []string{"call"},
		CalleeField:   "function",
		MemberKinds:   map[string]string{"attribute": "attribute"},
		Bindings: map[string]Binding{
			"assignment":       {NameField: "left", ValueField: "right"},
			"keyword_argument": {NameField: "name", ValueField: "value"},
		},
	}
)

var extensions = map[string]*Language{
	".ts":  TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".tsx": TSX,
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
	".go":  Go,
	".py":  Python,
	".pyi": Python,
}

// Languages lists every supported language once.
func Languages() []*Language {
	return []*Language{TypeScript, TSX, JavaScript, Go, Python}
}

// ForPath picks the language for a file path or file URI.
func ForPath(path string) (*Language, error) {
	ext := strings.ToLower(filepath.Ext(util.URIToPath(path)))
	if lang, ok := extensions[ext]; ok {
		return lang, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, ext)
}

// Grammar returns the tree-sitter language handle.
func (l *Language) Grammar() *tree_sitter.Language {
	return l.tsLanguage()
}
