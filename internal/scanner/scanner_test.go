package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/source"
)

func TestLooksLike(t *testing.T) {
	ignore := map[string]bool{"pos": true}
	a := map[string]any{"kind": "x", "pos": 1, "children": []any{map[string]any{"kind": "y", "pos": 4}}}
	b := map[string]any{"kind": "x", "pos": 9, "children": []any{map[string]any{"kind": "y", "pos": 7}}}
	assert.True(t, LooksLike(a, b, ignore))
	assert.False(t, LooksLike(a, b, nil))

	c := map[string]any{"kind": "x", "children": []any{}}
	assert.False(t, LooksLike(a, c, ignore), "array length")

	d := map[string]any{"kind": "x", "extra": true, "children": []any{map[string]any{"kind": "y"}}}
	assert.False(t, LooksLike(a, d, ignore), "extra key")
	assert.False(t, LooksLike("1", 1, nil), "strict primitive equality")
}

type fixture struct {
	p    *parser.Parser
	file *parser.Tree
}

func newFixture(t *testing.T, lang *parser.Language, text string) *fixture {
	t.Helper()
	p := parser.New()
	t.Cleanup(p.Close)
	file, err := p.Parse(lang, text)
	require.NoError(t, err)
	t.Cleanup(file.Close)
	return &fixture{p: p, file: file}
}

func (f *fixture) relocate(t *testing.T, fragment string) *parser.Fragment {
	t.Helper()
	frag, err := f.p.ParseFunction(f.file.Lang, fragment)
	require.NoError(t, err)
	t.Cleanup(frag.Close)
	return frag
}

func TestRelocate(t *testing.T) {
	text := "function a() {\n  b()\n}\n\nfunction b() {\n  a()\n}\n"
	f := newFixture(t, parser.TypeScript, text)

	frag := f.relocate(t, "function b() {\n  a()\n}")
	got := Relocate(frag.Node, frag.Tree.Source, f.file.Root(), f.file.Source)
	require.NotNil(t, got)
	assert.Equal(t, uint(4), got.StartPosition().Row)

	frag = f.relocate(t, "function b() {\n  c()\n}")
	assert.Nil(t, Relocate(frag.Node, frag.Tree.Source, f.file.Root(), f.file.Source))
}

func TestRelocateIgnoresWhitespaceOffsets(t *testing.T) {
	text := "export class K {\n  run() {\n    this.step()\n  }\n}\n"
	f := newFixture(t, parser.TypeScript, text)

	frag := f.relocate(t, "run() {\n    this.step()\n  }")
	got := Relocate(frag.Node, frag.Tree.Source, f.file.Root(), f.file.Source)
	require.NotNil(t, got)
	assert.Equal(t, "method_definition", got.Kind())
	assert.Equal(t, uint(1), got.StartPosition().Row)
	assert.Equal(t, uint(2), got.StartPosition().Column)
}

func TestRelocateFirstMatchWins(t *testing.T) {
	text := "def a():\n    return 1\n\n\ndef a():\n    return 1\n"
	f := newFixture(t, parser.Python, text)

	frag := f.relocate(t, "def a():\n    return 1")
	got := Relocate(frag.Node, frag.Tree.Source, f.file.Root(), f.file.Source)
	require.NotNil(t, got)
	assert.Equal(t, uint(0), got.StartPosition().Row)
}

func TestStructureIgnoresPosition(t *testing.T) {
	one := newFixture(t, parser.Go, "package a\n\nfunc F() { g() }\n")
	two := newFixture(t, parser.Go, "package b\n\n\n\n// doc\nfunc F() { g() }\n")
	three := newFixture(t, parser.Go, "package c\n\nfunc F() { h() }\n")

	fn := func(f *fixture) map[string]any {
		n := parser.FirstFunction(parser.Go, f.file.Root())
		require.NotNil(t, n)
		return Structure(n, f.file.Source)
	}

	id1, err := graph.NodeIdentity(fn(one))
	require.NoError(t, err)
	id2, err := graph.NodeIdentity(fn(two))
	require.NoError(t, err)
	id3, err := graph.NodeIdentity(fn(three))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.NotContains(t, fn(one), KeyStartByte)
}

func TestCallSites(t *testing.T) {
	tests := []struct {
		name string
		lang *parser.Language
		text string
		want []graph.CallSite
	}{
		{
			name: "typescript property access and nesting",
			lang: parser.TypeScript,
			text: "function a() {\n  foo.bar.baz(1)\n  qux(x.y())\n}\n",
			want: []graph.CallSite{{Line: 2, Column: 10}, {Line: 3, Column: 2}, {Line: 3, Column: 8}},
		},
		{
			name: "utf-16 columns",
			lang: parser.TypeScript,
			text: "function a() {\n  const s = '😀'; go()\n}\n",
			want: []graph.CallSite{{Line: 2, Column: 18}},
		},
		{
			name: "go selector",
			lang: parser.Go,
			text: "package p\n\nfunc F() {\n\tfmt.Println(g())\n}\n",
			want: []graph.CallSite{{Line: 4, Column: 5}, {Line: 4, Column: 13}},
		},
		{
			name: "python attribute",
			lang: parser.Python,
			text: "def f():\n    obj.m()\n    g()\n",
			want: []graph.CallSite{{Line: 2, Column: 8}, {Line: 3, Column: 4}},
		},
		{
			name: "no calls",
			lang: parser.JavaScript,
			text: "function id(x) { return x }\n",
			want: []graph.CallSite{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.lang, tt.text)
			fn := parser.FirstFunction(tt.lang, f.file.Root())
			require.NotNil(t, fn)

			sites, err := CallSites(tt.lang, fn, f.file.Source, source.NewLineIndex(tt.text))
			require.NoError(t, err)
			assert.Equal(t, tt.want, sites)
		})
	}
}

func TestCallee(t *testing.T) {
	f := newFixture(t, parser.JavaScript, "a.b?.c(1)\n")
	calls, err := CallExpressions(parser.JavaScript, f.file.Root(), f.file.Source)
	require.NoError(t, err)
	require.Len(t, calls, 1)

	leaf := Callee(parser.JavaScript, calls[0])
	require.NotNil(t, leaf)
	assert.Equal(t, "c", leaf.Utf8Text(f.file.Source))
}
