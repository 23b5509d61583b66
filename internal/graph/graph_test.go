package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapNode(id string, incoming ...string) *MapNode {
	if incoming == nil {
		incoming = []string{}
	}
	return &MapNode{ID: id, Name: id, IncomingCalls: incoming, OutgoingCalls: []string{}}
}

func TestNodeMapInsertOnce(t *testing.T) {
	m := NewNodeMap()
	a := mapNode("a")
	require.True(t, m.Insert(a))
	assert.False(t, m.Insert(&MapNode{ID: "a", Name: "other"}))

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.(*MapNode).Name)
	assert.Equal(t, 1, m.Len())
}

func TestNodeMapUpsertAppendsIncoming(t *testing.T) {
	m := NewNodeMap()
	f := NewParseFail("function (", Locator{URI: "file:///x.ts"})

	first := m.Upsert(f, "")
	assert.Empty(t, first.Incoming())

	again := m.Upsert(NewParseFail("function (", Locator{URI: "file:///y.ts"}), "p1")
	assert.Same(t, first, again)
	assert.Equal(t, []string{"p1"}, again.Incoming())
	assert.Equal(t, "file:///x.ts", again.(*FailNode).URI)
}

func TestSetOutgoingRejectsFailNode(t *testing.T) {
	m := NewNodeMap()
	f := NewDefinitionFail(CallSite{Line: 1, Column: 2}, "p")
	m.Insert(f)
	assert.Error(t, m.SetOutgoing(f.ID, []string{"x"}))
	assert.ErrorIs(t, m.SetOutgoing("missing", nil), ErrUnknownNode)
}

func TestFailIdentities(t *testing.T) {
	assert.Equal(t, ParseFailID("x"), ParseFailID("x"))
	assert.NotEqual(t, ParseFailID("x"), PositionFailID("x"))

	site := CallSite{Line: 3, Column: 4}
	assert.Equal(t, DefinitionFailID(ReasonDefinition, site, "p"), DefinitionFailID(ReasonDefinition, site, "p"))
	assert.NotEqual(t, DefinitionFailID(ReasonDefinition, site, "p"), DefinitionFailID(ReasonDefinition, site, "q"))

	f := NewDefinitionFail(site, "p")
	assert.True(t, f.Failure)
	assert.Equal(t, NameDefinitionFail, f.Name)
	assert.Equal(t, ReasonDefinition, f.FailReason)
}

func TestNodeIdentityIsContentOnly(t *testing.T) {
	a, err := NodeIdentity(map[string]any{"kind": "function_declaration", "children": []any{"a"}})
	require.NoError(t, err)
	b, err := NodeIdentity(map[string]any{"children": []any{"a"}, "kind": "function_declaration"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProjectBreaksCycles(t *testing.T) {
	m := NewNodeMap()
	a := mapNode("a")
	b := mapNode("b", "a")
	a.OutgoingCalls = []string{"b"}
	b.OutgoingCalls = []string{"a"}
	m.Insert(a)
	m.Insert(b)

	tree, err := m.Project("a")
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	bn := tree.Children[0]
	assert.Equal(t, "b", bn.ID)
	require.Len(t, bn.Children, 1)
	assert.True(t, bn.Children[0].IsRecursion())
	assert.Equal(t, "a", bn.Children[0].RecursionID)
	assert.Empty(t, bn.Children[0].Children)
}

func TestProjectExpandsSiblingsIndependently(t *testing.T) {
	m := NewNodeMap()
	root := mapNode("root")
	left := mapNode("left", "root")
	right := mapNode("right", "root")
	shared := mapNode("shared", "left", "right")
	root.OutgoingCalls = []string{"left", "right"}
	left.OutgoingCalls = []string{"shared"}
	right.OutgoingCalls = []string{"shared"}
	for _, n := range []*MapNode{root, left, right, shared} {
		m.Insert(n)
	}

	tree, err := m.Project("root")
	require.NoError(t, err)
	for _, side := range tree.Children {
		require.Len(t, side.Children, 1)
		assert.Equal(t, "shared", side.Children[0].ID)
		assert.False(t, side.Children[0].IsRecursion())
	}
}

func TestProjectIsIdempotentAndReadOnly(t *testing.T) {
	m := NewNodeMap()
	a := mapNode("a")
	a.OutgoingCalls = []string{"f"}
	m.Insert(a)
	m.Insert(NewDefinitionFail(CallSite{Line: 1}, "a"))
	f := m.Nodes()[1]
	a.OutgoingCalls = []string{f.NodeID()}

	first, err := m.Project("a")
	require.NoError(t, err)
	second, err := m.Project("a")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	first.OutgoingCalls[0] = "mutated"
	assert.Equal(t, f.NodeID(), a.OutgoingCalls[0])
	assert.True(t, first.Children[0].Failure)
}

func TestProjectUnknownID(t *testing.T) {
	_, err := NewNodeMap().Project("nope")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestNodeCodecRoundTrip(t *testing.T) {
	nodes := []Node{
		&MapNode{ID: "a", URI: "file:///a.ts", Name: "a", IncomingCalls: []string{}, OutgoingCalls: []string{"f"}},
		NewDefinitionFail(CallSite{Line: 2, Column: 5}, "a"),
	}
	for _, n := range nodes {
		data, err := MarshalNode(n)
		require.NoError(t, err)
		got, err := UnmarshalNode(data)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestNodeMapMarshalJSON(t *testing.T) {
	m := NewNodeMap()
	m.Insert(mapNode("a"))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "a")
}

func TestRangeContains(t *testing.T) {
	outer := Range{Start: Position{Line: 1}, End: Position{Line: 10}}
	inner := Range{Start: Position{Line: 2, Character: 4}, End: Position{Line: 2, Character: 9}}
	assert.True(t, outer.Contains(inner))
	assert.False(t, inner.Contains(outer))
}
