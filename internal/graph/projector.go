package graph

import (
	"fmt"
	"slices"
)

// GraphNode is one node of a projected tree. A cycle back to an ancestor is
// represented by a node with only RecursionID set.
type GraphNode struct {
	ID                     string       `json:"id,omitempty"`
	RecursionID            string       `json:"recursionId,omitempty"`
	Failure                bool         `json:"failure,omitempty"`
	Kind                   FailKind     `json:"kind,omitempty"`
	FailReason             string       `json:"failReason,omitempty"`
	Name                   string       `json:"name,omitempty"`
	URI                    string       `json:"uri,omitempty"`
	Range                  *Range       `json:"range,omitempty"`
	Code                   string       `json:"code,omitempty"`
	CallExpressionLocation *CallSite    `json:"callExpressionLocation,omitempty"`
	IncomingCalls          []string     `json:"incomingCalls,omitempty"`
	OutgoingCalls          []string     `json:"outgoingCalls,omitempty"`
	Children               []*GraphNode `json:"children"`
}

// IsRecursion reports whether the node is a cycle marker.
func (g *GraphNode) IsRecursion() bool { return g.RecursionID != "" }

// Project builds the tree rooted at id.
func (m *NodeMap) Project(id string) (*GraphNode, error) {
	return BuildNodeGraph(m, id, nil)
}

// BuildNodeGraph projects the node map into a tree rooted at id. A node that
// already appears on the path from the root becomes a recursion marker, so a
// node reachable from two sibling branches is expanded in both.
func BuildNodeGraph(m *NodeMap, id string, ancestors []string) (*GraphNode, error) {
	if slices.Contains(ancestors, id) {
		return &GraphNode{RecursionID: id, Children: []*GraphNode{}}, nil
	}

	n, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	g := copyNode(n)
	path := append(slices.Clone(ancestors), id)
	for _, childID := range n.Outgoing() {
		child, err := BuildNodeGraph(m, childID, path)
		if err != nil {
			return nil, err
		}
		g.Children = append(g.Children, child)
	}
	return g, nil
}

func copyNode(n Node) *GraphNode {
	g := &GraphNode{Children: []*GraphNode{}}
	switch v := n.(type) {
	case *MapNode:
		r := v.Range
		g.ID = v.ID
		g.Name = v.Name
		g.URI = v.URI
		g.Range = &r
		g.Code = v.Code
		g.IncomingCalls = slices.Clone(v.IncomingCalls)
		g.OutgoingCalls = slices.Clone(v.OutgoingCalls)
	case *FailNode:
		g.ID = v.ID
		g.Failure = true
		g.Kind = v.Kind
		g.FailReason = v.FailReason
		g.Name = v.Name
		g.URI = v.URI
		g.Code = v.Code
		if v.Range != nil {
			r := *v.Range
			g.Range = &r
		}
		if v.CallExpressionLocation != nil {
			s := *v.CallExpressionLocation
			g.CallExpressionLocation = &s
		}
		g.IncomingCalls = slices.Clone(v.IncomingCalls)
	}
	return g
}

// Walk visits every node of the tree depth first.
func (g *GraphNode) Walk(fn func(*GraphNode, int)) {
	var walk func(*GraphNode, int)
	walk = func(n *GraphNode, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(g, 0)
}
