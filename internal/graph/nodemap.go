package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownNode is returned when an id is not present in a NodeMap.
var ErrUnknownNode = errors.New("unknown node id")

// NodeMap holds every node discovered during one graph build. A node's own
// fields are written once; later visits only append to its incoming calls.
// It is not safe for concurrent use.
type NodeMap struct {
	order []string
	nodes map[string]Node
}

// NewNodeMap creates an empty map.
func NewNodeMap() *NodeMap {
	return &NodeMap{nodes: make(map[string]Node)}
}

// Len returns the number of nodes.
func (m *NodeMap) Len() int { return len(m.order) }

// Get looks up a node by id.
func (m *NodeMap) Get(id string) (Node, bool) {
	n, ok := m.nodes[id]
	return n, ok
}

// Has reports whether id is present.
func (m *NodeMap) Has(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

// Insert adds n if its id is new. It returns false and leaves the map
// untouched when the id already exists.
func (m *NodeMap) Insert(n Node) bool {
	id := n.NodeID()
	if _, ok := m.nodes[id]; ok {
		return false
	}
	m.nodes[id] = n
	m.order = append(m.order, id)
	return true
}

// AppendIncoming records parentID as a caller of id.
func (m *NodeMap) AppendIncoming(id, parentID string) error {
	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	switch v := n.(type) {
	case *MapNode:
		v.IncomingCalls = append(v.IncomingCalls, parentID)
	case *FailNode:
		v.IncomingCalls = append(v.IncomingCalls, parentID)
	}
	return nil
}

// Upsert inserts n, or, when its id is already present, appends parentID to
// the existing node's incoming calls and returns the existing node. An empty
// parentID never gets appended.
func (m *NodeMap) Upsert(n Node, parentID string) Node {
	if existing, ok := m.nodes[n.NodeID()]; ok {
		if parentID != "" {
			_ = m.AppendIncoming(existing.NodeID(), parentID)
		}
		return existing
	}
	m.Insert(n)
	return n
}

// SetOutgoing replaces the outgoing calls of a MapNode.
func (m *NodeMap) SetOutgoing(id string, ids []string) error {
	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	mn, ok := n.(*MapNode)
	if !ok {
		return fmt.Errorf("node %s is a fail node", id)
	}
	mn.OutgoingCalls = slices.Clone(ids)
	return nil
}

// IDs returns node ids in insertion order.
func (m *NodeMap) IDs() []string {
	return slices.Clone(m.order)
}

// Nodes returns nodes in insertion order.
func (m *NodeMap) Nodes() []Node {
	out := make([]Node, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.nodes[id])
	}
	return out
}

// MarshalJSON encodes the map as an object keyed by node id.
func (m *NodeMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.nodes)
}

// MarshalNode encodes a single node.
func MarshalNode(n Node) ([]byte, error) {
	return json.Marshal(n)
}

// UnmarshalNode decodes a node produced by MarshalNode, using the failure
// flag to pick the concrete type.
func UnmarshalNode(data []byte) (Node, error) {
	var probe struct {
		Failure bool `json:"failure"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if probe.Failure {
		var fn FailNode
		if err := json.Unmarshal(data, &fn); err != nil {
			return nil, fmt.Errorf("decode fail node: %w", err)
		}
		return &fn, nil
	}
	var mn MapNode
	if err := json.Unmarshal(data, &mn); err != nil {
		return nil, fmt.Errorf("decode map node: %w", err)
	}
	return &mn, nil
}
