package graph

// Position is a zero-based line and UTF-16 character offset, the same
// convention language servers use.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether r fully covers other.
func (r Range) Contains(other Range) bool {
	return !other.Start.Before(r.Start) && !r.End.Before(other.End)
}

// Before reports whether p sorts strictly before q.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Locator identifies a function's source extent.
type Locator struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// CallSite is the location of a callee expression: 1-based line, 0-based
// UTF-16 column.
type CallSite struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Candidate is one definition target returned by a resolver, normalised from
// either a plain location or a location link.
type Candidate struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
	// Link is set when the range came from a LocationLink target range and
	// therefore already spans the full declaration.
	Link bool `json:"link,omitempty"`
}

// Locator converts the candidate into a function locator.
func (c Candidate) Locator() Locator {
	return Locator{URI: c.URI, Range: c.Range}
}

// FailKind tags why a branch of the graph could not be resolved.
type FailKind string

const (
	FailParse      FailKind = "parse"
	FailPosition   FailKind = "position"
	FailDefinition FailKind = "definition"
)

// Reasons and display names attached to fail nodes.
const (
	ReasonParse      = "parser did not return node"
	ReasonPosition   = "could not position function AST Node"
	ReasonDefinition = "could not find definition for call expression"

	NameParseFail      = "Parse Fail"
	NamePositionFail   = "Position Fail"
	NameDefinitionFail = "Find Definition Fail"

	NameAnonymous = "Anonymous"
)

// Node is either a *MapNode or a *FailNode.
type Node interface {
	NodeID() string
	Incoming() []string
	Outgoing() []string
	node()
}

// MapNode is one resolved function.
type MapNode struct {
	ID            string   `json:"id"`
	URI           string   `json:"uri"`
	Range         Range    `json:"range"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	IncomingCalls []string `json:"incomingCalls"`
	OutgoingCalls []string `json:"outgoingCalls"`
}

func (n *MapNode) NodeID() string     { return n.ID }
func (n *MapNode) Incoming() []string { return n.IncomingCalls }
func (n *MapNode) Outgoing() []string { return n.OutgoingCalls }
func (n *MapNode) node()              {}

// Locator returns the function locator of the node.
func (n *MapNode) Locator() Locator {
	return Locator{URI: n.URI, Range: n.Range}
}

// FailNode is a terminal marker for a branch that could not be resolved.
type FailNode struct {
	ID                     string    `json:"id"`
	Failure                bool      `json:"failure"`
	Kind                   FailKind  `json:"kind"`
	FailReason             string    `json:"failReason"`
	Name                   string    `json:"name"`
	Code                   string    `json:"code,omitempty"`
	URI                    string    `json:"uri,omitempty"`
	Range                  *Range    `json:"range,omitempty"`
	CallExpressionLocation *CallSite `json:"callExpressionLocation,omitempty"`
	IncomingCalls          []string  `json:"incomingCalls"`
}

func (n *FailNode) NodeID() string     { return n.ID }
func (n *FailNode) Incoming() []string { return n.IncomingCalls }
func (n *FailNode) Outgoing() []string { return nil }
func (n *FailNode) node()              {}

// NewParseFail builds a parse-failure node for the given source text.
func NewParseFail(code string, loc Locator) *FailNode {
	r := loc.Range
	return &FailNode{
		ID:            ParseFailID(code),
		Failure:       true,
		Kind:          FailParse,
		FailReason:    ReasonParse,
		Name:          NameParseFail,
		Code:          code,
		URI:           loc.URI,
		Range:         &r,
		IncomingCalls: []string{},
	}
}

// NewPositionFail builds a relocation-failure node for the given source text.
func NewPositionFail(code string, loc Locator) *FailNode {
	r := loc.Range
	return &FailNode{
		ID:            PositionFailID(code),
		Failure:       true,
		Kind:          FailPosition,
		FailReason:    ReasonPosition,
		Name:          NamePositionFail,
		Code:          code,
		URI:           loc.URI,
		Range:         &r,
		IncomingCalls: []string{},
	}
}

// NewDefinitionFail builds a resolution-failure node for a call site that
// never resolved under parentID.
func NewDefinitionFail(site CallSite, parentID string) *FailNode {
	s := site
	return &FailNode{
		ID:                     DefinitionFailID(ReasonDefinition, site, parentID),
		Failure:                true,
		Kind:                   FailDefinition,
		FailReason:             ReasonDefinition,
		Name:                   NameDefinitionFail,
		CallExpressionLocation: &s,
		IncomingCalls:          []string{},
	}
}
