// Package view presents graph nodes while a build runs and collects an
// image snapshot of each one.
package view

import "context"

// Page is what the presenter shows for one node. Lines are 1-based.
type Page struct {
	NodeID       string `json:"nodeId"`
	FunctionName string `json:"functionName"`
	URI          string `json:"uri"`
	StartLine    int    `json:"startLine"`
	EndLine      int    `json:"endLine"`
	Code         string `json:"code"`
}

// Snapshot is the rendered image of a page. Image is PNG data and may be
// empty when the presenter does not render.
type Snapshot struct {
	NodeID string
	Image  []byte
}

// Presenter shows one node at a time and reports when its snapshot is ready.
type Presenter interface {
	Show(ctx context.Context, page Page) error
	WaitForSnapshot(ctx context.Context, nodeID string) (Snapshot, error)
}
