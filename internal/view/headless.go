package view

import (
	"context"
	"slices"
	"sync"
)

// Headless records pages without rendering them. Snapshots are immediate and
// carry no image.
type Headless struct {
	mu    sync.Mutex
	pages []Page
}

// NewHeadless creates a Headless presenter.
func NewHeadless() *Headless { return &Headless{} }

func (h *Headless) Show(_ context.Context, page Page) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pages = append(h.pages, page)
	return nil
}

func (h *Headless) WaitForSnapshot(ctx context.Context, nodeID string) (Snapshot, error) {
	return Snapshot{NodeID: nodeID}, ctx.Err()
}

// Pages returns the pages shown so far, in order.
func (h *Headless) Pages() []Page {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.pages)
}
