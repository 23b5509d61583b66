package view

import (
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

//go:embed static
var staticFiles embed.FS

const (
	panelWriteWait = 10 * time.Second
	panelPongWait  = 60 * time.Second
	panelPingEvery = (panelPongWait * 9) / 10
	// Snapshots are PNG data URLs of a full function, so allow large frames.
	panelMaxMessage = 32 << 20
)

var panelUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type panelInbound struct {
	Type   string `json:"type"`
	NodeID string `json:"nodeId,omitempty"`
	Image  string `json:"image,omitempty"`
}

type panelOutbound struct {
	Type    string `json:"type"`
	Page    *Page  `json:"page,omitempty"`
	BuildID string `json:"buildId,omitempty"`
	Message string `json:"message,omitempty"`
}

// PanelConfig configures a Panel.
type PanelConfig struct {
	SnapshotTimeout time.Duration
	Logger          *slog.Logger
}

// Panel is a browser-backed presenter. Each shown page is pushed over a
// websocket; the page renders the code and answers with a PNG snapshot.
type Panel struct {
	signal  *Signal
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	clients   map[chan panelOutbound]struct{}
	last      *panelOutbound
	connected chan struct{}
	once      sync.Once
}

// NewPanel creates a Panel.
func NewPanel(cfg PanelConfig) *Panel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Panel{
		signal:    NewSignal(),
		timeout:   cfg.SnapshotTimeout,
		logger:    logger,
		clients:   make(map[chan panelOutbound]struct{}),
		connected: make(chan struct{}),
	}
}

// Handler serves the panel page at / and its websocket at /ws.
func (p *Panel) Handler() http.Handler {
	mux := http.NewServeMux()
	static, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/", http.FileServer(http.FS(static)))
	mux.HandleFunc("/ws", p.handleWS)
	return mux
}

// WaitForClient blocks until a browser connects or ctx ends.
func (p *Panel) WaitForClient(ctx context.Context) error {
	select {
	case <-p.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clients returns the number of connected browsers.
func (p *Panel) Clients() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Show pushes a page to every connected browser.
func (p *Panel) Show(ctx context.Context, page Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.signal.Expect(page.NodeID)
	pg := page
	n := p.broadcast(panelOutbound{Type: "show", Page: &pg}, true)
	if n == 0 {
		p.logger.Warn("no panel connected, snapshot will time out", slog.String("node", page.NodeID))
	}
	return nil
}

// WaitForSnapshot waits for the browser to render nodeID.
func (p *Panel) WaitForSnapshot(ctx context.Context, nodeID string) (Snapshot, error) {
	return p.signal.Wait(ctx, nodeID, p.timeout)
}

// Finish tells browsers the build is complete.
func (p *Panel) Finish(buildID string) {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	p.broadcast(panelOutbound{Type: "done", BuildID: buildID}, false)
}

func (p *Panel) broadcast(out panelOutbound, remember bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if remember {
		p.last = &out
	}
	for ch := range p.clients {
		pushPanel(ch, out)
	}
	return len(p.clients)
}

func (p *Panel) register() chan panelOutbound {
	ch := make(chan panelOutbound, 32)
	p.mu.Lock()
	p.clients[ch] = struct{}{}
	if p.last != nil {
		// A late browser still renders the node the build is waiting on.
		pushPanel(ch, *p.last)
	}
	p.mu.Unlock()
	p.once.Do(func() { close(p.connected) })
	return ch
}

func (p *Panel) unregister(ch chan panelOutbound) {
	p.mu.Lock()
	delete(p.clients, ch)
	p.mu.Unlock()
}

func (p *Panel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := panelUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(panelMaxMessage)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(panelPongWait)); err != nil {
		p.logger.Debug("panel ws set read deadline failed", slog.String("error", err.Error()))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(panelPongWait))
	})

	writeCh := p.register()
	defer p.unregister(writeCh)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(panelPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(panelWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(panelWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		var in panelInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "snapshot":
			img, err := decodeImage(in.Image)
			if err != nil {
				pushPanel(writeCh, panelOutbound{Type: "error", Message: err.Error()})
				continue
			}
			if !p.signal.Deliver(Snapshot{NodeID: in.NodeID, Image: img}) {
				p.logger.Debug("unexpected snapshot", slog.String("node", in.NodeID))
			}
		case "ping":
			pushPanel(writeCh, panelOutbound{Type: "pong"})
		default:
			pushPanel(writeCh, panelOutbound{Type: "error", Message: "unsupported type: " + in.Type})
		}
	}
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if _, data, ok := strings.Cut(s, ";base64,"); ok {
		s = data
	}
	img, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot image: %w", err)
	}
	return img, nil
}

// pushPanel never blocks: when the queue is full the oldest message is dropped.
func pushPanel(ch chan panelOutbound, out panelOutbound) {
	select {
	case ch <- out:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- out:
	default:
	}
}
