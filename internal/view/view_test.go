package view

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDeliverBeforeWait(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.Deliver(Snapshot{NodeID: "a"}), "nobody expects a yet")

	s.Expect("a")
	require.True(t, s.Deliver(Snapshot{NodeID: "a", Image: []byte{1}}))
	assert.False(t, s.Deliver(Snapshot{NodeID: "a", Image: []byte{2}}), "one pending snapshot per id")

	snap, err := s.Wait(context.Background(), "a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, snap.Image)
	assert.Zero(t, s.Pending())
}

func TestSignalWaitThenDeliver(t *testing.T) {
	s := NewSignal()
	s.Expect("b")
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Deliver(Snapshot{NodeID: "b", Image: []byte("png")})
	}()
	snap, err := s.Wait(context.Background(), "b", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "png", string(snap.Image))
}

func TestSignalTimeoutAndCancel(t *testing.T) {
	s := NewSignal()
	_, err := s.Wait(context.Background(), "c", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrSnapshotTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Wait(ctx, "d", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.Pending())
}

func TestHeadless(t *testing.T) {
	h := NewHeadless()
	require.NoError(t, h.Show(context.Background(), Page{NodeID: "x"}))
	snap, err := h.WaitForSnapshot(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", snap.NodeID)
	assert.Empty(t, snap.Image)
	assert.Len(t, h.Pages(), 1)
}

func TestDecodeImage(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeImage("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeImage(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeImage("data:image/png;base64,!!")
	assert.Error(t, err)
}

func dialPanel(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPanelRoundTrip(t *testing.T) {
	p := NewPanel(PanelConfig{SnapshotTimeout: 5 * time.Second})
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	conn := dialPanel(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.WaitForClient(ctx))

	page := Page{NodeID: "n1", FunctionName: "main", URI: "file:///a.go", StartLine: 3, EndLine: 5, Code: "func main() {}"}
	require.NoError(t, p.Show(ctx, page))

	var out panelOutbound
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "show", out.Type)
	require.NotNil(t, out.Page)
	assert.Equal(t, page, *out.Page)

	png := []byte("fake-png")
	require.NoError(t, conn.WriteJSON(panelInbound{
		Type:   "snapshot",
		NodeID: "n1",
		Image:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}))

	snap, err := p.WaitForSnapshot(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, png, snap.Image)

	p.Finish("build-1")
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "done", out.Type)
	assert.Equal(t, "build-1", out.BuildID)
}

func TestPanelReplaysCurrentPageToLateClient(t *testing.T) {
	p := NewPanel(PanelConfig{SnapshotTimeout: time.Second})
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	require.NoError(t, p.Show(context.Background(), Page{NodeID: "late", Code: "x"}))
	conn := dialPanel(t, srv)

	var out panelOutbound
	require.NoError(t, conn.ReadJSON(&out))
	require.NotNil(t, out.Page)
	assert.Equal(t, "late", out.Page.NodeID)
}

func TestPanelSnapshotTimesOutWithoutClient(t *testing.T) {
	p := NewPanel(PanelConfig{SnapshotTimeout: 20 * time.Millisecond})
	require.NoError(t, p.Show(context.Background(), Page{NodeID: "alone"}))
	_, err := p.WaitForSnapshot(context.Background(), "alone")
	assert.ErrorIs(t, err, ErrSnapshotTimeout)
}

func TestPanelServesIndex(t *testing.T) {
	p := NewPanel(PanelConfig{})
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "new WebSocket")
}
