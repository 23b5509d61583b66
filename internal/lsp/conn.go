package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

type result struct {
	raw json.RawMessage
	err error
}

// Conn multiplexes JSON-RPC requests over one reader/writer pair. Requests
// from the server are answered with empty results so servers that ask for
// configuration do not stall.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	logger  *slog.Logger

	nextID    int64
	pendingMu sync.Mutex
	pending   map[int64]chan result
	closed    atomic.Bool
}

// NewConn creates a connection. Call ReadLoop to start receiving.
func NewConn(r io.Reader, w io.Writer, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		logger:  logger,
		pending: make(map[int64]chan result),
	}
}

// Call sends a request and decodes its result into out, which may be nil.
func (c *Conn) Call(ctx context.Context, method string, params, out interface{}) error {
	if c.closed.Load() {
		return ErrServerNotRunning
	}

	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan result, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %v", method, ErrRequestTimeout, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if out == nil || len(res.raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.raw, out); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, method, err)
		}
		return nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params interface{}) error {
	if c.closed.Load() {
		return ErrServerNotRunning
	}
	return c.write(Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params})
}

func (c *Conn) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.writer, v)
}

// ReadLoop dispatches inbound messages until the stream ends or ctx is done.
func (c *Conn) ReadLoop(ctx context.Context) error {
	defer c.Close()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := ReadMessage(c.reader)
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrServerCrashed
			}
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(body)
	}
}

func (c *Conn) dispatch(body []byte) {
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Warn("dropping malformed lsp message", slog.String("error", err.Error()))
		return
	}

	switch {
	case msg.Method != "" && len(msg.ID) > 0:
		c.answer(msg)
	case msg.Method != "":
		if msg.Method == "window/logMessage" {
			var p LogMessageParams
			if json.Unmarshal(msg.Params, &p) == nil {
				c.logger.Debug("lsp log", slog.String("message", p.Message))
			}
		}
	default:
		id, err := strconv.ParseInt(string(bytes.Trim(msg.ID, `"`)), 10, 64)
		if err != nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		c.pendingMu.Unlock()
		if !ok {
			return
		}
		res := result{raw: msg.Result}
		if msg.Error != nil {
			res.err = &LSPError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
		}
		select {
		case ch <- res:
		default:
		}
	}
}

// answer replies to server-initiated requests.
func (c *Conn) answer(msg message) {
	var out interface{}
	if msg.Method == "workspace/configuration" {
		var p ConfigurationParams
		_ = json.Unmarshal(msg.Params, &p)
		out = make([]interface{}, len(p.Items))
	}
	if err := c.write(Response{JSONRPC: JSONRPCVersion, ID: msg.ID, Result: out}); err != nil {
		c.logger.Debug("answer server request", slog.String("method", msg.Method), slog.String("error", err.Error()))
	}
}

// Close fails every pending request and rejects new ones.
func (c *Conn) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- result{err: ErrServerCrashed}:
		default:
		}
		delete(c.pending, id)
	}
}
