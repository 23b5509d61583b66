package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadMessage reads an LSP message (header + body) from the reader.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	// 1. Read Headers
	contentLength := 0
	sawHeader := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if !sawHeader {
				// Stray blank line between frames
				continue
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil || contentLength < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", value)
			}
		}
	}

	if contentLength == 0 {
		return nil, errors.New("missing or zero Content-Length")
	}

	// 2. Read Body
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// WriteMessage writes an LSP message to the writer in a single write.
func WriteMessage(w io.Writer, msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))...)
	frame = append(frame, body...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
