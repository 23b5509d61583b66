package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codegraph/internal/graph"
)

// Definition asks for the definition of the symbol at pos. Location links are
// normalised to their target range, which spans the full declaration.
func (s *Server) Definition(ctx context.Context, uri string, pos Position) ([]graph.Candidate, error) {
	if !s.Alive() {
		return nil, ErrServerNotRunning
	}
	ctx, span := startOperationSpan(ctx, "Definition", s.cfg.Name, uri)
	defer span.End()
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	var raw json.RawMessage
	err := s.conn.Call(reqCtx, "textDocument/definition", DefinitionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &raw)
	if err != nil {
		recordOperationMetrics(ctx, "definition", s.cfg.Name, time.Since(start), 0, false)
		setOperationSpanError(span, err)
		return nil, err
	}

	candidates, err := ParseDefinitionResult(raw)
	recordOperationMetrics(ctx, "definition", s.cfg.Name, time.Since(start), len(candidates), err == nil)
	setOperationSpanResult(span, len(candidates), err == nil)
	return candidates, err
}

// ParseDefinitionResult decodes the Location | Location[] | LocationLink[] |
// null union of a definition response.
func ParseDefinitionResult(raw json.RawMessage) ([]graph.Candidate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []graph.Candidate{}, nil
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	} else {
		items = []json.RawMessage{raw}
	}

	out := make([]graph.Candidate, 0, len(items))
	for _, item := range items {
		var probe struct {
			TargetURI *string `json:"targetUri"`
		}
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		if probe.TargetURI != nil {
			var link LocationLink
			if err := json.Unmarshal(item, &link); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			out = append(out, graph.Candidate{URI: link.TargetURI, Range: toGraphRange(link.TargetRange), Link: true})
			continue
		}
		var loc Location
		if err := json.Unmarshal(item, &loc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		out = append(out, graph.Candidate{URI: loc.URI, Range: toGraphRange(loc.Range)})
	}
	return out, nil
}

func toGraphRange(r Range) graph.Range {
	return graph.Range{
		Start: graph.Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   graph.Position{Line: r.End.Line, Character: r.End.Character},
	}
}

// PositionForCallSite converts a 1-based call site into an LSP position.
func PositionForCallSite(site graph.CallSite) Position {
	return Position{Line: site.Line - 1, Character: site.Column}
}
