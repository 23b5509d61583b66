package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"codegraph/internal/downloader"
	"codegraph/internal/parser"
)

// ServerStatus reports where a language server was found and, when asked,
// the newest upstream version.
type ServerStatus struct {
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
	Path      string   `json:"path,omitempty"`
	Source    string   `json:"source,omitempty"`
	Latest    string   `json:"latest,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Doctor checks every known language server. Latest versions are looked up
// concurrently when checkLatest is set.
func (a *App) Doctor(ctx context.Context, checkLatest bool) ([]ServerStatus, error) {
	if a.downloader == nil {
		return nil, errors.New("doctor needs the language-server resolver")
	}
	configs := a.serverConfigs()
	names := downloader.ServerNames()
	out := make([]ServerStatus, len(names))

	for i, name := range names {
		st := ServerStatus{Name: name}
		custom := ""
		for _, lang := range parser.Languages() {
			sc, ok := configs[lang.Name]
			if !ok || sc.Name != name {
				continue
			}
			st.Languages = append(st.Languages, lang.Name)
			if o, ok := a.cfg.Servers[lang.Name]; ok && o.Command != "" {
				custom = o.Command
			}
		}
		cmd, err := a.downloader.Find(name, custom)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.Path, st.Source = cmd.Path, cmd.Source
		}
		slices.Sort(st.Languages)
		out[i] = st
	}

	if !checkLatest {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range out {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, 15*time.Second)
			defer cancel()
			v, err := downloader.ResolveLatest(lctx, out[i].Name)
			if err != nil {
				a.logger.Debug("latest version lookup failed",
					slog.String("server", out[i].Name), slog.String("error", err.Error()))
				return nil
			}
			out[i].Latest = v
			return nil
		})
	}
	return out, g.Wait()
}
