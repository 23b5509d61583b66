// Package builder walks a program's call graph from an entry function,
// resolving each call site to its definition and recording every visited
// function, or the reason it could not be visited, in a NodeMap.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"codegraph/internal/artifact"
	"codegraph/internal/graph"
	"codegraph/internal/parser"
	"codegraph/internal/scanner"
	"codegraph/internal/source"
	"codegraph/internal/view"
	"codegraph/util"
)

const DefaultMaxResolveAttempts = 5

// Extractor reads the text of a function and its file.
type Extractor interface {
	Extract(ctx context.Context, loc graph.Locator) (*source.Source, error)
}

// Resolver maps a call site to definition candidates.
type Resolver interface {
	Definition(ctx context.Context, uri string, site graph.CallSite) ([]graph.Candidate, error)
}

// Expander widens a plain definition location to the function declaring it.
type Expander interface {
	Expand(ctx context.Context, c graph.Candidate) (graph.Locator, error)
}

type Config struct {
	Extractor Extractor
	Resolver  Resolver
	// Optional collaborators.
	Expander  Expander
	Presenter view.Presenter
	Artifacts artifact.Store
	Boundary  *Boundary
	Parser    *parser.Parser

	MaxResolveAttempts int
	ResolveRetryDelay  time.Duration
	// ScopeIdentityToFile adds the file URI to node identity so identical
	// functions in different files stay apart.
	ScopeIdentityToFile bool

	Logger *slog.Logger
}

// Builder builds call graphs. Each Build owns its NodeMap; nothing is shared
// between builds.
type Builder struct {
	cfg    Config
	parser *parser.Parser
	logger *slog.Logger
}

// Result is a finished build.
type Result struct {
	EntryID     string
	EntryName   string
	Entry       graph.Locator
	ArtifactDir string
	Nodes       *graph.NodeMap
	Duration    time.Duration
}

// Graph projects the result from its entry node.
func (r *Result) Graph() (*graph.GraphNode, error) {
	return r.Nodes.Project(r.EntryID)
}

func New(cfg Config) (*Builder, error) {
	if cfg.Extractor == nil {
		return nil, errors.New("builder: extractor is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("builder: resolver is required")
	}
	if cfg.MaxResolveAttempts <= 0 {
		cfg.MaxResolveAttempts = DefaultMaxResolveAttempts
	}
	if cfg.Presenter == nil {
		cfg.Presenter = view.NewHeadless()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Parser
	if p == nil {
		p = parser.New()
	}
	return &Builder{cfg: cfg, parser: p, logger: logger}, nil
}

// Build walks the call graph starting at entry. Errors reading the entry are
// returned; everything that goes wrong further down becomes a FailNode or a
// logged, truncated branch.
func (b *Builder) Build(ctx context.Context, entry graph.Locator) (*Result, error) {
	start := time.Now()
	r := &run{Builder: b, nodes: graph.NewNodeMap()}

	root, err := r.visit(ctx, entry, "")
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		buildDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	res := &Result{
		EntryID:   root.NodeID(),
		EntryName: nodeName(root),
		Entry:     entry,
		Nodes:     r.nodes,
	}
	res.ArtifactDir = r.dir
	if res.ArtifactDir == "" {
		res.ArtifactDir = ArtifactDir(res.EntryName, entry.URI, res.EntryID)
	}
	b.saveGraph(ctx, res)

	res.Duration = time.Since(start)
	buildDuration.WithLabelValues("ok").Observe(res.Duration.Seconds())
	b.logger.Info("graph built",
		slog.String("entry", res.EntryName),
		slog.String("id", util.ShortID(res.EntryID)),
		slog.Int("nodes", r.nodes.Len()),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (b *Builder) saveGraph(ctx context.Context, res *Result) {
	if b.cfg.Artifacts == nil {
		return
	}
	tree, err := res.Graph()
	if err != nil {
		b.logger.Error("project graph", slog.String("error", err.Error()))
		return
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		b.logger.Error("encode graph", slog.String("error", err.Error()))
		return
	}
	if err := b.cfg.Artifacts.Put(ctx, res.ArtifactDir, GraphFile, data); err != nil {
		b.logger.Warn("save graph artifact", slog.String("dir", res.ArtifactDir), slog.String("error", err.Error()))
	}
}

// run is the state of one build.
type run struct {
	*Builder
	nodes *graph.NodeMap
	dir   string
}

// visit maps the function at loc. parentID is empty for the entry.
func (r *run) visit(ctx context.Context, loc graph.Locator, parentID string) (graph.Node, error) {
	src, err := r.cfg.Extractor.Extract(ctx, loc)
	if err != nil {
		return nil, err
	}

	lang, err := parser.ForPath(util.URIToPath(loc.URI))
	if err != nil {
		return r.parseFail(ctx, src, loc, parentID, err)
	}
	frag, err := r.parser.ParseFunction(lang, src.FunctionText)
	if err != nil {
		return r.parseFail(ctx, src, loc, parentID, err)
	}
	defer frag.Close()
	file, err := r.parser.Parse(lang, src.FileText)
	if err != nil {
		return r.parseFail(ctx, src, loc, parentID, err)
	}
	defer file.Close()

	fn := scanner.Relocate(frag.Node, frag.Tree.Source, file.Root(), file.Source)
	if fn == nil {
		r.logger.Error("could not position function",
			slog.String("uri", loc.URI), slog.Int("line", loc.Range.Start.Line+1))
		return r.fail(ctx, graph.NewPositionFail(src.FunctionText, loc), parentID)
	}

	sites, err := scanner.CallSites(lang, fn, file.Source, src.Lines)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.URI, err)
	}

	id, err := r.identity(fn, file.Source, loc.URI)
	if err != nil {
		return nil, err
	}
	if existing, ok := r.nodes.Get(id); ok {
		if parentID != "" {
			if err := r.nodes.AppendIncoming(id, parentID); err != nil {
				return nil, err
			}
		}
		nodeRevisits.Inc()
		return existing, nil
	}

	incoming := []string{}
	if parentID != "" {
		incoming = []string{parentID}
	}
	node := &graph.MapNode{
		ID:            id,
		URI:           loc.URI,
		Range:         parser.NodeRange(src.Lines, fn),
		Code:          file.Text(fn),
		Name:          parser.FunctionName(lang, fn, file.Source),
		IncomingCalls: incoming,
		OutgoingCalls: []string{},
	}
	// Inserted before the children are resolved so that a cycle back to this
	// function finds it already mapped.
	r.nodes.Insert(node)
	nodesCreated.WithLabelValues("function").Inc()
	if parentID == "" {
		r.dir = ArtifactDir(node.Name, node.URI, node.ID)
	}

	children, err := r.children(ctx, node, sites)
	if err != nil {
		r.logger.Error("resolving callees failed, branch truncated",
			slog.String("function", node.Name),
			slog.String("id", util.ShortID(node.ID)),
			slog.String("error", err.Error()))
	}
	if err := r.nodes.SetOutgoing(id, children); err != nil {
		return nil, err
	}
	return node, nil
}

func (r *run) identity(fn *tree_sitter.Node, src []byte, uri string) (string, error) {
	structure := scanner.Structure(fn, src)
	if r.cfg.ScopeIdentityToFile {
		return graph.NodeIdentity(map[string]any{"uri": uri, "structure": structure})
	}
	return graph.NodeIdentity(structure)
}

func (r *run) parseFail(ctx context.Context, src *source.Source, loc graph.Locator, parentID string, cause error) (graph.Node, error) {
	r.logger.Error("parser did not return node",
		slog.String("uri", loc.URI),
		slog.Int("line", loc.Range.Start.Line+1),
		slog.String("error", cause.Error()))
	return r.fail(ctx, graph.NewParseFail(src.FunctionText, loc), parentID)
}

// fail records a failure node, or adds parentID to an identical one. New
// parse and position failures are shown like functions so their code is part
// of the build's snapshots.
func (r *run) fail(ctx context.Context, n *graph.FailNode, parentID string) (graph.Node, error) {
	if r.nodes.Has(n.ID) {
		return r.nodes.Upsert(n, parentID), nil
	}
	if parentID != "" {
		n.IncomingCalls = []string{parentID}
	}
	r.nodes.Insert(n)
	nodesCreated.WithLabelValues(string(n.Kind)).Inc()
	if n.Kind == graph.FailDefinition {
		return n, nil
	}

	if parentID == "" {
		r.dir = ArtifactDir(n.Name, n.URI, n.ID)
	}
	page := view.Page{NodeID: n.ID, FunctionName: n.Name, URI: n.URI, Code: n.Code}
	if n.Range != nil {
		page.StartLine = n.Range.Start.Line + 1
		page.EndLine = n.Range.End.Line + 1
	}
	if r.show(ctx, page) {
		if err := r.capture(ctx, page); err != nil {
			return n, err
		}
	}
	return n, nil
}

// children shows node, resolves its call sites and visits each target in
// call order. It returns the ids gathered so far together with any error.
func (r *run) children(ctx context.Context, node *graph.MapNode, sites []graph.CallSite) ([]string, error) {
	page := view.Page{
		NodeID:       node.ID,
		FunctionName: node.Name,
		URI:          node.URI,
		StartLine:    node.Range.Start.Line + 1,
		EndLine:      node.Range.End.Line + 1,
		Code:         node.Code,
	}
	shown := r.show(ctx, page)

	resolved, err := r.resolve(ctx, node.URI, sites)
	if err != nil {
		return []string{}, err
	}

	if shown {
		if err := r.capture(ctx, page); err != nil {
			return []string{}, err
		}
	}

	out := make([]string, 0, len(sites))
	for i, site := range sites {
		cands := resolved[i]
		if len(cands) == 0 {
			n, err := r.fail(ctx, graph.NewDefinitionFail(site, node.ID), node.ID)
			if err != nil {
				return out, err
			}
			out = append(out, n.NodeID())
			continue
		}

		loc := r.target(ctx, cands[0])
		if r.cfg.Boundary.Excluded(loc.URI) {
			excludedTargets.Inc()
			r.logger.Debug("definition outside boundary",
				slog.String("uri", loc.URI), slog.Int("line", site.Line))
			continue
		}

		child, err := r.visit(ctx, loc, node.ID)
		if err != nil {
			return out, err
		}
		if child != nil {
			out = append(out, child.NodeID())
		}
	}
	return out, nil
}

// resolve asks for the definition of every site. Sites that come back empty
// are asked again, up to the attempt limit; the others are not re-requested.
func (r *run) resolve(ctx context.Context, uri string, sites []graph.CallSite) ([][]graph.Candidate, error) {
	out := make([][]graph.Candidate, len(sites))
	pending := make([]int, len(sites))
	for i := range sites {
		pending[i] = i
	}

	for attempt := 1; attempt <= r.cfg.MaxResolveAttempts && len(pending) > 0; attempt++ {
		if attempt > 1 && r.cfg.ResolveRetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.cfg.ResolveRetryDelay):
			}
		}

		var still []int
		for _, i := range pending {
			cands, err := r.cfg.Resolver.Definition(ctx, uri, sites[i])
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				resolveAttempts.WithLabelValues("error").Inc()
				r.logger.Warn("definition request failed",
					slog.String("uri", uri),
					slog.Int("line", sites[i].Line),
					slog.Int("column", sites[i].Column),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
			}
			if len(cands) == 0 {
				if err == nil {
					resolveAttempts.WithLabelValues("empty").Inc()
				}
				still = append(still, i)
				continue
			}
			resolveAttempts.WithLabelValues("resolved").Inc()
			out[i] = cands
		}
		pending = still
	}

	if len(pending) > 0 {
		r.logger.Warn("could not find definition for call expression",
			slog.String("uri", uri),
			slog.Int("unresolved", len(pending)),
			slog.Int("attempts", r.cfg.MaxResolveAttempts))
	}
	return out, nil
}

// target turns a candidate into the locator of the function it names.
func (r *run) target(ctx context.Context, c graph.Candidate) graph.Locator {
	if c.Link || r.cfg.Expander == nil {
		return c.Locator()
	}
	loc, err := r.cfg.Expander.Expand(ctx, c)
	if err != nil {
		r.logger.Debug("declaration expansion failed",
			slog.String("uri", c.URI), slog.String("error", err.Error()))
		return c.Locator()
	}
	return loc
}

func (r *run) show(ctx context.Context, page view.Page) bool {
	if err := r.cfg.Presenter.Show(ctx, page); err != nil {
		r.logger.Warn("show node", slog.String("function", page.FunctionName), slog.String("error", err.Error()))
		return false
	}
	return true
}

// capture waits for the page's snapshot and stores the image. Only
// cancellation is an error; a missing snapshot is logged and skipped.
func (r *run) capture(ctx context.Context, page view.Page) error {
	snap, err := r.cfg.Presenter.WaitForSnapshot(ctx, page.NodeID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("no snapshot for node",
			slog.String("function", page.FunctionName),
			slog.String("id", util.ShortID(page.NodeID)),
			slog.String("error", err.Error()))
		return nil
	}
	if len(snap.Image) == 0 || r.cfg.Artifacts == nil {
		return nil
	}
	name := ImageName(page.FunctionName, page.URI, page.NodeID)
	if err := r.cfg.Artifacts.Put(ctx, r.dir, name, snap.Image); err != nil {
		r.logger.Warn("save snapshot", slog.String("name", name), slog.String("error", err.Error()))
	}
	return nil
}

func nodeName(n graph.Node) string {
	switch v := n.(type) {
	case *graph.MapNode:
		return v.Name
	case *graph.FailNode:
		return v.Name
	}
	return graph.NameAnonymous
}
