package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VersionResolver fetches the latest version for a language server.
type VersionResolver interface {
	ResolveLatestVersion(ctx context.Context) (string, error)
}

// GitHubReleaseResolver resolves versions from GitHub releases.
type GitHubReleaseResolver struct {
	owner      string
	repo       string
	tagPrefix  string // releases are filtered by this prefix, e.g. "gopls/"
	apiBase    string
	httpClient *http.Client
}

// NPMResolver resolves versions from the npm registry.
type NPMResolver struct {
	packageName string
	registry    string
	httpClient  *http.Client
}

// NewGitHubResolver creates a resolver for GitHub releases.
func NewGitHubResolver(owner, repo, tagPrefix string) *GitHubReleaseResolver {
	return &GitHubReleaseResolver{
		owner:      owner,
		repo:       repo,
		tagPrefix:  tagPrefix,
		apiBase:    "https://api.github.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewNPMResolver creates a resolver for npm packages.
func NewNPMResolver(packageName string) *NPMResolver {
	return &NPMResolver{
		packageName: packageName,
		registry:    "https://registry.npmjs.org",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ResolveLatestVersion returns the newest release tag carrying the prefix,
// with the prefix stripped.
func (r *GitHubReleaseResolver) ResolveLatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=50", r.apiBase, r.owner, r.repo)
	if r.tagPrefix == "" {
		url = fmt.Sprintf("%s/repos/%s/%s/releases/latest", r.apiBase, r.owner, r.repo)
	}

	var body []byte
	if err := getJSON(ctx, r.httpClient, url, "GitHub", &body); err != nil {
		return "", err
	}

	type release struct {
		TagName    string `json:"tag_name"`
		Prerelease bool   `json:"prerelease"`
	}
	if r.tagPrefix == "" {
		var rel release
		if err := json.Unmarshal(body, &rel); err != nil {
			return "", fmt.Errorf("decode GitHub response: %w", err)
		}
		return rel.TagName, nil
	}

	var releases []release
	if err := json.Unmarshal(body, &releases); err != nil {
		return "", fmt.Errorf("decode GitHub response: %w", err)
	}
	for _, rel := range releases {
		if !rel.Prerelease && strings.HasPrefix(rel.TagName, r.tagPrefix) {
			return strings.TrimPrefix(rel.TagName, r.tagPrefix), nil
		}
	}
	return "", fmt.Errorf("no %s release with prefix %q", r.repo, r.tagPrefix)
}

// ResolveLatestVersion fetches the latest npm package version.
func (r *NPMResolver) ResolveLatestVersion(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/%s/latest", r.registry, r.packageName)

	var body []byte
	if err := getJSON(ctx, r.httpClient, url, "npm registry", &body); err != nil {
		return "", err
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(body, &pkg); err != nil {
		return "", fmt.Errorf("decode npm response: %w", err)
	}
	return pkg.Version, nil
}

func getJSON(ctx context.Context, client *http.Client, url, source string, out *[]byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch from %s: %w", source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", source, resp.StatusCode, string(body))
	}
	*out = body
	return nil
}
