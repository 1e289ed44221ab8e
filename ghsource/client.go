// Package ghsource adapts the GitHub REST API into the research tools the
// planning loop offers the model: reading an issue, listing repository files
// under targeted prefixes, and reading individual file contents.
//
// All repository access is remote; nothing is cloned. Results are bounded
// (file-count and character caps) so a single tool call can never flood the
// model's context.
package ghsource

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const (
	// DefaultMaxFiles caps how many paths one list_repo_files call returns.
	DefaultMaxFiles = 80

	// DefaultMaxChars caps the decoded content one get_repo_file call returns.
	DefaultMaxChars = 8000
)

// Client is a bounded, read-only view of a GitHub repository.
type Client struct {
	gh *github.Client
}

// NewClient creates a Client. An empty token yields unauthenticated access,
// which works for public repositories at a much lower rate limit.
func NewClient(ctx context.Context, token string) *Client {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		))
	}
	return &Client{gh: github.NewClient(httpClient)}
}

// NewClientWithBaseURL points the client at a non-default API endpoint, for
// GitHub Enterprise or tests.
func NewClientWithBaseURL(ctx context.Context, token, baseURL string) (*Client, error) {
	c := NewClient(ctx, token)
	gh, err := c.gh.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub base URL %q: %w", baseURL, err)
	}
	c.gh = gh
	return c, nil
}

// splitRepo splits "owner/name" into its parts.
func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be in 'owner/name' format, got %q", repo)
	}
	return parts[0], parts[1], nil
}

// IssueDetails is the issue payload handed to the model.
type IssueDetails struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     string   `json:"state"`
	URL       string   `json:"url"`
	Author    string   `json:"author"`
	CreatedAt string   `json:"created_at"`
	Labels    []string `json:"labels"`
	Assignees []string `json:"assignees"`
}

// Issue fetches one issue.
func (c *Client) Issue(ctx context.Context, repo string, number int) (*IssueDetails, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	issue, _, err := c.gh.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("fetch issue %s#%d: %w", repo, number, err)
	}

	details := &IssueDetails{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		URL:       issue.GetHTMLURL(),
		Author:    issue.GetUser().GetLogin(),
		CreatedAt: issue.GetCreatedAt().Format("2006-01-02T15:04:05Z"),
		Labels:    make([]string, 0, len(issue.Labels)),
		Assignees: make([]string, 0, len(issue.Assignees)),
	}
	for _, l := range issue.Labels {
		details.Labels = append(details.Labels, l.GetName())
	}
	for _, a := range issue.Assignees {
		details.Assignees = append(details.Assignees, a.GetLogin())
	}
	return details, nil
}

// ListOptions filter a repository file listing. Zero-value fields apply no
// filter; MaxFiles <= 0 uses DefaultMaxFiles.
type ListOptions struct {
	MaxFiles     int
	Extensions   []string // e.g. [".py", ".go"], matched case-insensitively
	PathPrefixes []string // e.g. ["src/", "backend/api/"]
}

// FileListing is the result of one list_repo_files call.
type FileListing struct {
	Repo                 string   `json:"repo"`
	Count                int      `json:"count"`
	Files                []string `json:"files"`
	FilteredByExtensions bool     `json:"filtered_by_extensions"`
	FilteredByPrefixes   bool     `json:"filtered_by_prefixes"`
}

// ListFiles walks the repository tree at HEAD and returns file paths matching
// the filters, capped at MaxFiles.
func (c *Client) ListFiles(ctx context.Context, repo string, opts ListOptions) (*FileListing, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	exts := make([]string, 0, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts = append(exts, strings.ToLower(e))
	}
	prefixes := make([]string, 0, len(opts.PathPrefixes))
	for _, p := range opts.PathPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}

	tree, _, err := c.gh.Git.GetTree(ctx, owner, name, "HEAD", true)
	if err != nil {
		return nil, fmt.Errorf("list files in %s: %w", repo, err)
	}

	listing := &FileListing{
		Repo:                 repo,
		Files:                []string{},
		FilteredByExtensions: len(exts) > 0,
		FilteredByPrefixes:   len(prefixes) > 0,
	}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if p == "" {
			continue
		}
		if len(prefixes) > 0 && !hasAnyPrefix(p, prefixes) {
			continue
		}
		if len(exts) > 0 && !hasAnyExtension(p, exts) {
			continue
		}
		listing.Files = append(listing.Files, p)
		if len(listing.Files) >= maxFiles {
			break
		}
	}
	listing.Count = len(listing.Files)
	return listing, nil
}

func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pref := range prefixes {
		if strings.HasPrefix(p, pref) {
			return true
		}
	}
	return false
}

func hasAnyExtension(p string, exts []string) bool {
	suffix := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if suffix == e {
			return true
		}
	}
	return false
}

// FileSnapshot is the result of one get_repo_file call. Content is decoded
// text capped at the requested character budget.
type FileSnapshot struct {
	Repo      string `json:"repo"`
	Path      string `json:"path"`
	Ref       string `json:"ref"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
}

// FileContent reads one file from the repository. An empty ref reads the
// default branch; maxChars <= 0 uses DefaultMaxChars.
func (c *Client) FileContent(ctx context.Context, repo, filePath, ref string, maxChars int) (*FileSnapshot, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	fileContent, dirContent, _, err := c.gh.Repositories.GetContents(ctx, owner, name, filePath, opts)
	if err != nil {
		return nil, fmt.Errorf("fetch %s from %s: %w", filePath, repo, err)
	}
	if fileContent == nil || dirContent != nil {
		return nil, fmt.Errorf("path %q in %s is not a file", filePath, repo)
	}

	text, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s from %s: %w", filePath, repo, err)
	}

	snapshot := &FileSnapshot{
		Repo:    repo,
		Path:    filePath,
		Ref:     ref,
		Content: text,
	}
	if snapshot.Ref == "" {
		snapshot.Ref = "DEFAULT_BRANCH"
	}
	if len(text) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		snapshot.Content = text[:cut]
		snapshot.Truncated = true
	}
	return snapshot, nil
}
