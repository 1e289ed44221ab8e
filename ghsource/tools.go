package ghsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/martinemde/issueplanner/planloop"
)

// RegisterTools registers the GitHub research tools on the registry:
// get_issue, list_repo_files, and get_repo_file.
func RegisterTools(registry *planloop.ToolRegistry, client *Client) {
	registry.Register(toolBinder{client}.getIssue())
	registry.Register(toolBinder{client}.listRepoFiles())
	registry.Register(toolBinder{client}.getRepoFile())
}

// toolBinder builds the individual tool bindings around one client.
type toolBinder struct {
	client *Client
}

func (b toolBinder) getIssue() planloop.RegisteredTool {
	return planloop.RegisteredTool{
		Spec: planloop.ToolSpec{
			Name:        "get_issue",
			Description: "Fetch a GitHub issue: title, body, labels, state, author, and URL. Call this first to fully understand the problem.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repo": map[string]interface{}{
						"type":        "string",
						"description": "Repository in 'owner/name' format.",
					},
					"issue_number": map[string]interface{}{
						"type":        "integer",
						"description": "The issue number to fetch.",
					},
				},
				"required": []string{"repo", "issue_number"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := planloop.ParseToolArguments(raw)
			if err != nil {
				return "", err
			}
			repo, ok := planloop.GetStringArg(args, "repo")
			if !ok {
				return "", errors.New("get_issue requires a 'repo' argument")
			}
			number, ok := planloop.GetIntArg(args, "issue_number")
			if !ok {
				return "", errors.New("get_issue requires an 'issue_number' argument")
			}

			issue, err := b.client.Issue(ctx, repo, number)
			if err != nil {
				return "", err
			}
			return marshalResult(issue)
		},
	}
}

func (b toolBinder) listRepoFiles() planloop.RegisteredTool {
	return planloop.RegisteredTool{
		Spec: planloop.ToolSpec{
			Name: "list_repo_files",
			Description: "List file paths in the repository at HEAD, filtered by extensions and path prefixes. " +
				"Decide a small, targeted set of path_prefixes from the issue before calling; do not scan the whole project.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repo": map[string]interface{}{
						"type":        "string",
						"description": "Repository in 'owner/name' format.",
					},
					"max_files": map[string]interface{}{
						"type":        "integer",
						"description": "Max number of files to return (default 80).",
					},
					"extensions": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "File extensions to keep, e.g. [\".py\", \".go\"].",
					},
					"path_prefixes": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Path prefixes to include, e.g. [\"src/\", \"app/api/\"].",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Single path prefix shorthand; use path_prefixes for several.",
					},
				},
				"required": []string{"repo"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := planloop.ParseToolArguments(raw)
			if err != nil {
				return "", err
			}
			repo, ok := planloop.GetStringArg(args, "repo")
			if !ok {
				return "", errors.New("list_repo_files requires a 'repo' argument")
			}

			opts := ListOptions{}
			if n, ok := planloop.GetIntArg(args, "max_files"); ok {
				opts.MaxFiles = n
			}
			if exts, ok := planloop.GetStringSliceArg(args, "extensions"); ok {
				opts.Extensions = exts
			}
			if prefixes, ok := planloop.GetStringSliceArg(args, "path_prefixes"); ok {
				opts.PathPrefixes = prefixes
			} else if p, ok := planloop.GetStringArg(args, "path"); ok && p != "" {
				// Single-prefix shorthand some models reach for.
				opts.PathPrefixes = []string{p}
			}

			listing, err := b.client.ListFiles(ctx, repo, opts)
			if err != nil {
				return "", err
			}
			return marshalResult(listing)
		},
	}
}

func (b toolBinder) getRepoFile() planloop.RegisteredTool {
	return planloop.RegisteredTool{
		Spec: planloop.ToolSpec{
			Name: "get_repo_file",
			Description: "Read one file's contents from the repository. Content is truncated past the character budget; " +
				"inspect only the handful of files most relevant to the issue.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repo": map[string]interface{}{
						"type":        "string",
						"description": "Repository in 'owner/name' format.",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "File path in the repo, e.g. 'src/main.py'.",
					},
					"ref": map[string]interface{}{
						"type":        "string",
						"description": "Optional branch, tag, or commit (default: the repo's default branch).",
					},
					"max_chars": map[string]interface{}{
						"type":        "integer",
						"description": "Max characters of decoded content to return (default 8000).",
					},
				},
				"required": []string{"repo", "path"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := planloop.ParseToolArguments(raw)
			if err != nil {
				return "", err
			}
			repo, ok := planloop.GetStringArg(args, "repo")
			if !ok {
				return "", errors.New("get_repo_file requires a 'repo' argument")
			}
			filePath, ok := planloop.GetStringArg(args, "path")
			if !ok {
				return "", errors.New("get_repo_file requires a 'path' argument")
			}
			ref, _ := planloop.GetStringArg(args, "ref")
			maxChars, _ := planloop.GetIntArg(args, "max_chars")

			snapshot, err := b.client.FileContent(ctx, repo, filePath, ref, maxChars)
			if err != nil {
				return "", err
			}
			return marshalResult(snapshot)
		},
	}
}

func marshalResult(v interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(out), nil
}
