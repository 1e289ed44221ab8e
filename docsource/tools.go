package docsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/martinemde/issueplanner/planloop"
)

// RegisterTools registers the documentation research tools on the registry:
// search_docs and fetch_doc.
func RegisterTools(registry *planloop.ToolRegistry, search *SearchClient, fetcher *Fetcher) {
	registry.Register(searchDocsTool(search))
	registry.Register(fetchDocTool(fetcher))
}

func searchDocsTool(search *SearchClient) planloop.RegisteredTool {
	return planloop.RegisteredTool{
		Spec: planloop.ToolSpec{
			Name: "search_docs",
			Description: "Search the web for framework or library documentation related to the issue. " +
				"Use when the issue involves external APIs whose behavior you need to confirm.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search query, usually built from the issue title, framework name, or error message.",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Max number of results to return (default 3).",
					},
				},
				"required": []string{"query"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := planloop.ParseToolArguments(raw)
			if err != nil {
				return "", err
			}
			query, ok := planloop.GetStringArg(args, "query")
			if !ok || query == "" {
				return "", errors.New("search_docs requires a 'query' argument")
			}
			limit, _ := planloop.GetIntArg(args, "limit")

			results, err := search.Search(ctx, query, limit)
			if err != nil {
				return "", err
			}

			out, err := json.Marshal(struct {
				Query   string      `json:"query"`
				Count   int         `json:"count"`
				Results []DocResult `json:"results"`
			}{Query: query, Count: len(results), Results: results})
			if err != nil {
				return "", fmt.Errorf("encode search results: %w", err)
			}
			return string(out), nil
		},
	}
}

func fetchDocTool(fetcher *Fetcher) planloop.RegisteredTool {
	return planloop.RegisteredTool{
		Spec: planloop.ToolSpec{
			Name: "fetch_doc",
			Description: "Fetch one documentation page by URL and return its readable text. " +
				"Use on the most promising search_docs result; content is truncated past the character budget.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{
						"type":        "string",
						"description": "URL of the page to fetch (docs, blog, README in another repo).",
					},
				},
				"required": []string{"url"},
			},
		},
		Execute: func(ctx context.Context, raw json.RawMessage) (string, error) {
			args, err := planloop.ParseToolArguments(raw)
			if err != nil {
				return "", err
			}
			pageURL, ok := planloop.GetStringArg(args, "url")
			if !ok || pageURL == "" {
				return "", errors.New("fetch_doc requires a 'url' argument")
			}

			doc, err := fetcher.Fetch(ctx, pageURL)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(doc)
			if err != nil {
				return "", fmt.Errorf("encode document: %w", err)
			}
			return string(out), nil
		},
	}
}
