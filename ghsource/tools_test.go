package ghsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/issueplanner/planloop"
)

func TestRegisterToolsOffersAllThree(t *testing.T) {
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, NewClient(context.Background(), ""))

	assert.Equal(t, []string{"get_issue", "list_repo_files", "get_repo_file"}, registry.Names())
	for _, def := range registry.Definitions() {
		assert.NotEmpty(t, def.Description, "tool %s missing description", def.Name)
		assert.NotNil(t, def.Parameters, "tool %s missing schema", def.Name)
	}
}

func invokeTool(t *testing.T, registry *planloop.ToolRegistry, name, args string) map[string]interface{} {
	t.Helper()
	tool, ok := registry.Resolve(name)
	require.True(t, ok, "tool %s not registered", name)

	content, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content), &payload))
	return payload
}

func TestGetIssueTool(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "title": "Bug X", "state": "open", "user": {"login": "reporter"}}`)
	})
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, newTestClient(t, mux))

	payload := invokeTool(t, registry, "get_issue", `{"repo": "o/r", "issue_number": 7}`)
	assert.Equal(t, "Bug X", payload["title"])
	assert.Equal(t, float64(7), payload["number"])
}

func TestGetIssueToolMissingArgs(t *testing.T) {
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, NewClient(context.Background(), ""))

	tool, _ := registry.Resolve("get_issue")
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"repo": "o/r"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue_number")
}

func TestListRepoFilesTool(t *testing.T) {
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, newTestClient(t, treeHandler(t, "src/app.py", "src/util.go", "README.md")))

	payload := invokeTool(t, registry, "list_repo_files",
		`{"repo": "o/r", "extensions": [".py"], "path_prefixes": ["src/"]}`)

	assert.Equal(t, float64(1), payload["count"])
	assert.Equal(t, []interface{}{"src/app.py"}, payload["files"])
	assert.Equal(t, true, payload["filtered_by_extensions"])
}

func TestListRepoFilesToolPathShorthand(t *testing.T) {
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, newTestClient(t, treeHandler(t, "src/app.py", "docs/readme.md")))

	payload := invokeTool(t, registry, "list_repo_files", `{"repo": "o/r", "path": "src/"}`)
	assert.Equal(t, []interface{}{"src/app.py"}, payload["files"])
	assert.Equal(t, true, payload["filtered_by_prefixes"])
}

func TestGetRepoFileTool(t *testing.T) {
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, newTestClient(t, contentsHandler(t, "src/app.py", "print('hi')")))

	payload := invokeTool(t, registry, "get_repo_file", `{"repo": "o/r", "path": "src/app.py"}`)
	assert.Equal(t, "print('hi')", payload["content"])
	assert.Equal(t, false, payload["truncated"])
	assert.Equal(t, "DEFAULT_BRANCH", payload["ref"])
}

func TestGetRepoFileToolMaxChars(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/contents/big.txt", func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 50)
		for i := range body {
			body[i] = 'x'
		}
		fmt.Fprintf(w, `{"type": "file", "path": "big.txt", "encoding": "base64", "content": %q}`,
			base64.StdEncoding.EncodeToString(body))
	})
	registry := planloop.NewToolRegistry()
	RegisterTools(registry, newTestClient(t, mux))

	payload := invokeTool(t, registry, "get_repo_file", `{"repo": "o/r", "path": "big.txt", "max_chars": 10}`)
	assert.Equal(t, true, payload["truncated"])
	assert.Len(t, payload["content"], 10)
}
