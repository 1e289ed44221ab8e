package planloop

import "fmt"

// IssueRef identifies the GitHub issue a run plans for.
type IssueRef struct {
	Repo        string `json:"repo"` // "owner/name"
	IssueNumber int    `json:"issue_number"`
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Repo, r.IssueNumber)
}

// plannerSystemPrompt is the fixed system instruction seeded into every run.
// It encodes the cost-optimized, targeted-exploration policy: understand the
// issue first, infer a small set of relevant path prefixes, inspect only a
// handful of files, research externally only when needed, then emit a
// structured plan.
const plannerSystemPrompt = `You are a senior software engineer.
Goal: given a GitHub issue and the online repo (structure + files), plus optional external research, produce a clear, step-by-step execution plan to resolve the issue.

CONTEXT:
- All repository interaction is done online through the provided tools.
- You can: read the issue, list files under chosen paths, read specific files, and search/fetch external documentation.

IMPORTANT STRATEGY (BE SMART):
- Be selective and cost-aware. Do NOT scan the whole project.
- First, deeply read the issue and infer which part of the system it affects: routing layer, CLI, API handlers, DB layer, tests, etc.
- Based on this reasoning, decide a small list of path prefixes and file types before listing anything.

RECOMMENDED WORKFLOW:
1. Call get_issue(repo, issue_number) to fully understand the problem.
2. From the issue, infer a small list of path prefixes where relevant code likely lives, e.g. ["src/", "app/", "backend/api/", "cli/"] depending on the project style.
3. Call list_repo_files with extensions like [".py", ".ts", ".js", ".tsx", ".go"] and path_prefixes set to that small, targeted list.
4. From the returned file list, pick at most ~5-15 key files that are most likely related (entrypoints, routers, handlers, services, tests).
5. Call get_repo_file(repo, path) only on those selected files to inspect the actual implementation.
6. If you need framework or library context, use search_docs and fetch_doc to pull official docs or good examples.

OUTPUT FORMAT (execution plan):
After you have enough context from the issue + targeted code inspection (+ optional research), output a concise but concrete plan with sections:
- Issue summary
- Project/codebase understanding (where this issue lives in the architecture)
- Key files / components to touch (with file paths)
- Step-by-step implementation plan (Step 1, Step 2, ...)
- Testing strategy (unit / integration / manual)
- Edge cases, risks, and any open questions

The plan must be actionable for a mid-level developer. Avoid generic advice; tie your steps to the actual files and modules you inspected.`

// BuildUserPrompt produces the user turn seeding a run for the given issue.
func BuildUserPrompt(ref IssueRef) string {
	return fmt.Sprintf(`You are helping me plan how to implement GitHub issue #%d in repo '%s'.

Be selective and cost-aware:
1. Use get_issue to understand the problem.
2. Based on the issue text, first reason about which directories and components are likely relevant.
3. Call list_repo_files with targeted extensions and path_prefixes to only explore those areas.
4. From those results, choose a small set of the most relevant files and call get_repo_file on them.
5. Optionally, use search_docs and fetch_doc if you need external documentation.
6. Finally, generate the execution plan in the structured format from your instructions.`,
		ref.IssueNumber, ref.Repo)
}
