package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/martinemde/issueplanner/planloop"
)

// savePlan writes the plan as a timestamped markdown file under dir and
// returns the file path.
func savePlan(dir string, ref planloop.IssueRef, plan string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}

	now := time.Now()
	name := fmt.Sprintf("execution_plan_%s_issue_%d_%s.md",
		strings.ReplaceAll(ref.Repo, "/", "_"),
		ref.IssueNumber,
		now.Format("20060102_150405"),
	)
	path := filepath.Join(dir, name)

	var doc strings.Builder
	fmt.Fprintf(&doc, "# GitHub Issue Analysis: %s\n\n", ref)
	fmt.Fprintf(&doc, "**Generated on:** %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&doc, "**Repository:** %s\n", ref.Repo)
	fmt.Fprintf(&doc, "**Issue Number:** %d\n\n", ref.IssueNumber)
	doc.WriteString("---\n\n")
	doc.WriteString(plan)
	if !strings.HasSuffix(plan, "\n") {
		doc.WriteString("\n")
	}

	if err := os.WriteFile(path, []byte(doc.String()), 0o644); err != nil {
		return "", fmt.Errorf("write plan to %s: %w", path, err)
	}
	return path, nil
}
