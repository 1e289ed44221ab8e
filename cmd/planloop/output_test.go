package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martinemde/issueplanner/planloop"
)

func TestSavePlanWritesMarkdownWithHeader(t *testing.T) {
	dir := t.TempDir()
	ref := planloop.IssueRef{Repo: "o/r", IssueNumber: 7}

	path, err := savePlan(dir, ref, "Step 1. Fix it.")
	if err != nil {
		t.Fatalf("savePlan: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "execution_plan_o_r_issue_7_") || !strings.HasSuffix(name, ".md") {
		t.Errorf("file name = %q", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"# GitHub Issue Analysis: o/r#7",
		"**Repository:** o/r",
		"**Issue Number:** 7",
		"Step 1. Fix it.",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("plan file missing %q", want)
		}
	}
	if !strings.HasSuffix(content, "\n") {
		t.Error("plan file should end with a newline")
	}
}

func TestSavePlanCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	ref := planloop.IssueRef{Repo: "o/r", IssueNumber: 1}

	if _, err := savePlan(dir, ref, "plan"); err != nil {
		t.Fatalf("savePlan: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("output dir not created: %v", err)
	}
}
