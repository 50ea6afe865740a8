package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLimitsCommandPrintsEveryKind(t *testing.T) {
	out, err := runCommand(t, "limits")
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	for _, want := range []string{"pdf", "slidedeck", "spreadsheet", "25 MiB", "50,000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLimitsCommandHonorsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.toml")
	if err := os.WriteFile(path, []byte("[pdf]\nmax_pages = 3\n"), 0o600); err != nil {
		t.Fatalf("write limits: %v", err)
	}
	out, err := runCommand(t, "--limits", path, "limits")
	if err != nil {
		t.Fatalf("limits: %v", err)
	}
	if !strings.Contains(out, " 3 ") {
		t.Fatalf("expected overridden page limit in output:\n%s", out)
	}
}

func TestExtractCommandSummarizesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.csv")
	if err := os.WriteFile(path, []byte("name,score\nada,91\nlin,87\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	out, err := runCommand(t, "extract", path)
	if err != nil {
		t.Fatalf("extract: %v\n%s", err, out)
	}
	for _, want := range []string{"received", "completed", "grades.csv", "spreadsheet", "Cells"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestExtractCommandMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.csv")
	if err := os.WriteFile(path, []byte("name,score\nada,91\n"), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	out, err := runCommand(t, "extract", "--markdown", path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(out, "ada") || strings.Contains(out, "completed") {
		t.Fatalf("expected only formatted text, got:\n%s", out)
	}
}

func TestExtractCommandReportsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("definitely not a pdf"), 0o600); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	out, err := runCommand(t, "extract", path)
	if err == nil {
		t.Fatalf("expected failure, got output:\n%s", out)
	}
	if !strings.Contains(out, "failed") {
		t.Fatalf("expected failed phase in progress output:\n%s", out)
	}
}

func TestExtractCommandRejectsUnsupportedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.docx")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write docx: %v", err)
	}
	if _, err := runCommand(t, "extract", path); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
