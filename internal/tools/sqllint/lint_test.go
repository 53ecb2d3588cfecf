package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestQueriesCarryUniqueMarkers(t *testing.T) {
	l := newLinter()
	if err := l.lintPath(filepath.Join("..", "..", "sqlinline")); err != nil {
		t.Fatalf("lint: %v", err)
	}
	for _, v := range l.violations {
		t.Errorf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
	}
	if len(l.seen) == 0 {
		t.Fatal("expected queries to be found")
	}
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const QNoMarker = `select 1`\n" +
		"const QFirst = `--sql 11111111-2222-3333-4444-555555555555\nselect 1`\n" +
		"const QAgain = `--sql 11111111-2222-3333-4444-555555555555\nselect 2`\n" +
		"const Label = \"not sql at all\"\n"
	path := filepath.Join(dir, "q.go")
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatal(err)
	}

	l := newLinter()
	if err := l.lintPath(dir); err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(l.violations) != 2 {
		t.Fatalf("expected 2 violations, got %+v", l.violations)
	}
	if l.violations[0].name != "QNoMarker" || l.violations[1].name != "QAgain" {
		t.Fatalf("unexpected violations %+v", l.violations)
	}
}
