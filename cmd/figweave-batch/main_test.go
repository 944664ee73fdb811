package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindBundles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tar.gz", "a.zip", "notes.txt.bak", "sub/c.tex", "sub/d.rar"} {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := findBundles(dir)
	if err != nil {
		t.Fatalf("findBundles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.zip"),
		filepath.Join(dir, "b.tar.gz"),
		filepath.Join(dir, "sub", "c.tex"),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if _, err := findBundles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
}
