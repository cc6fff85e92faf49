package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arclake/ingestord/internal/lineage"
)

func TestCandidatesSkipsUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "tracked.xml")
	untracked := filepath.Join(dir, "untracked.xml")
	for _, p := range []string{tracked, untracked} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	tr := lineage.New()
	tr.TrackDirect("tracked.xml", "/folders/one", 1)

	out := Candidates(tr, []string{tracked, untracked})
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1", len(out))
	}
	if out[0].Name != "tracked.xml" {
		t.Errorf("got %q, want tracked.xml", out[0].Name)
	}
}

func TestCandidatesFallsBackToStatWhenSizeUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xml")
	content := []byte("0123456789")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := lineage.New()
	tr.TrackDirect("a.xml", "/folders/one", 0)

	out := Candidates(tr, []string{path})
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1", len(out))
	}
	if out[0].Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d (from os.Stat fallback)", out[0].Size, len(content))
	}
}

func TestCandidatesPreservesLineageInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.xml")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	tr := lineage.New()
	tr.TrackDirect("zip.zip", "/folders/one", 100)
	tr.TrackExtracted("a.xml", "zip.zip", 1)

	out := Candidates(tr, []string{path})
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1", len(out))
	}
	if out[0].Info.RootArchive != "zip.zip" {
		t.Errorf("RootArchive = %q, want zip.zip", out[0].Info.RootArchive)
	}
	if out[0].Info.Source != lineage.SourceExtracted {
		t.Errorf("Source = %q, want extracted", out[0].Info.Source)
	}
}
