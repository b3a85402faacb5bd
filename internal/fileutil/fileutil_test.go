package fileutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "out", "latest.jpg")

	content := []byte("jpeg bytes")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
	if _, err := os.Stat(dst + ".part"); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestExpireFiles(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "20260101", "night", "old.jpg")
	oldText := filepath.Join(root, "20260101", "notes.txt")
	fresh := filepath.Join(root, "20260301", "fresh.JPG")
	for _, path := range []string{old, oldText, fresh} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	for _, path := range []string{old, oldText} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	result, err := ExpireFiles(root, time.Now().Add(-24*time.Hour), []string{".jpg"})
	if err != nil {
		t.Fatalf("ExpireFiles: %v", err)
	}
	if result.Removed != 1 || result.Bytes != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.RemovedDirs != 1 {
		t.Fatalf("expected the emptied night dir to be removed, got %+v", result)
	}
	if _, err := os.Stat(oldText); err != nil {
		t.Fatalf("non-matching extension removed: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh image removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "20260101", "night")); !os.IsNotExist(err) {
		t.Fatalf("expected empty dir removed, got %v", err)
	}
}

func TestExpireFilesMissingRoot(t *testing.T) {
	result, err := ExpireFiles(filepath.Join(t.TempDir(), "absent"), time.Now(), nil)
	if err != nil || result.Removed != 0 {
		t.Fatalf("expected empty result, got %+v err=%v", result, err)
	}
}
