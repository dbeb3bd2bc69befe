package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// buildZip writes a zip with the given name→content entries and returns its
// path.
func buildZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"slack-export/channels/general/general.txt": "hello",
		"slack-export/dms/alice-bob/alice-bob.txt":  "hi",
	})
	dest := t.TempDir()

	var reports int
	err := Extract(context.Background(), archive, dest, func(done, total, percent int) {
		reports++
		if percent < 0 || percent > 100 {
			t.Errorf("percent out of range: %d", percent)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if reports == 0 {
		t.Error("expected at least one progress report (final file)")
	}

	data, err := os.ReadFile(filepath.Join(dest, "slack-export", "channels", "general", "general.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestExtractProgressMonotone(t *testing.T) {
	entries := make(map[string]string)
	for i := 0; i < 55; i++ {
		entries[filepath.Join("channels", "c", "f"+string(rune('a'+i%26)))+".txt"] = "data"
	}
	archive := buildZip(t, entries)

	last := -1
	err := Extract(context.Background(), archive, t.TempDir(), func(done, total, percent int) {
		if percent < last {
			t.Errorf("percent went backwards: %d -> %d", last, percent)
		}
		last = percent
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != 100 {
		t.Errorf("final percent = %d, want 100", last)
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty.zip")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	err := Extract(context.Background(), empty, t.TempDir(), nil)
	if !errors.Is(err, ErrCorruptArchive) {
		t.Errorf("err = %v, want ErrCorruptArchive", err)
	}
}

func TestExtractPathEscape(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"../outside.txt": "evil",
	})
	dest := t.TempDir()

	err := Extract(context.Background(), archive, dest, nil)
	if !errors.Is(err, ErrPathEscape) {
		t.Fatalf("err = %v, want ErrPathEscape", err)
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "outside.txt")); statErr == nil {
		t.Error("entry escaped the extract root")
	}
}

func TestExtractCancelled(t *testing.T) {
	archive := buildZip(t, map[string]string{"a.txt": "x", "b.txt": "y"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Extract(ctx, archive, t.TempDir(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
