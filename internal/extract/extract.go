// Package extract unpacks a staged archive into a job's extraction root.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCorruptArchive marks an archive whose central directory cannot be
	// read (including zero-byte uploads).
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrPathEscape marks an entry whose normalised path would write outside
	// the extract root.
	ErrPathEscape = errors.New("archive entry escapes extract root")
)

// reportEvery is how many files are written between progress reports.
const reportEvery = 10

// Progress receives extraction progress: files written so far, total file
// count, and the integer percent of uncompressed bytes written.
type Progress func(done, total, percent int)

// Extract unpacks the archive at archivePath into destDir, reporting
// progress and honouring cancellation between entries. Any failure leaves
// partially-extracted files in place for debugging.
func Extract(ctx context.Context, archivePath, destDir string, report Progress) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		// Go's reader flags non-local entry names up front; the per-entry
		// guard below turns those into ErrPathEscape instead.
		if reader == nil || !errors.Is(err, zip.ErrInsecurePath) {
			return fmt.Errorf("%w: %s", ErrCorruptArchive, err)
		}
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extract root: %w", err)
	}

	// Pre-scan for total uncompressed size so percent tracks bytes, not
	// file count.
	var totalBytes uint64
	var totalFiles int
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		totalBytes += f.UncompressedSize64
		totalFiles++
	}

	var writtenBytes uint64
	var writtenFiles int

	for _, f := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safePath(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", f.Name, err)
			}
			continue
		}

		if err := writeEntry(f, target); err != nil {
			return err
		}

		writtenBytes += f.UncompressedSize64
		writtenFiles++

		if report != nil && (writtenFiles%reportEvery == 0 || writtenFiles == totalFiles) {
			report(writtenFiles, totalFiles, percentOf(writtenBytes, totalBytes))
		}
	}

	return nil
}

// safePath joins an archive entry name onto the extract root, rejecting
// entries that would escape it.
func safePath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return target, nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", f.Name, err)
	}
	return nil
}

func percentOf(done, total uint64) int {
	if total == 0 {
		return 100
	}
	return int(done * 100 / total)
}
