package export

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directories under the export root that never contain message files.
var skipDirs = map[string]bool{
	"files":              true,
	"canvases":           true,
	"shares":             true,
	"huddle_transcripts": true,
	"lists":              true,
}

// File names that sit next to message files but are not message files.
var skipNames = map[string]bool{
	"title.txt":    true,
	"metadata.txt": true,
}

// FindRoot locates the Slack export tree beneath an extraction directory.
// Exports usually unpack one directory deeper (slack-export-<team>-<ts>/),
// so when the extraction root itself has no channels/ or dms/ directory a
// subdirectory that has one is used: a slack-export* directory if any
// qualifies, otherwise the first qualifying subdirectory by name.
func FindRoot(extractPath string) (string, error) {
	if isExportRoot(extractPath) {
		return extractPath, nil
	}

	entries, err := os.ReadDir(extractPath)
	if err != nil {
		return "", fmt.Errorf("read extract dir: %w", err)
	}

	// Prefer the conventional slack-export-* name, then any candidate.
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(extractPath, e.Name())
		if !isExportRoot(dir) {
			continue
		}
		if strings.HasPrefix(e.Name(), "slack-export") {
			return dir, nil
		}
		candidates = append(candidates, dir)
	}
	if len(candidates) > 0 {
		sort.Strings(candidates)
		return candidates[0], nil
	}

	return "", fmt.Errorf("no slack export tree found under %s", extractPath)
}

func isExportRoot(dir string) bool {
	for _, sub := range []string{"channels", "dms"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

// ListFiles returns the message files of an export tree in deterministic
// order: every .txt beneath channels/ and dms/, minus the known
// non-message files. The caller parses them one at a time, so the sequence
// of records stays lazy at file granularity.
func ListFiles(root string) ([]string, error) {
	var files []string

	for _, sub := range []string{"channels", "dms"} {
		dir := filepath.Join(root, sub)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if skipNames[d.Name()] || !strings.HasSuffix(d.Name(), ".txt") {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
