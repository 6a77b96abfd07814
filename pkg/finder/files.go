package finder

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindSourceFiles walks the workspace directory and returns all .ts files,
// relative to root and slash-separated, excluding dependency directories,
// hidden directories, and the directories named in skip (relative to root).
func FindSourceFiles(root string, skip ...string) ([]string, error) {
	var sourceFiles []string

	skipped := make(map[string]bool, len(skip))
	for _, dir := range skip {
		if dir != "" {
			skipped[filepath.ToSlash(filepath.Clean(dir))] = true
		}
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			name := d.Name()
			if name == "node_modules" || strings.HasPrefix(name, ".") || skipped[rel] {
				return filepath.SkipDir
			}
			return nil
		}

		if IsSourceFile(rel) {
			sourceFiles = append(sourceFiles, rel)
		}
		return nil
	})

	slices.Sort(sourceFiles)
	return sourceFiles, err
}

// IsSourceFile reports whether name is a file the emit scheduler tracks.
func IsSourceFile(name string) bool {
	return strings.HasSuffix(name, ".ts") && !strings.HasSuffix(name, ".tsx")
}
