package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidPath is returned by Discover when the input path is neither a
// directory nor a file with the expected extension.
var ErrInvalidPath = errors.New("path must point to a directory or a matching file")

// Discover lists the artifacts at path.
//
// A directory yields its regular files with extension ext (case-insensitive,
// non-recursive), sorted by name. A file is returned as-is when it carries
// ext. An empty directory yields no artifacts and no error.
func Discover(path, ext string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	if !info.IsDir() {
		if !hasExtension(path, ext) {
			return nil, fmt.Errorf("%w: %s is not a %s file", ErrInvalidPath, path, ext)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !hasExtension(entry.Name(), ext) {
			continue
		}
		files = append(files, filepath.Join(path, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func hasExtension(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}
