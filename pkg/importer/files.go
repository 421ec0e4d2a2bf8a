package importer

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolveFiles turns the selection flags into the ordered list of data files
// to import. A single file wins over a glob; with neither, every archive in
// the data directory is taken, zip first, then csv, then csv.gz.
func ResolveFiles(dataDir, file, glob string) ([]string, error) {
	if file != "" {
		return []string{resolveFilePath(file, dataDir)}, nil
	}

	if glob != "" {
		files := globFiles(glob)
		if len(files) == 0 && !filepath.IsAbs(glob) {
			files = globFiles(filepath.Join(dataDir, glob))
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no files found matching pattern %s", glob)
		}
		return files, nil
	}

	var files []string
	for _, pattern := range []string{"*.zip", "*.csv", "*.csv.gz"} {
		files = append(files, globFiles(filepath.Join(dataDir, pattern))...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .zip, .csv, or .csv.gz files found in %s", dataDir)
	}
	return files, nil
}

func globFiles(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var files []string
	for _, match := range matches {
		if info, err := os.Stat(match); err == nil && !info.IsDir() {
			files = append(files, match)
		}
	}
	return files
}

// resolveFilePath takes the path as given or relative to the data directory,
// preferring whichever exists. Nonexistent paths pass through so the open
// reports the failure.
func resolveFilePath(path, dataDir string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	candidate := filepath.Join(dataDir, path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return path
}
