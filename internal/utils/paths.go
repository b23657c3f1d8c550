package utils

import "path/filepath"

// ResolvePath returns path unchanged when it's absolute or empty, otherwise
// joins it onto baseDir.
func ResolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
