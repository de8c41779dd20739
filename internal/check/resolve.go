package check

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const scriptScheme = "file://"

// ErrScriptEscapes is returned for a relative script name that leaves the
// checks directory.
var ErrScriptEscapes = errors.New("script path leaves the checks directory")

// ScriptPath maps an exec check's `check:` value to the executable it runs.
// "file://name" is looked up under checksDir and must stay inside it;
// "file:///abs/path" is used as written. The file must be an executable
// regular file.
func ScriptPath(uri, checksDir string) (string, error) {
	if uri == "" {
		return "", errors.New("exec check has no script")
	}
	ref, ok := strings.CutPrefix(uri, scriptScheme)
	if !ok || ref == "" {
		return "", fmt.Errorf("script %q: want %sname or %s/absolute/path", uri, scriptScheme, scriptScheme)
	}

	path := ref
	if !filepath.IsAbs(ref) {
		if !filepath.IsLocal(ref) {
			return "", fmt.Errorf("script %q: %w", uri, ErrScriptEscapes)
		}
		path = filepath.Join(checksDir, ref)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("script %q: %s does not exist", uri, path)
	case err != nil:
		return "", fmt.Errorf("script %q: %w", uri, err)
	case !info.Mode().IsRegular():
		return "", fmt.Errorf("script %q: %s is not a regular file", uri, path)
	case info.Mode().Perm()&0o111 == 0:
		return "", fmt.Errorf("script %q: %s is not executable", uri, path)
	}
	return path, nil
}
