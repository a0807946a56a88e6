package validation

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var driveLetterPattern = regexp.MustCompile(`^[A-Za-z]:`)

// ValidateFilePath resolves a relative path inside root. Syntactic traversal
// forms (.., backslashes, ~, drive or scheme markers, absolute paths) are
// rejected before resolution; containment is checked after resolution,
// including through symlinks that already exist. It returns the absolute
// resolved path.
func ValidateFilePath(path, root string, mustExist bool) (string, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return "", Invalid("path", "must not be empty")
	case strings.ContainsRune(path, 0):
		return "", Invalid("path", "contains a NUL byte")
	case strings.Contains(path, ".."):
		return "", Invalid("path", "must not contain '..'")
	case strings.Contains(path, `\`):
		return "", Invalid("path", "must not contain backslashes")
	case strings.Contains(path, "~"):
		return "", Invalid("path", "must not contain '~'")
	case driveLetterPattern.MatchString(path) || strings.Contains(path, ":"):
		return "", Invalid("path", "must not contain drive or scheme markers")
	case strings.HasPrefix(path, "/") || filepath.IsAbs(path):
		return "", Invalid("path", "must be relative")
	}

	if strings.TrimSpace(root) == "" {
		return "", Invalid("root", "must not be empty")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", Wrap("root", "cannot be resolved", err)
	}

	resolved := filepath.Join(rootAbs, path)
	if !isWithin(rootAbs, resolved) {
		return "", Invalid("path", "escapes the storage root")
	}

	if real, ok := resolveExisting(resolved); ok {
		realRoot, rootErr := filepath.EvalSymlinks(rootAbs)
		if rootErr != nil {
			realRoot = rootAbs
		}
		if !isWithin(realRoot, real) {
			return "", Invalid("path", "resolves outside the storage root")
		}
	}

	if mustExist {
		if _, err := os.Stat(resolved); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", Invalid("path", "does not exist")
			}
			return "", Wrap("path", "cannot be accessed", err)
		}
	}

	return resolved, nil
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// target and re-attaches the remaining components.
func resolveExisting(target string) (string, bool) {
	for current := target; ; {
		if real, err := filepath.EvalSymlinks(current); err == nil {
			rest, relErr := filepath.Rel(current, target)
			if relErr != nil {
				return "", false
			}
			return filepath.Join(real, rest), true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}
