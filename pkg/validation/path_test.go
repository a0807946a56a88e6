package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath_RejectsTraversalForms(t *testing.T) {
	root := t.TempDir()

	paths := []string{
		"",
		"../etc/passwd",
		"reports/../../secret",
		"/etc/passwd",
		"C:/Windows/system32",
		"c:report.md",
		"~/report.md",
		"reports/~backup",
		`reports\report.md`,
		"file://report.md",
		"http://example.com/report.md",
	}

	for _, p := range paths {
		_, err := ValidateFilePath(p, root, false)
		assert.ErrorIs(t, err, ErrInvalidInput, "path %q", p)
	}
}

func TestValidateFilePath_AcceptsPathsInsideRoot(t *testing.T) {
	root := t.TempDir()

	got, err := ValidateFilePath("reports/DRA_20240101_120000.md", root, false)
	require.NoError(t, err)

	rootAbs, _ := filepath.Abs(root)
	assert.Equal(t, filepath.Join(rootAbs, "reports", "DRA_20240101_120000.md"), got)
}

func TestValidateFilePath_MustExist(t *testing.T) {
	root := t.TempDir()

	_, err := ValidateFilePath("report.md", root, true)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "report.md"), []byte("# report"), 0o600))
	_, err = ValidateFilePath("report.md", root, true)
	assert.NoError(t, err)
}

func TestValidateFilePath_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ValidateFilePath("link/report.md", root, false)
	assert.Error(t, err)
}
