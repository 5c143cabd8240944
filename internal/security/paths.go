// Package security guards the files the gateway tools write on request:
// plots, captures and database exports.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrOutsideAllowedDirs = errors.New("security: path is outside the allowed directories")

// canonical resolves symlinks in path, or in its nearest existing parent
// when path does not exist yet.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory rejects paths that resolve outside dir,
// including through symlinked parents.
func ValidatePathWithinDirectory(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideAllowedDirs, path, dir)
	}
	return nil
}

// ValidateOutputPath accepts paths under the working directory or the
// system temp directory.
func ValidateOutputPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if ValidatePathWithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (allowed: working directory, %s)", ErrOutsideAllowedDirs, path, os.TempDir())
}
