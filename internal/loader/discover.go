package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoContractsDir is returned by Discover when the directory is missing.
var ErrNoContractsDir = errors.New("No contracts directory found")

// DefaultExtensions are the contract file extensions searched by default.
var DefaultExtensions = []string{".yaml", ".yml"}

// Discover returns the contract files under dir with one of exts, sorted
// by path. Hidden directories are skipped.
func Discover(dir string, exts []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoContractsDir, dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoContractsDir, dir)
	}
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}
