package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/fyrsmithlabs/ragd/internal/extract"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// maxFileSize bounds the files IngestPaths reads.
const maxFileSize int64 = 100 * 1024 * 1024

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
}

// inputFile is a file to ingest and the source label its chunks get.
type inputFile struct {
	Path   string
	Source string
}

// collectFiles expands paths into supported files. Directories are walked
// recursively, honoring the ignore files at their root; explicit files are
// kept even with an unsupported extension so the caller reports them. The
// result is sorted by path and de-duplicated.
//
// A walked file is labeled with its slash-separated path relative to the
// walk root, an explicit file with its base name. When two files would share
// a label, the later one is labeled with its full slash-separated path.
func collectFiles(ctx context.Context, paths []string) ([]inputFile, error) {
	seen := make(map[string]bool)
	var files []inputFile
	add := func(path, source string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, inputFile{Path: path, Source: source})
		}
	}

	for _, p := range paths {
		if p == "" {
			return nil, fmt.Errorf("%w: path cannot be empty", ragerr.ErrConfiguration)
		}
		clean := filepath.Clean(p)
		info, err := os.Stat(clean)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: path does not exist: %s", ragerr.ErrConfiguration, clean)
			}
			return nil, fmt.Errorf("%w: stat %s: %w", ragerr.ErrConfiguration, clean, err)
		}
		if !info.IsDir() {
			add(clean, filepath.Base(clean))
			continue
		}

		rules, err := loadIgnore(clean)
		if err != nil {
			return nil, fmt.Errorf("reading ignore files in %s: %w", clean, err)
		}
		err = filepath.WalkDir(clean, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, rerr := filepath.Rel(clean, path)
			if rerr != nil {
				return rerr
			}
			ignored := rules.match(filepath.ToSlash(rel), d.IsDir())
			if d.IsDir() {
				if path != clean && (skipDirs[d.Name()] || ignored) {
					return filepath.SkipDir
				}
				return nil
			}
			if ignored {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !extract.Supported(path) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if fi.Size() > maxFileSize {
				return nil
			}
			add(path, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", clean, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	labels := make(map[string]bool, len(files))
	for i := range files {
		if labels[files[i].Source] {
			files[i].Source = filepath.ToSlash(files[i].Path)
		}
		labels[files[i].Source] = true
	}
	return files, nil
}
