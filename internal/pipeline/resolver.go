package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"image-shrink-go/internal/apperr"
)

// PathResolver turns a source and an optional destination into the path the
// compressed image is written to.
type PathResolver struct {
	Suffix string // inserted before the extension of derived names
	Prefix string // prepended to names placed into a directory
}

// Resolve returns the output path for the local file sourcePath.
//
//   - destination empty: <source dir>/<name><suffix><ext>
//   - destination is a directory (exists, or ends with a separator): <destination>/<prefix><base>
//   - otherwise destination is used verbatim
//
// The parent directory of the result is created.
func (r PathResolver) Resolve(sourcePath, destination string) (string, error) {
	const stage = "resolve output"

	if sourcePath == "" {
		return "", apperr.InvalidInputf(stage, "source path is empty")
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return "", apperr.InvalidInputf(stage, "source file does not exist: %s", sourcePath)
	}
	if info.IsDir() {
		return "", apperr.InvalidInputf(stage, "source is a directory: %s", sourcePath)
	}

	return r.resolve(filepath.Dir(sourcePath), filepath.Base(sourcePath), destination)
}

// ResolveNamed is Resolve for sources that have no natural directory, such
// as URLs: derived names are rooted at fallbackDir.
func (r PathResolver) ResolveNamed(name, destination, fallbackDir string) (string, error) {
	if name == "" {
		return "", apperr.InvalidInputf("resolve output", "source name is empty")
	}
	return r.resolve(fallbackDir, name, destination)
}

// ResolveInto places rel inside dir, treating dir as a directory even when
// it does not exist yet. rel may contain subdirectories; the prefix goes on
// the file name.
func (r PathResolver) ResolveInto(rel, dir string) (string, error) {
	return r.place(filepath.Join(dir, filepath.Dir(rel), r.Prefix+filepath.Base(rel)))
}

func (r PathResolver) resolve(dir, base, destination string) (string, error) {
	switch {
	case destination == "":
		return r.place(filepath.Join(dir, r.derivedName(base)))
	case isDirectory(destination):
		return r.ResolveInto(base, destination)
	default:
		return r.place(destination)
	}
}

func (r PathResolver) derivedName(base string) string {
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return name + r.Suffix + ext
}

// place creates the parent directory of path.
func (r PathResolver) place(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", apperr.IO("create output directory", err)
	}
	return path, nil
}

func isDirectory(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
