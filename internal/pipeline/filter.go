package pipeline

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// ExtensionSet is a case-insensitive set of file extensions.
type ExtensionSet map[string]struct{}

// NewExtensionSet builds a set from extensions such as ".jpg" or "PNG".
func NewExtensionSet(extensions []string) ExtensionSet {
	set := make(ExtensionSet, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Match reports whether the extension of path is in the set.
func (s ExtensionSet) Match(path string) bool {
	_, ok := s[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FilterImages keeps the paths whose extension is in extensions, compared
// case-insensitively, preserving order. Each dropped path is logged.
func FilterImages(paths []string, extensions []string, log *logrus.Logger) []string {
	allowed := NewExtensionSet(extensions)
	images := make([]string, 0, len(paths))
	for _, p := range paths {
		if allowed.Match(p) {
			images = append(images, p)
			continue
		}
		log.WithField("file", p).Warn("Not an image file, dropped")
	}
	return images
}

// batchItem is a file to compress and the path of its output relative to the
// batch output directory.
type batchItem struct {
	Path string
	Rel  string
}

// collectFiles expands directories in inputs into the files below them whose
// extension is in extensions. Files found by a walk keep their path relative
// to the walked directory; plain paths keep only their base name and are
// passed through untouched so the caller can report on them.
func collectFiles(inputs []string, extensions []string, log *logrus.Logger) []batchItem {
	allowed := NewExtensionSet(extensions)
	var items []batchItem
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			items = append(items, batchItem{Path: in, Rel: filepath.Base(in)})
			continue
		}
		err = filepath.WalkDir(in, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				log.Warnf("Error accessing path %s: %v", path, err)
				return nil
			}
			if d.IsDir() || !allowed.Match(path) {
				return nil
			}
			rel, err := filepath.Rel(in, path)
			if err != nil {
				rel = filepath.Base(path)
			}
			items = append(items, batchItem{Path: path, Rel: rel})
			return nil
		})
		if err != nil {
			log.Warnf("Error walking %s: %v", in, err)
		}
	}
	return items
}

// uniqueNames hands out output names inside one batch, numbering repeats as
// name-1.ext, name-2.ext so no two items share an output.
type uniqueNames map[string]struct{}

func (u uniqueNames) claim(rel string) string {
	name := rel
	ext := filepath.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	for n := 1; ; n++ {
		key := strings.ToLower(name)
		if _, taken := u[key]; !taken {
			u[key] = struct{}{}
			return name
		}
		name = stem + "-" + strconv.Itoa(n) + ext
	}
}
