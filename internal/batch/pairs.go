package batch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Pairs matches every image in distDir with its reference in refDir. A
// reference of the same file name wins; otherwise any reference image with
// the same stem is used, so ref/a.png pairs with dist/a.jpg. Distorted
// images without a reference are skipped with a warning.
func Pairs(refDir, distDir string) ([]Pair, error) {
	refs, err := listImages(refDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference directory: %w", err)
	}
	dists, err := listImages(distDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list distorted directory: %w", err)
	}

	byName := make(map[string]string, len(refs))
	byStem := make(map[string]string, len(refs))
	for _, name := range refs {
		byName[name] = name
		stem := stemOf(name)
		// first in sorted order wins for ambiguous stems
		if _, ok := byStem[stem]; !ok {
			byStem[stem] = name
		}
	}

	var pairs []Pair
	for _, name := range dists {
		ref, ok := byName[name]
		if !ok {
			ref, ok = byStem[stemOf(name)]
		}
		if !ok {
			slog.Warn("No reference for distorted image", "file", filepath.Join(distDir, name))
			continue
		}
		pairs = append(pairs, Pair{
			Ref:  filepath.Join(refDir, ref),
			Dist: filepath.Join(distDir, name),
		})
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no matching images between %s and %s", refDir, distDir)
	}
	return pairs, nil
}

// listImages returns the sorted names of the image files directly in dir.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func stemOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
