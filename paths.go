package watermark

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// imageExtensions are the file types ListImages picks up.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether path has a recognized image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// OutputPath maps an input image path into the output tree by replacing the
// input root with the output root. The remaining sub-path and file name are
// preserved.
func OutputPath(input, inputRoot, outputRoot string) (string, error) {
	if inputRoot == "" {
		return "", errors.New("empty input root")
	}
	cleanRoot := filepath.Clean(inputRoot)
	cleanInput := filepath.Clean(input)

	if rel, err := filepath.Rel(cleanRoot, cleanInput); err == nil && rel != "." && !escapesRoot(rel) {
		return filepath.Join(outputRoot, rel), nil
	}

	// Fall back to substituting the first occurrence of the root, which
	// handles absolute inputs listed against a relative root.
	idx := strings.Index(input, inputRoot)
	if idx < 0 {
		return "", errors.Errorf("%s is not under input root %s", input, inputRoot)
	}
	return input[:idx] + outputRoot + input[idx+len(inputRoot):], nil
}

// escapesRoot reports whether a relative path climbs above its base.
func escapesRoot(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ListImages walks root and returns every image file below it in lexical
// order.
func ListImages(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImageFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list images in %s", root)
	}
	sort.Strings(paths)
	return paths, nil
}
