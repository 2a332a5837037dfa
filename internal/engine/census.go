package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// File is one image found by the folder census.
type File struct {
	Name string
	Path string
	Size int64
}

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
	".bmp":  {},
}

// IsImageFile reports whether the file name carries a supported extension.
func IsImageFile(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListImages returns the image files directly inside dir, sorted the way a
// file browser shows them: case-insensitive with embedded numbers compared
// numerically, so img2 sorts before img10.
func ListImages(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery folder: %w", err)
	}

	names := make([]string, 0, len(entries))
	byName := make(map[string]File, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		names = append(names, entry.Name())
		byName[entry.Name()] = File{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
			Size: info.Size(),
		}
	}

	collator := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	collator.SortStrings(names)

	files := make([]File, 0, len(names))
	for _, name := range names {
		files = append(files, byName[name])
	}
	return files, nil
}
