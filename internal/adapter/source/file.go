// Package source retrieves named raster and vector documents from a local
// directory or an HTTP base URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/storm-raster-viewer/internal/domain"
)

// File reads documents from a directory.
type File struct {
	dir string
}

// NewFile creates a source rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

// Fetch reads dir/name. Names must stay inside the directory.
func (f *File) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.FetchError{Name: name, Err: err}
	}
	if !filepath.IsLocal(name) {
		return nil, &domain.FetchError{Name: name, Err: fmt.Errorf("name escapes source directory")}
	}

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.FetchError{Name: name, Err: domain.ErrNotFound}
		}
		return nil, &domain.FetchError{Name: name, Err: err}
	}
	return data, nil
}
