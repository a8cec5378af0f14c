// Package store abstracts the backing file store that holds email templates.
package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/lattiq/postcard/internal/core"
)

// Store reads template sources by slash-separated name relative to its root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether name is a readable file. Absence is not an error.
	Exists(ctx context.Context, name string) (bool, error)

	// ReadFile returns the file content or a *core.NotFoundError.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// Location returns a human readable location of name for errors and logs.
	Location(name string) string
}

// Dir is a Store over a local directory.
type Dir struct {
	root string
}

// NewDir creates a Store rooted at dir.
func NewDir(dir string) *Dir {
	return &Dir{root: filepath.Clean(dir)}
}

// Root returns the directory the store reads from.
func (d *Dir) Root() string {
	return d.root
}

// Location returns the absolute-or-relative OS path for name.
func (d *Dir) Location(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

// Exists reports whether name is a regular file under the root.
func (d *Dir) Exists(_ context.Context, name string) (bool, error) {
	info, err := os.Stat(d.Location(name))
	if err != nil {
		if absent(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// ReadFile reads name from the root.
func (d *Dir) ReadFile(_ context.Context, name string) ([]byte, error) {
	p := d.Location(name)
	data, err := os.ReadFile(p)
	if err != nil {
		if absent(err) {
			return nil, core.NewNotFoundError("open", p)
		}
		return nil, err
	}
	return data, nil
}

// FS is a Store over any fs.FS, such as an embed.FS.
type FS struct {
	fsys fs.FS
	root string
}

// NewFS creates a Store reading from root inside fsys.
func NewFS(fsys fs.FS, root string) *FS {
	if root == "" {
		root = "."
	}
	return &FS{fsys: fsys, root: path.Clean(root)}
}

// Location returns the fs path for name.
func (f *FS) Location(name string) string {
	return path.Join(f.root, name)
}

// Exists reports whether name is a regular file.
func (f *FS) Exists(_ context.Context, name string) (bool, error) {
	info, err := fs.Stat(f.fsys, f.Location(name))
	if err != nil {
		if absent(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// ReadFile reads name from the file system.
func (f *FS) ReadFile(_ context.Context, name string) ([]byte, error) {
	p := f.Location(name)
	data, err := fs.ReadFile(f.fsys, p)
	if err != nil {
		if absent(err) {
			return nil, core.NewNotFoundError("open", p)
		}
		return nil, err
	}
	return data, nil
}

// absent reports whether err means the file is not there, including a path
// that runs through a regular file.
func absent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
