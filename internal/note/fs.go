package note

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FS implements Source backed by a single vault directory on the local
// filesystem.
type FS struct {
	root string // absolute path to the vault root
}

// NewFS creates a filesystem source rooted at the given directory, which
// must already exist. A leading ~ is expanded to the user home directory.
func NewFS(root string) (*FS, error) {
	expanded, err := ExpandHome(root)
	if err != nil {
		return nil, fmt.Errorf("note: expand root: %w", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("note: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("note: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("note: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// ExpandHome replaces a leading ~ with the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// safePath resolves a document ID against the vault root and rejects any
// result that escapes it.
func (f *FS) safePath(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("note: empty document id")
	}
	cleaned := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("note: absolute paths not allowed: %s", id)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("note: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("note: path escapes vault root: %s", id)
	}
	return abs, nil
}

// List walks the vault and returns metadata for every .md file, skipping
// dot-directories (.obsidian, .vector_store, and friends).
func (f *FS) List(ctx context.Context) ([]DocInfo, error) {
	var out []DocInfo
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != f.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		out = append(out, DocInfo{
			ID:      id,
			Path:    p,
			ModTime: info.ModTime(),
			Type:    TypeFromPath(id),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("note: list vault: %w", err)
	}
	return out, nil
}

// Read returns the raw text of a document.
func (f *FS) Read(ctx context.Context, id string) (string, error) {
	abs, err := f.safePath(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("note: read %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("note: read %s: %w", id, err)
	}
	return string(data), nil
}

// Stat returns current metadata for a document.
func (f *FS) Stat(ctx context.Context, id string) (DocInfo, error) {
	abs, err := f.safePath(id)
	if err != nil {
		return DocInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return DocInfo{}, fmt.Errorf("note: stat %s: %w", id, ErrNotFound)
		}
		return DocInfo{}, fmt.Errorf("note: stat %s: %w", id, err)
	}
	return DocInfo{ID: id, Path: abs, ModTime: info.ModTime(), Type: TypeFromPath(id)}, nil
}

// Write atomically replaces a document: tmp file, fsync, rename. The write
// is aborted with ErrConflict when the file's modification time no longer
// matches expectedModTime, so concurrent edits are never overwritten.
func (f *FS) Write(ctx context.Context, id string, text string, expectedModTime time.Time) error {
	abs, err := f.safePath(id)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("note: write %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("note: write %s: %w", id, err)
	}
	if !info.ModTime().Equal(expectedModTime) {
		return fmt.Errorf("note: write %s: %w", id, ErrConflict)
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".notekb-tmp-*")
	if err != nil {
		return fmt.Errorf("note: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(text); err != nil {
		return fmt.Errorf("note: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("note: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("note: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("note: rename: %w", err)
	}
	success = true
	return nil
}
