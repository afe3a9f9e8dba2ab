// Package storage implements the RDFT file-system adapter: path sandboxing
// within a per-user or public root, ZIP framing for whole-directory transfer,
// directory listing, and delete. It is built on afero.Fs so the sandboxing
// and archive logic can be exercised against both a real OS filesystem and an
// in-memory one in tests.
package storage

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Error taxonomy surfaced in Response.error (spec.md §7).
var (
	ErrInvalidArgument = errors.New("storage: invalid argument")
	ErrNotFound        = errors.New("storage: not found")
	ErrPermissionDenied = errors.New("storage: permission denied")
)

// FilePathMaxLength is the default path bound (spec.md §4.6), used when
// NewRoot is given a non-positive maxPathLen; rconfig.Config.FilePathMaxLength
// overrides it per deployment.
const FilePathMaxLength = 256

// Root is a canonicalized, bounded file-system subtree.
type Root struct {
	fs         afero.Fs
	base       string // canonicalized absolute root path
	maxPathLen int
}

// NewRoot canonicalizes base (creating it if absent) and returns a Root
// scoped to fs. maxPathLen bounds every path resolved against the root; a
// non-positive value falls back to FilePathMaxLength.
func NewRoot(fs afero.Fs, base string, maxPathLen int) (*Root, error) {
	clean := filepath.Clean(base)
	if err := fs.MkdirAll(clean, 0o755); err != nil {
		return nil, err
	}
	if maxPathLen <= 0 {
		maxPathLen = FilePathMaxLength
	}
	return &Root{fs: fs, base: clean, maxPathLen: maxPathLen}, nil
}

// resolve joins a caller-supplied relative path onto the root, rejecting
// anything that would escape it.
func (r *Root) resolve(path string) (string, error) {
	if len(path) > r.maxPathLen {
		return "", fmt.Errorf("%w: path exceeds %d chars", ErrInvalidArgument, r.maxPathLen)
	}
	joined := filepath.Join(r.base, path)
	if !r.InStorage(joined) {
		return "", fmt.Errorf("%w: path escapes storage root", ErrPermissionDenied)
	}
	return joined, nil
}

// InStorage reports whether the canonicalized path lies within the
// canonicalized root — the invariant spec.md §8 requires of every
// (root, path) pair.
func (r *Root) InStorage(path string) bool {
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(r.base, clean)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// Read returns the payload for path: raw file bytes for a file, or a ZIP
// archive of the tree for a directory, together with is_file (true for a
// file). The returned bytes carry no is_file prefix; the caller prepends it
// to the wire payload so the peer knows how to materialize it.
func (r *Root) Read(path string) ([]byte, bool, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return nil, false, err
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !info.IsDir() {
		f, err := r.fs.Open(abs)
		if err != nil {
			return nil, false, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}
	data, err := r.zipDirectory(abs)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// zipDirectory archives abs into an in-memory ZIP relative to the root's own
// fs. Shared with the CLI's directory-upload path via the exported ZipDir.
func (r *Root) zipDirectory(abs string) ([]byte, error) {
	return ZipDir(r.fs, abs)
}

// ZipDir archives the contents of dir (read through fs) into an in-memory
// ZIP with entries relative to dir, preserving contents but not permissions.
// The writer is closed before its bytes are returned, per the
// scoped-acquisition guidance in spec.md §9. Exported so callers outside a
// storage.Root sandbox — the CLI zipping a local directory before upload —
// can reuse the same archiving logic (spec.md §4.6/§8 scenario 3).
func ZipDir(fs afero.Fs, dir string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	walkErr := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == dir || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return nil, walkErr
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write materializes payload at path: isFile selects plain-file write versus
// ZIP extraction into a directory. Any existing path at the destination is
// removed first; parent directories are created as needed.
func (r *Root) Write(path string, isFile bool, payload []byte) error {
	abs, err := r.resolve(path)
	if err != nil {
		return err
	}
	if exists, _ := afero.Exists(r.fs, abs); exists {
		if err := r.fs.RemoveAll(abs); err != nil {
			return err
		}
	}
	if isFile {
		if dir := filepath.Dir(abs); dir != "." {
			if err := r.fs.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return afero.WriteFile(r.fs, abs, payload, 0o644)
	}
	return r.extractZip(abs, payload)
}

func (r *Root) extractZip(destDir string, payload []byte) error {
	return UnzipDir(r.fs, destDir, payload)
}

// UnzipDir extracts a ZIP archive (as produced by ZipDir) into destDir
// (through fs), creating destDir and any parent directories as needed.
// Exported so the CLI can unpack a downloaded directory onto the real
// filesystem the same way Root unpacks one inside its sandbox.
func UnzipDir(fs afero.Fs, destDir string, payload []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes path (file or directory) and reports whether it was a file.
// Deleting the storage root itself clears its contents but never the root.
func (r *Root) Delete(path string) (isFile bool, err error) {
	abs, err := r.resolve(path)
	if err != nil {
		return false, err
	}
	info, err := r.fs.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if !info.IsDir() {
		if err := r.fs.Remove(abs); err != nil {
			return false, err
		}
		return true, nil
	}
	if abs == r.base {
		entries, err := afero.ReadDir(r.fs, abs)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if err := r.fs.RemoveAll(filepath.Join(abs, e.Name())); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	if err := r.fs.RemoveAll(abs); err != nil {
		return false, err
	}
	return false, nil
}
