package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Entry is one block of a directory listing: a directory (Size unset) or a
// file. Blocks are emitted directories-then-files, both lexicographically
// sorted, and — when Recursive — a directory's children immediately follow
// its own block (spec.md §4.6, scenario 4).
type Entry struct {
	Name      string
	IsDir     bool
	ModTime   float64 // unix seconds, matching the wire's float64 mtime field
	Size      uint64
}

// List enumerates directoryPath (relative to the root) and returns its
// entries as Entry values; MarshalListing below encodes them to the wire's
// block-prefixed byte sequence.
func (r *Root) List(directoryPath string, recursive bool) ([]Entry, error) {
	abs, err := r.resolve(directoryPath)
	if err != nil {
		return nil, err
	}
	info, err := r.fs.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, directoryPath)
	}
	return r.listDir(abs, "", recursive)
}

func (r *Root) listDir(abs, parent string, recursive bool) ([]Entry, error) {
	children, err := afero.ReadDir(r.fs, abs)
	if err != nil {
		return nil, err
	}
	var dirs, files []fileLike
	for _, c := range children {
		if c.IsDir() {
			dirs = append(dirs, fileLike{name: c.Name(), modTime: float64(c.ModTime().Unix())})
		} else {
			files = append(files, fileLike{name: c.Name(), modTime: float64(c.ModTime().Unix()), size: uint64(c.Size())})
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].name < dirs[j].name })
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })

	var out []Entry
	for _, d := range dirs {
		out = append(out, Entry{Name: parent + d.name, IsDir: true, ModTime: d.modTime})
		if recursive {
			sub, err := r.listDir(filepath.Join(abs, d.name), parent+d.name+"/", recursive)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	for _, f := range files {
		out = append(out, Entry{Name: parent + f.name, IsDir: false, ModTime: f.modTime, Size: f.size})
	}
	return out, nil
}

type fileLike struct {
	name    string
	modTime float64
	size    uint64
}

// MarshalListing encodes entries to the wire's block sequence: a bool
// is_directory, then {name, mtime} for directories or {name, mtime, size}
// for files.
func MarshalListing(entries []Entry) []byte {
	var buf []byte
	for _, e := range entries {
		if e.IsDir {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		nameBytes := []byte(e.Name)
		lenBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(nameBytes)))
		buf = append(buf, lenBuf...)
		buf = append(buf, nameBytes...)

		mtimeBuf := make([]byte, 8)
		binary.LittleEndian.PutUint64(mtimeBuf, mtimeBits(e.ModTime))
		buf = append(buf, mtimeBuf...)

		if !e.IsDir {
			sizeBuf := make([]byte, 8)
			binary.LittleEndian.PutUint64(sizeBuf, e.Size)
			buf = append(buf, sizeBuf...)
		}
	}
	return buf
}

// UnmarshalListing decodes the block sequence produced by MarshalListing.
// Each directory block consumes exactly one float64 trailer — the source's
// "dLL" double-read after a directory block (spec.md §9) is not reproduced.
func UnmarshalListing(b []byte) ([]Entry, error) {
	var out []Entry
	for len(b) > 0 {
		if len(b) < 1 {
			return nil, fmt.Errorf("listing: truncated block flag")
		}
		isDir := b[0] != 0
		b = b[1:]
		if len(b) < 4 {
			return nil, fmt.Errorf("listing: truncated name length")
		}
		nameLen := binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
		if uint64(len(b)) < uint64(nameLen) {
			return nil, fmt.Errorf("listing: truncated name")
		}
		name := string(b[:nameLen])
		b = b[nameLen:]
		if len(b) < 8 {
			return nil, fmt.Errorf("listing: truncated mtime")
		}
		mtime := mtimeFromBits(binary.LittleEndian.Uint64(b[:8]))
		b = b[8:]

		e := Entry{Name: name, IsDir: isDir, ModTime: mtime}
		if !isDir {
			if len(b) < 8 {
				return nil, fmt.Errorf("listing: truncated size")
			}
			e.Size = binary.LittleEndian.Uint64(b[:8])
			b = b[8:]
		}
		out = append(out, e)
	}
	return out, nil
}

func mtimeBits(f float64) uint64 { return math.Float64bits(f) }

func mtimeFromBits(u uint64) float64 { return math.Float64frombits(u) }
