package storage

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	fs := afero.NewMemMapFs()
	root, err := NewRoot(fs, "/storage", 0)
	if err != nil {
		t.Fatalf("NewRoot: %v", err)
	}
	return root
}

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	r := newTestRoot(t)
	payload := []byte("hello world")
	if err := r.Write("a/b.txt", true, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, isFile, err := r.Read("a/b.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !isFile || !bytes.Equal(got, payload) {
		t.Fatalf("mismatch: isFile=%v got=%q", isFile, got)
	}
}

func TestWriteThenReadDirectoryZipRoundTrip(t *testing.T) {
	r := newTestRoot(t)
	if err := r.Write("a.txt", true, []byte("1")); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	if err := r.Write("sub/b.txt", true, []byte("22")); err != nil {
		t.Fatalf("write sub/b.txt: %v", err)
	}
	zipped, isFile, err := r.Read("")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if isFile {
		t.Fatalf("expected directory read")
	}

	r2 := newTestRoot(t)
	if err := r2.Write("restored", false, zipped); err != nil {
		t.Fatalf("extract: %v", err)
	}
	got, _, err := r2.Read("restored/a.txt")
	if err != nil || string(got) != "1" {
		t.Fatalf("a.txt mismatch: %v %q", err, got)
	}
	got, _, err = r2.Read("restored/sub/b.txt")
	if err != nil || string(got) != "22" {
		t.Fatalf("sub/b.txt mismatch: %v %q", err, got)
	}
}

func TestInStorageRejectsEscape(t *testing.T) {
	r := newTestRoot(t)
	if _, _, err := r.Read("../../etc/passwd"); err == nil {
		t.Fatalf("expected escape to be rejected")
	}
}

func TestPathTooLongRejected(t *testing.T) {
	r := newTestRoot(t)
	long := make([]byte, FilePathMaxLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, _, err := r.Read(string(long)); err == nil {
		t.Fatalf("expected rejection of over-long path")
	}
}

func TestDeleteRootClearsContentsOnly(t *testing.T) {
	r := newTestRoot(t)
	if err := r.Write("x.txt", true, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	isFile, err := r.Delete("")
	if err != nil {
		t.Fatalf("delete root: %v", err)
	}
	if isFile {
		t.Fatalf("root delete should report isFile=false")
	}
	if _, _, err := r.Read(""); err != nil {
		t.Fatalf("root itself should still exist: %v", err)
	}
	if _, _, err := r.Read("x.txt"); err == nil {
		t.Fatalf("x.txt should have been removed")
	}
}

func TestDeleteFileReportsIsFile(t *testing.T) {
	r := newTestRoot(t)
	r.Write("f.txt", true, []byte("f"))
	isFile, err := r.Delete("f.txt")
	if err != nil || !isFile {
		t.Fatalf("expected isFile=true, err=%v", err)
	}
}

func TestListingRecursiveOrder(t *testing.T) {
	r := newTestRoot(t)
	r.Write("a/c.txt", true, []byte("c"))
	r.Write("b.txt", true, []byte("b"))

	entries, err := r.List("", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if !entries[0].IsDir || entries[0].Name != "a" {
		t.Fatalf("expected dir 'a' first, got %+v", entries[0])
	}
	if entries[1].IsDir || entries[1].Name != "a/c.txt" {
		t.Fatalf("expected file 'a/c.txt' second, got %+v", entries[1])
	}
	if entries[2].IsDir || entries[2].Name != "b.txt" {
		t.Fatalf("expected file 'b.txt' third, got %+v", entries[2])
	}
}

func TestMarshalUnmarshalListingRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "a", IsDir: true, ModTime: 123.5},
		{Name: "a/c.txt", IsDir: false, ModTime: 456.25, Size: 10},
		{Name: "b.txt", IsDir: false, ModTime: 789, Size: 2},
	}
	b := MarshalListing(entries)
	got, err := UnmarshalListing(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i] != entries[i] {
			t.Fatalf("entry %d mismatch: got %+v want %+v", i, got[i], entries[i])
		}
	}
}
