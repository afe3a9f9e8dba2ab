package auth

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, "/storage/data.json", "/storage")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestAnonymousResolvesToPublic(t *testing.T) {
	s := newTestStore(t)
	root, err := s.Resolve(true, "", "")
	if err != nil || root != "public" {
		t.Fatalf("got %q, %v", root, err)
	}
}

func TestEmptyUserNameRejected(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve(false, "", "x"); err == nil {
		t.Fatalf("expected error for empty user name")
	}
}

func TestFirstSightingRegistersUser(t *testing.T) {
	s := newTestStore(t)
	root, err := s.Resolve(false, "alice", "secret")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if root == "public" {
		t.Fatalf("expected a private root, got %q", root)
	}
}

func TestReturningUserMustMatchPassword(t *testing.T) {
	s := newTestStore(t)
	root1, err := s.Resolve(false, "alice", "secret")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	root2, err := s.Resolve(false, "alice", "secret")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if root1 != root2 {
		t.Fatalf("expected stable root across sightings: %q vs %q", root1, root2)
	}

	if _, err := s.Resolve(false, "alice", "wrong"); err == nil {
		t.Fatalf("expected permission denied for wrong password")
	}
}

func TestPersistsAcrossStores(t *testing.T) {
	fs := afero.NewMemMapFs()
	s1, err := NewStore(fs, "/storage/data.json", "/storage")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	root1, err := s1.Resolve(false, "bob", "pw")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	s2, err := NewStore(fs, "/storage/data.json", "/storage")
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	root2, err := s2.Resolve(false, "bob", "pw")
	if err != nil {
		t.Fatalf("resolve after reload: %v", err)
	}
	if root1 != root2 {
		t.Fatalf("expected same root after reload: %q vs %q", root1, root2)
	}
}

func TestPersistedFileWrapsUsersKey(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, "/storage/data.json", "/storage")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := s.Resolve(false, "carol", "pw"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	raw, err := afero.ReadFile(fs, "/storage/data.json")
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	var doc struct {
		Users map[string]Record `json:"users"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := doc.Users["carol"]; !ok {
		t.Fatalf("expected users.carol in persisted document, got %s", raw)
	}
}
