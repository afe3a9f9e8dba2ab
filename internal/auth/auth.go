// Package auth implements the RDFT authentication adapter: a JSON-persisted
// user_name -> {id, password} map and the resolution of a request's storage
// root (spec.md §4.7).
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

var (
	ErrInvalidArgument  = errors.New("auth: invalid argument")
	ErrPermissionDenied = errors.New("auth: permission denied")
)

// Record is one registered user's persisted identity.
type Record struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

// fileFormat is the on-disk shape of the auth store (spec.md §6.2): the user
// table lives under a top-level "users" key rather than as the bare document
// root, leaving room for sibling top-level keys in the same file later.
type fileFormat struct {
	Users map[string]Record `json:"users"`
}

// Store is the JSON-persisted user_name -> Record map, guarded by a mutex
// since the server dispatch loop is single-threaded but handlers may
// authenticate concurrently from worker goroutines.
type Store struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	users    map[string]Record
	rootBase string
}

// NewStore loads path (an empty/missing file starts with no users) scoped to
// fs, with private roots created under rootBase/private/<id>.
func NewStore(fs afero.Fs, path, rootBase string) (*Store, error) {
	s := &Store{fs: fs, path: path, users: make(map[string]Record), rootBase: rootBase}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return err
	}
	if ff.Users != nil {
		s.users = ff.Users
	}
	return nil
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(fileFormat{Users: s.users}, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(s.fs, s.path, data, 0o644)
}

// Resolve authenticates (userName, password) and returns the storage root
// relative path to use: "public" for anonymous, "private/<id>" otherwise.
// A first-seen user is registered on the spot with a freshly generated id;
// an existing user's password must match byte-for-byte.
func (s *Store) Resolve(anonymous bool, userName, password string) (string, error) {
	if anonymous {
		return "public", nil
	}
	if userName == "" {
		return "", fmt.Errorf("%w: user name empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.users[userName]; ok {
		if rec.Password != password {
			return "", fmt.Errorf("%w", ErrPermissionDenied)
		}
		return filepath.Join("private", rec.ID), nil
	}

	id, err := s.newUniqueID()
	if err != nil {
		return "", err
	}
	s.users[userName] = Record{ID: id, Password: password}
	if err := s.persist(); err != nil {
		delete(s.users, userName)
		return "", err
	}
	return filepath.Join("private", id), nil
}

// newUniqueID generates a UUID and retries on the vanishingly unlikely event
// that its private root directory already exists, mirroring the source's
// collision-retry loop.
func (s *Store) newUniqueID() (string, error) {
	for {
		id := uuid.NewString()
		privateDir := filepath.Join(s.rootBase, "private", id)
		exists, err := afero.DirExists(s.fs, privateDir)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}
