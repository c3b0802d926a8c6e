package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common/model"
)

// CredentialStore persists the current access credential.
// Get reports found=false when no credential is stored.
type CredentialStore interface {
	Get(ctx context.Context) (token *oauth2.Token, found bool, err error)
	Save(ctx context.Context, token *oauth2.Token) error
	Clear(ctx context.Context) error
}

// UserStore persists the profile of the signed-in user.
type UserStore interface {
	Get(ctx context.Context) (user *model.User, found bool, err error)
	Save(ctx context.Context, user *model.User) error
	Clear(ctx context.Context) error
}

// StoreError indicates a failure reading or writing persisted session state.
type StoreError struct {
	Operation string // "load", "save"
	Path      string
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " session state"
	if e.Path != "" {
		msg += " " + e.Path
	}
	return msg + ": " + e.Cause.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

type sessionState struct {
	Token *oauth2.Token `json:"token,omitempty"`
	User  *model.User   `json:"user,omitempty"`
}

// StateStore keeps the credential and the user profile together. With an empty path it
// lives in memory only; otherwise every write is persisted to a JSON file.
type StateStore struct {
	path string

	mu     sync.RWMutex
	state  sessionState
	loaded bool
}

// NewMemoryStore returns a StateStore that never touches disk.
func NewMemoryStore() *StateStore {
	return &StateStore{loaded: true}
}

// NewFileStore returns a StateStore persisted at path. The file is created on first write
// with 0600 permissions.
func NewFileStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Credentials returns the CredentialStore view of s.
func (s *StateStore) Credentials() CredentialStore {
	return credentialView{s}
}

// Users returns the UserStore view of s.
func (s *StateStore) Users() UserStore {
	return userView{s}
}

func (s *StateStore) read() (sessionState, error) {
	s.mu.RLock()
	if s.loaded {
		st := s.state
		s.mu.RUnlock()
		return st, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return sessionState{}, err
	}
	return s.state, nil
}

func (s *StateStore) update(fn func(st *sessionState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}

	next := s.state
	fn(&next)
	if err := s.persistLocked(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *StateStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return &StoreError{Operation: "load", Path: s.path, Cause: err}
	}
	var st sessionState
	if len(data) > 0 {
		if err := json.Unmarshal(data, &st); err != nil {
			return &StoreError{Operation: "load", Path: s.path, Cause: err}
		}
	}
	s.state = st
	s.loaded = true
	return nil
}

func (s *StateStore) persistLocked(st sessionState) error {
	if s.path == "" {
		return nil
	}
	if err := writeFileAtomic(s.path, st); err != nil {
		return &StoreError{Operation: "save", Path: s.path, Cause: err}
	}
	return nil
}

func writeFileAtomic(path string, st sessionState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type credentialView struct{ s *StateStore }

func (v credentialView) Get(_ context.Context) (*oauth2.Token, bool, error) {
	st, err := v.s.read()
	if err != nil {
		return nil, false, err
	}
	if st.Token == nil || st.Token.AccessToken == "" {
		return nil, false, nil
	}
	tok := *st.Token
	return &tok, true, nil
}

func (v credentialView) Save(_ context.Context, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("save credential: nil token")
	}
	tok := *token
	return v.s.update(func(st *sessionState) { st.Token = &tok })
}

func (v credentialView) Clear(_ context.Context) error {
	return v.s.update(func(st *sessionState) { st.Token = nil })
}

type userView struct{ s *StateStore }

func (v userView) Get(_ context.Context) (*model.User, bool, error) {
	st, err := v.s.read()
	if err != nil {
		return nil, false, err
	}
	if st.User == nil {
		return nil, false, nil
	}
	u := *st.User
	return &u, true, nil
}

func (v userView) Save(_ context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("save user: nil user")
	}
	u := *user
	return v.s.update(func(st *sessionState) { st.User = &u })
}

func (v userView) Clear(_ context.Context) error {
	return v.s.update(func(st *sessionState) { st.User = nil })
}
