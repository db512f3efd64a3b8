package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNoSession is returned by Load when no session with the given ID exists on
// disk, and by Latest when nothing has been recorded yet.
var ErrNoSession = errors.New("no recorded session")

// SessionStore persists sealed sessions to disk.
type SessionStore interface {
	// Dir returns the directory a session's files (session.json, frames/) live in.
	Dir(id string) string
	Save(s *Session) error
	Load(id string) (*Session, error) // returns ErrNoSession if none exists
	List() ([]*Session, error)        // newest first
	Latest() (*Session, error)        // returns ErrNoSession if none exists
	Delete(id string) error
}

// diskStore is the concrete SessionStore that writes to the XDG data directory.
type diskStore struct {
	root string // .../howl/sessions
}

// NewSessionStore returns a SessionStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/howl/sessions/<id>/ or ~/.local/share/howl/sessions/<id>/
func NewSessionStore() (SessionStore, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewSessionStoreAt(filepath.Join(dir, "sessions"))
}

// NewSessionStoreAt returns a SessionStore rooted at an explicit directory.
func NewSessionStoreAt(root string) (SessionStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{root: root}, nil
}

// dataDir returns the howl-specific XDG data directory.
func dataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "howl"), nil
}

func (d *diskStore) Dir(id string) string {
	return filepath.Join(d.root, id)
}

func (d *diskStore) path(id string) string {
	return filepath.Join(d.Dir(id), "session.json")
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *Session) (err error) {
	s.mu.Lock()
	data, err := json.Marshal(s)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	dir := d.Dir(s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(dir, "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	if err = os.Rename(tmpName, d.path(s.ID)); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Load reads and unmarshals the session file for id.
// Returns ErrNoSession if the file does not exist.
func (d *diskStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(d.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}
	// The directory may have moved since the session was recorded; the store
	// location is authoritative.
	s.Dir = d.Dir(id)
	return &s, nil
}

// List loads every stored session, newest first. Unreadable entries are skipped.
func (d *diskStore) List() ([]*Session, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, err := d.Load(e.Name())
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// Latest returns the most recently started session.
func (d *diskStore) Latest() (*Session, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoSession
	}
	return all[0], nil
}

// Delete removes the session directory, frames included.
func (d *diskStore) Delete(id string) error {
	if err := os.RemoveAll(d.Dir(id)); err != nil {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}
