package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFileNotFound is returned when a tracker mutation names an unknown file.
var ErrFileNotFound = errors.New("file not found")

// Listener is notified with a copy of a file record after it changes.
type Listener func(FileState)

// Tracker holds the ordered file list of one session.
// Every mutation is keyed by file ID and leaves other records untouched.
// It is safe for concurrent use.
type Tracker struct {
	mu        sync.RWMutex
	files     []*FileState
	byID      map[string]*FileState
	listeners []Listener
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byID: make(map[string]*FileState)}
}

// Subscribe registers a listener for file changes.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Reset replaces the tracked files with fresh pending records.
// Files sharing an ID are tracked once.
func (t *Tracker) Reset(files []StatementFile) []FileState {
	t.mu.Lock()
	t.files = make([]*FileState, 0, len(files))
	t.byID = make(map[string]*FileState, len(files))
	for _, f := range files {
		id := FileID(f.Name, f.ModTime)
		if _, dup := t.byID[id]; dup {
			continue
		}
		fs := &FileState{ID: id, File: f, Status: StatusPending}
		t.files = append(t.files, fs)
		t.byID[id] = fs
	}
	out := t.snapshotLocked()
	t.mu.Unlock()

	for _, fs := range out {
		t.notify(fs)
	}
	return out
}

// Clear drops every tracked file.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = nil
	t.byID = make(map[string]*FileState)
}

// SetPassword records the password for one file.
func (t *Tracker) SetPassword(id, password string) error {
	return t.update(id, func(fs *FileState) {
		fs.Password = password
	})
}

// SetStatus updates the status and error message of one file.
func (t *Tracker) SetStatus(id string, status FileStatus, errMsg string) error {
	return t.update(id, func(fs *FileState) {
		fs.Status = status
		fs.ErrorMessage = errMsg
	})
}

// MarkEncrypted flags a file as password protected and moves it to needsPassword.
func (t *Tracker) MarkEncrypted(id string) error {
	return t.update(id, func(fs *FileState) {
		fs.Encrypted = true
		fs.Status = StatusNeedsPassword
		fs.ErrorMessage = ""
	})
}

// Get returns a copy of one file record.
func (t *Tracker) Get(id string) (FileState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fs, ok := t.byID[id]
	if !ok {
		return FileState{}, false
	}
	return *fs, true
}

// Files returns copies of all records in selection order.
func (t *Tracker) Files() []FileState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// IsReady reports whether a conversion may start: at least one file is ready
// or needs a password, and every file needing a password has one.
func (t *Tracker) IsReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return isReady(t.files)
}

func isReady(files []*FileState) bool {
	if len(files) == 0 {
		return false
	}
	hasCandidate := false
	for _, fs := range files {
		switch fs.Status {
		case StatusReady:
			hasCandidate = true
		case StatusNeedsPassword:
			hasCandidate = true
			if !fs.HasPassword() {
				return false
			}
		}
	}
	return hasCandidate
}

func (t *Tracker) update(id string, fn func(*FileState)) error {
	t.mu.Lock()
	fs, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	fn(fs)
	changed := *fs
	t.mu.Unlock()

	t.notify(changed)
	return nil
}

func (t *Tracker) notify(fs FileState) {
	t.mu.RLock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.RUnlock()
	for _, l := range listeners {
		l(fs)
	}
}

func (t *Tracker) snapshotLocked() []FileState {
	out := make([]FileState, len(t.files))
	for i, fs := range t.files {
		out[i] = *fs
	}
	return out
}
