// Package persist mirrors the running vibe session on disk, under the
// repository's git directory.
//
// The mirror only serves diagnostics and recovery hints after a restart:
// the in-memory session stays the source of truth while the server lives.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const (
	// StateFile holds the last saved session
	StateFile = "vibe-session.json"

	// EventsFile is the append-only JSON lines session log
	EventsFile = "vibe-events.jsonl"

	// StaleAfter is the default age after which a mirror is stale
	StaleAfter = 24 * time.Hour
)

// Event names written to the log
const (
	EventSessionSaved = "session_saved"
	EventSessionEnded = "session_ended"
	EventAutoCommit   = "auto_commit"
	EventPullRequest  = "pull_request"
)

var appFs = afero.NewOsFs()

// Session is the mirrored session
type Session struct {
	Branch            string     `json:"branch_name"`
	StartTime         time.Time  `json:"session_start_time"`
	LastCommitTime    *time.Time `json:"last_commit_time"`
	PRURL             string     `json:"pr_url,omitempty"`
	AutoCommitEnabled bool       `json:"auto_commit_enabled"`
}

// Event is one line of the events log
type Event struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	State     *Session  `json:"state,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Mirror reads and writes the session files of one repository
type Mirror struct {
	StatePath  string
	EventsPath string

	now func() time.Time
}

// New returns the mirror stored in a repository's git directory (see
// repo.GitDir: linked worktrees and submodules have their own).
func New(gitdir string) *Mirror {
	return &Mirror{
		StatePath:  filepath.Join(gitdir, StateFile),
		EventsPath: filepath.Join(gitdir, EventsFile),
		now:        time.Now,
	}
}

// Start saves a new session for branch
func (m *Mirror) Start(branch string) error {
	return m.Save(&Session{
		Branch:            branch,
		StartTime:         m.now(),
		AutoCommitEnabled: true,
	})
}

// Save writes the session atomically, and logs a session_saved event
func (m *Mirror) Save(s *Session) error {
	if err := m.write(s); err != nil {
		return err
	}
	return m.AppendEvent(EventSessionSaved, s, "")
}

// Load returns the saved session, or nil when there is none.
// An unreadable (corrupt) state file is removed.
func (m *Mirror) Load() (*Session, error) {
	data, err := afero.ReadFile(appFs, m.StatePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.StatePath, err)
	}

	var s Session
	if err = json.Unmarshal(data, &s); err != nil || s.Branch == "" {
		_ = appFs.Remove(m.StatePath)
		return nil, nil
	}

	return &s, nil
}

// HasSession tells whether a state file exists
func (m *Mirror) HasSession() bool {
	ok, err := afero.Exists(appFs, m.StatePath)
	return err == nil && ok
}

// Age returns how long ago the saved session started
func (m *Mirror) Age() (time.Duration, bool) {
	s, err := m.Load()
	if err != nil || s == nil || s.StartTime.IsZero() {
		return 0, false
	}
	return m.now().Sub(s.StartTime), true
}

// IsStale tells whether the saved session is older than maxAge
func (m *Mirror) IsStale(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = StaleAfter
	}
	age, ok := m.Age()
	return ok && age > maxAge
}

// RecordCommit updates the last commit time of the saved session
func (m *Mirror) RecordCommit(msg string, at time.Time) error {
	s, err := m.Load()
	if err != nil || s == nil {
		return err
	}

	s.LastCommitTime = &at
	if err = m.write(s); err != nil {
		return err
	}
	return m.AppendEvent(EventAutoCommit, nil, msg)
}

// RecordPR stores the pull request url of the saved session
func (m *Mirror) RecordPR(url string) error {
	s, err := m.Load()
	if err != nil || s == nil {
		return err
	}

	s.PRURL = url
	if err = m.write(s); err != nil {
		return err
	}
	return m.AppendEvent(EventPullRequest, nil, url)
}

// Delete removes the state file and logs a session_ended event
func (m *Mirror) Delete() error {
	if err := appFs.Remove(m.StatePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", m.StatePath, err)
	}
	return m.AppendEvent(EventSessionEnded, nil, "")
}

// AppendEvent adds a line to the events log
func (m *Mirror) AppendEvent(name string, s *Session, detail string) error {
	line, err := json.Marshal(Event{Event: name, Timestamp: m.now(), State: s, Detail: detail})
	if err != nil {
		return err
	}

	f, err := appFs.OpenFile(m.EventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", m.EventsPath, err)
	}

	if _, err = f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %s: %w", m.EventsPath, err)
	}

	return f.Close()
}

// Events returns the logged events, skipping unreadable lines
func (m *Mirror) Events() ([]Event, error) {
	data, err := afero.ReadFile(appFs, m.EventsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var events []Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}

	return events, nil
}

// write replaces the state file through a synced temporary file
func (m *Mirror) write(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.StatePath)
	tmp, err := afero.TempFile(appFs, dir, "vibe-session-*.json")
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = appFs.Remove(tmp.Name())
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = appFs.Remove(tmp.Name())
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = appFs.Remove(tmp.Name())
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err = appFs.Rename(tmp.Name(), m.StatePath); err != nil {
		_ = appFs.Remove(tmp.Name())
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}
