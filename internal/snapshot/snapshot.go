// Package snapshot persists the most recent aggregated history on the device.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/runnerr0/browsedash/internal/history"
	"github.com/runnerr0/browsedash/internal/identity"
)

// Version is the only document version Load accepts.
const Version = 1

// FileName is the snapshot file inside the data directory.
const FileName = "snapshot.json"

// Origin records which source produced a snapshot.
type Origin string

const (
	OriginFile      Origin = "file"
	OriginExtension Origin = "extension"
	OriginCache     Origin = "cache"
)

// Snapshot is the on-disk document. Times are Unix milliseconds.
type Snapshot struct {
	Version         int                       `json:"version"`
	SavedAt         int64                     `json:"savedAt"`
	Source          Origin                    `json:"source"`
	Visits          []history.NormalizedVisit `json:"visits"`
	LastSync        *int64                    `json:"lastSync"`
	ExtID           string                    `json:"extId,omitempty"`
	DeviceID        string                    `json:"deviceId,omitempty"`
	LastServerSync  *int64                    `json:"lastServerSync"`
	LastServerError string                    `json:"lastServerError,omitempty"`
}

// Millis converts t to a nullable millisecond timestamp.
func Millis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// Time converts a nullable millisecond timestamp back to time.Time.
func Time(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms).UTC()
}

// Store reads and writes the snapshot file. Writes replace the file
// atomically so readers never observe a partial document.
type Store struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu       sync.Mutex
	deviceID string
}

// New returns a Store for dataDir/snapshot.json.
func New(dataDir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		path: filepath.Join(dataDir, FileName),
		log:  log,
		now:  time.Now,
	}
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Load returns the stored snapshot, or nil when none is usable. A missing
// file, a corrupt document and an unknown version all yield nil.
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.log.Warn("discarding corrupt snapshot", "path", s.path, "error", err)
		return nil, nil
	}
	if snap.Version != Version {
		s.log.Warn("discarding snapshot with unknown version", "path", s.path, "version", snap.Version)
		return nil, nil
	}
	return &snap, nil
}

// Save stamps version and savedAt and writes snap. Device identity and the
// last server sync state carry over from the previous document when snap
// leaves them unset.
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.load()
	if err != nil {
		return err
	}
	if prev != nil {
		if snap.DeviceID == "" {
			snap.DeviceID = prev.DeviceID
		}
		if snap.LastServerSync == nil {
			snap.LastServerSync = prev.LastServerSync
			if snap.LastServerError == "" {
				snap.LastServerError = prev.LastServerError
			}
		}
	}
	if snap.DeviceID == "" {
		snap.DeviceID = s.ensureDeviceID()
	}

	snap.Version = Version
	snap.SavedAt = s.now().UnixMilli()
	if snap.Visits == nil {
		snap.Visits = []history.NormalizedVisit{}
	}
	return s.write(snap)
}

func (s *Store) write(snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Clear removes the snapshot. Clearing a missing snapshot is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// RecordSync stores the outcome of a push to the server. On success the
// last sync time advances and any previous error is cleared; on failure the
// error message is kept and the last good sync time is left alone. Without a
// snapshot on disk there is nothing to annotate and RecordSync is a no-op.
func (s *Store) RecordSync(at time.Time, syncErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil || snap == nil {
		return err
	}
	if syncErr != nil {
		snap.LastServerError = syncErr.Error()
	} else {
		snap.LastServerSync = Millis(at)
		snap.LastServerError = ""
	}
	return s.write(snap)
}

// DeviceID returns the device identifier stored in the snapshot, creating
// one when none exists yet.
func (s *Store) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return "", err
	}
	if snap != nil && snap.DeviceID != "" {
		s.deviceID = snap.DeviceID
		return snap.DeviceID, nil
	}
	return s.ensureDeviceID(), nil
}

func (s *Store) ensureDeviceID() string {
	if s.deviceID == "" {
		s.deviceID = identity.NewDeviceID()
	}
	return s.deviceID
}
