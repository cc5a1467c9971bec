// Package registry is the long-lived store of every access point, station
// and archived capture the device has observed.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wifibear/capvault/internal/capture"
	"github.com/wifibear/capvault/internal/persist"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidMAC      = errors.New("invalid MAC address")
	ErrOutsideArchive  = errors.New("file is not inside the archive directory")
)

// ParseFunc decodes one capture file.
type ParseFunc func(ctx context.Context, path string) (*capture.Dataset, error)

// Options configures a Store.
type Options struct {
	ArchiveDir   string
	RegistryPath string
	// QuotaBytes caps the archive size; zero or less disables pruning.
	QuotaBytes int64
	Logger     *log.Logger
	Verbose    int
	Now        func() time.Time
	// Parse analyses archived captures; nil leaves files unanalysed.
	Parse ParseFunc
}

// Store guards the registry document. Mutations hold the write lock for the
// whole operation; queries return copies.
type Store struct {
	opts Options
	log  *log.Logger
	now  func() time.Time

	mu  sync.RWMutex
	reg *Registry
}

// New returns an empty store without touching the disk.
func New(opts Options) *Store {
	s := &Store{
		opts: opts,
		log:  opts.Logger,
		now:  opts.Now,
		reg:  newRegistry(),
	}
	if s.log == nil {
		s.log = log.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Open creates the archive directory, loads the registry and syncs it with
// the files actually present.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.ArchiveDir == "" || opts.RegistryPath == "" {
		return nil, fmt.Errorf("%w: archive directory and registry path are required", ErrInvalidArgument)
	}
	if err := os.MkdirAll(opts.ArchiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	s := New(opts)
	_ = s.Load()
	if _, err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ArchiveDir returns the directory holding archived captures.
func (s *Store) ArchiveDir() string {
	return s.opts.ArchiveDir
}

// Load replaces the in-memory registry with the persisted one. A missing
// file leaves an empty registry. A corrupt or unreadable file is logged,
// leaves an empty registry and is reported to the caller.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := newRegistry()
	err := persist.LoadInto(s.opts.RegistryPath, reg)
	switch {
	case err == nil:
		if dropped := reg.normalize(); dropped > 0 {
			s.warnf("dropped %d malformed registry records", dropped)
		}
		s.reg = reg
		s.infof("loaded registry: %d BSSIDs, %d stations, %d pcaps",
			len(reg.BSSIDs), len(reg.Stations), len(reg.Pcaps))
		return nil
	case errors.Is(err, persist.ErrNotExist):
		s.reg = newRegistry()
		s.infof("no registry at %s, starting empty", s.opts.RegistryPath)
		return nil
	default:
		s.reg = newRegistry()
		s.errorf("could not load registry, starting empty: %v", err)
		return err
	}
}

// Save persists the registry atomically.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	s.reg.LastSaved = s.now()
	if err := persist.Save(s.opts.RegistryPath, s.reg); err != nil {
		s.errorf("could not save registry: %v", err)
		return err
	}
	s.debugf("saved registry to %s", s.opts.RegistryPath)
	return nil
}

func (s *Store) pathFor(filename string) string {
	return filepath.Join(s.opts.ArchiveDir, filename)
}

func (s *Store) infof(format string, args ...any) {
	if s.opts.Verbose > 0 {
		s.log.Printf(format, args...)
	}
}

func (s *Store) debugf(format string, args ...any) {
	if s.opts.Verbose > 1 {
		s.log.Printf(format, args...)
	}
}

func (s *Store) warnf(format string, args ...any) {
	s.log.Printf("warn: "+format, args...)
}

func (s *Store) errorf(format string, args ...any) {
	s.log.Printf("error: "+format, args...)
}
