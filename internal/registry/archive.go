package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/wifibear/capvault/internal/capture"
	"github.com/wifibear/capvault/pkg/wifi"
)

const archiveTimeLayout = "2006-01-02T15-04-05"

// SyncResult reports what a Sync changed.
type SyncResult struct {
	Added   []string
	Removed []string
	Pruned  PruneResult
}

// ArchiveName is the filename a capture ingested at t for bssid receives.
func ArchiveName(t time.Time, bssid string) string {
	tag := "unknown"
	if bssid != "" && bssid != wifi.UnknownBSSID {
		tag = wifi.DashedMAC(bssid)
	}
	return fmt.Sprintf("%s_%s_capture.pcap", t.Format(archiveTimeLayout), tag)
}

// BSSIDFromFilename guesses the BSSID embedded in an archive filename.
func BSSIDFromFilename(name string) string {
	if mac, ok := wifi.FindMAC(name); ok {
		return mac
	}
	return wifi.UnknownBSSID
}

// isArchiveCandidate filters directory entries Sync should track.
func isArchiveCandidate(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	return capture.HasCaptureExt(name)
}

// IngestPcap copies the capture at src into the archive and registers it.
// Re-ingesting content that is already archived is a no-op returning the
// existing path. With analyze set the capture is decoded and merged.
func (s *Store) IngestPcap(ctx context.Context, src, bssidHint string, analyze bool) (string, error) {
	if strings.TrimSpace(src) == "" {
		return "", fmt.Errorf("%w: empty source path", ErrInvalidArgument)
	}
	hint, err := canonicalOptional(bssidHint)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", capture.ErrFileNotFound, src)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, src)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s", capture.ErrEmptyFile, src)
	}

	digest, err := fileDigest(src)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := ArchiveName(s.now(), hint)
	dst := s.pathFor(name)
	if _, tracked := s.reg.Pcaps[name]; tracked || fileExists(dst) {
		s.infof("%s already archived as %s", src, name)
		return dst, nil
	}
	if existing := s.findDigestLocked(digest); existing != nil {
		s.infof("%s has the same content as %s, not archiving again", src, existing.Filename)
		return s.pathFor(existing.Filename), nil
	}

	if err := os.MkdirAll(s.opts.ArchiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	if err := copyFile(src, dst, info.ModTime()); err != nil {
		s.errorf("could not archive %s: %v", src, err)
		return "", fmt.Errorf("archive %s: %w", src, err)
	}

	entry := &PcapEntry{
		Filename: name,
		BSSID:    wifi.UnknownBSSID,
		Created:  s.now(),
		Size:     info.Size(),
		Path:     dst,
		Digest:   digest,
	}
	if hint != "" {
		entry.BSSID = hint
	}
	if analyze {
		s.analyzeLocked(ctx, entry, info.ModTime(), true)
	}
	s.reg.Pcaps[name] = entry
	s.infof("archived %s as %s (%s)", src, name, entry.BSSID)

	s.enforceQuotaLocked()
	_ = s.saveLocked()
	return dst, nil
}

// RegisterExisting tracks a file already inside the archive directory
// without copying it. A zero size or created time is read from the file.
// Counters of an entry that was already analysed are not merged again.
func (s *Store) RegisterExisting(ctx context.Context, path, bssid string, size int64, created time.Time, analyze bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}
	key, err := canonicalOptional(bssid)
	if err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	archive, err := filepath.Abs(s.opts.ArchiveDir)
	if err != nil {
		return fmt.Errorf("resolve archive directory: %w", err)
	}
	if filepath.Dir(abs) != archive {
		return fmt.Errorf("%w: %s", ErrOutsideArchive, path)
	}
	if !isArchiveCandidate(filepath.Base(abs)) {
		return fmt.Errorf("%w: %s is not a capture file", ErrInvalidArgument, path)
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", capture.ErrFileNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if size <= 0 {
		size = info.Size()
	}
	if created.IsZero() {
		created = info.ModTime()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := filepath.Base(abs)
	entry, exists := s.reg.Pcaps[name]
	if exists {
		s.debugf("%s already registered, refreshing metadata", name)
	} else {
		entry = &PcapEntry{Filename: name, BSSID: BSSIDFromFilename(name)}
		s.reg.Pcaps[name] = entry
	}
	entry.Path = s.pathFor(name)
	entry.Size = size
	entry.Created = created
	if key != "" {
		entry.BSSID = key
	}
	if entry.Digest == "" {
		if d, err := fileDigest(abs); err == nil {
			entry.Digest = d
		} else {
			s.warnf("could not hash %s: %v", name, err)
		}
	}
	if analyze && !entry.Analyzed {
		s.analyzeLocked(ctx, entry, info.ModTime(), true)
	}
	s.infof("registered %s (%s)", name, entry.BSSID)

	s.enforceQuotaLocked()
	return s.saveLocked()
}

// Sync reconciles the registry with the archive directory: records whose
// file vanished are dropped and untracked capture files are registered,
// analysed when a parser is configured. Problems with one file never abort
// the sync.
func (s *Store) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if err := os.MkdirAll(s.opts.ArchiveDir, 0o755); err != nil {
		return res, fmt.Errorf("create archive directory: %w", err)
	}
	entries, err := os.ReadDir(s.opts.ArchiveDir)
	if err != nil {
		return res, fmt.Errorf("read archive directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[string]fs.FileInfo)
	for _, de := range entries {
		if !de.Type().IsRegular() || !isArchiveCandidate(de.Name()) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			s.warnf("skipping %s: %v", de.Name(), err)
			continue
		}
		present[de.Name()] = info
	}

	for _, name := range sortedKeys(s.reg.Pcaps) {
		if _, ok := present[name]; !ok {
			delete(s.reg.Pcaps, name)
			res.Removed = append(res.Removed, name)
			s.infof("%s no longer in archive, dropped", name)
		}
	}

	for _, name := range sortedKeys(present) {
		info := present[name]
		if entry, ok := s.reg.Pcaps[name]; ok {
			entry.Size = info.Size()
			entry.Path = s.pathFor(name)
			continue
		}
		if err := ctx.Err(); err != nil {
			_ = s.saveLocked()
			return res, err
		}

		entry := &PcapEntry{
			Filename: name,
			BSSID:    BSSIDFromFilename(name),
			Created:  info.ModTime(),
			Size:     info.Size(),
			Path:     s.pathFor(name),
		}
		if d, err := fileDigest(entry.Path); err == nil {
			entry.Digest = d
		} else {
			s.warnf("could not hash %s: %v", name, err)
		}
		if s.analyzeLocked(ctx, entry, info.ModTime(), true) && len(entry.Analysis) > 0 {
			entry.BSSID = entry.Analysis[0].BSSID
		}
		s.reg.Pcaps[name] = entry
		res.Added = append(res.Added, name)
		s.infof("found untracked capture %s (%s)", name, entry.BSSID)
	}

	res.Pruned = s.enforceQuotaLocked()
	if len(res.Added) > 0 || len(res.Removed) > 0 || len(res.Pruned.Removed) > 0 {
		if err := s.saveLocked(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Reanalyze decodes every archived capture again and refreshes its
// analysis. Identity fields are merged; counters are only added for files
// that had never been analysed.
func (s *Store) Reanalyze(ctx context.Context) error {
	if s.opts.Parse == nil {
		return fmt.Errorf("%w: no capture parser configured", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	done := 0
	for _, name := range sortedKeys(s.reg.Pcaps) {
		if err := ctx.Err(); err != nil {
			_ = s.saveLocked()
			return err
		}
		entry := s.reg.Pcaps[name]
		info, err := os.Stat(s.pathFor(name))
		if err != nil {
			s.warnf("skipping %s: %v", name, err)
			continue
		}
		if s.analyzeLocked(ctx, entry, info.ModTime(), !entry.Analyzed) {
			done++
		}
	}
	s.infof("reanalyzed %d of %d captures", done, len(s.reg.Pcaps))
	return s.saveLocked()
}

// analyzeLocked decodes entry and merges the result. An unknown entry BSSID
// is taken from the first handshake found.
func (s *Store) analyzeLocked(ctx context.Context, entry *PcapEntry, fallback time.Time, countDeltas bool) bool {
	if s.opts.Parse == nil {
		return false
	}
	ds, err := s.opts.Parse(ctx, s.pathFor(entry.Filename))
	if err != nil {
		s.warnf("could not analyze %s: %v", entry.Filename, err)
		return false
	}

	s.mergeDataset(ds, fallback, countDeltas)
	entry.Analysis = ds.Handshakes
	entry.Analyzed = true
	if entry.BSSID == wifi.UnknownBSSID && len(ds.Handshakes) > 0 {
		entry.BSSID = ds.Handshakes[0].BSSID
	}
	s.infof("analyzed %s: %d BSSIDs, %d stations, %d handshakes",
		entry.Filename, len(ds.AccessPoints), len(ds.Stations), len(ds.Handshakes))
	return true
}

func (s *Store) findDigestLocked(digest string) *PcapEntry {
	for _, name := range sortedKeys(s.reg.Pcaps) {
		if e := s.reg.Pcaps[name]; e.Digest != "" && e.Digest == digest && fileExists(s.pathFor(name)) {
			return e
		}
	}
	return nil
}

// fileDigest is the BLAKE2b-256 of the file contents.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// copyFile copies src to dst through a hidden temp file and keeps the
// source modification time.
func copyFile(src, dst string, modTime time.Time) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chtimes(tmp, modTime, modTime); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
