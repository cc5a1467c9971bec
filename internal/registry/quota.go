package registry

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
)

// PruneResult reports what quota enforcement removed.
type PruneResult struct {
	Removed    []string
	FreedBytes int64
	TotalBytes int64
}

// EnforceQuota deletes the oldest archived captures until the archive fits
// the configured quota, then saves if anything was removed.
func (s *Store) EnforceQuota() (PruneResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.enforceQuotaLocked()
	if len(res.Removed) == 0 {
		return res, nil
	}
	return res, s.saveLocked()
}

// enforceQuotaLocked sums the on-disk size of tracked files and removes the
// oldest by created time, ties broken by filename. Files that cannot be
// deleted keep their record.
func (s *Store) enforceQuotaLocked() PruneResult {
	type archived struct {
		entry *PcapEntry
		size  int64
	}

	var res PruneResult
	var files []archived
	for _, name := range sortedKeys(s.reg.Pcaps) {
		info, err := os.Stat(s.pathFor(name))
		if err != nil {
			continue
		}
		files = append(files, archived{entry: s.reg.Pcaps[name], size: info.Size()})
		res.TotalBytes += info.Size()
	}

	quota := s.opts.QuotaBytes
	if quota <= 0 || res.TotalBytes <= quota {
		return res
	}
	s.warnf("archive is %s, over the %s quota", humanize.IBytes(uint64(res.TotalBytes)), humanize.IBytes(uint64(quota)))

	slices.SortFunc(files, func(a, b archived) int {
		if c := a.entry.Created.Compare(b.entry.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.entry.Filename, b.entry.Filename)
	})

	for _, f := range files {
		if res.TotalBytes <= quota {
			break
		}
		err := os.Remove(s.pathFor(f.entry.Filename))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.errorf("could not prune %s: %v", f.entry.Filename, err)
			continue
		}
		delete(s.reg.Pcaps, f.entry.Filename)
		res.Removed = append(res.Removed, f.entry.Filename)
		res.FreedBytes += f.size
		res.TotalBytes -= f.size
		s.infof("pruned %s (%s)", f.entry.Filename, humanize.IBytes(uint64(f.size)))
	}
	return res
}
