package registry

import (
	"cmp"
	"slices"
	"time"

	"github.com/wifibear/capvault/pkg/wifi"
)

// Stats summarises the registry.
type Stats struct {
	BSSIDs       int
	Stations     int
	Pcaps        int
	Analyzed     int
	Handshakes   int
	Complete     int
	PMKIDs       int
	ArchiveBytes int64
	LastSaved    time.Time
}

// BSSIDHistory returns the record for bssid.
func (s *Store) BSSIDHistory(bssid string) (wifi.AccessPoint, bool) {
	key, err := wifi.CanonicalMAC(bssid)
	if err != nil {
		return wifi.AccessPoint{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ap, ok := s.reg.BSSIDs[key]
	if !ok {
		return wifi.AccessPoint{}, false
	}
	return ap.Clone(), true
}

// AllBSSIDs returns a copy of every access point record.
func (s *Store) AllBSSIDs() map[string]wifi.AccessPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]wifi.AccessPoint, len(s.reg.BSSIDs))
	for k, ap := range s.reg.BSSIDs {
		out[k] = ap.Clone()
	}
	return out
}

// StationHistory returns the record for mac.
func (s *Store) StationHistory(mac string) (wifi.Station, bool) {
	key, err := wifi.CanonicalMAC(mac)
	if err != nil {
		return wifi.Station{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.reg.Stations[key]
	if !ok {
		return wifi.Station{}, false
	}
	return *st, true
}

// AllStations returns a copy of every station record.
func (s *Store) AllStations() map[string]wifi.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]wifi.Station, len(s.reg.Stations))
	for k, st := range s.reg.Stations {
		out[k] = *st
	}
	return out
}

// PcapRecords returns a copy of every archive entry keyed by filename.
func (s *Store) PcapRecords() map[string]PcapEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]PcapEntry, len(s.reg.Pcaps))
	for k, e := range s.reg.Pcaps {
		out[k] = e.Clone()
	}
	return out
}

// AnalysisForBSSID collects the handshake captures for bssid across the
// archive, oldest file first.
func (s *Store) AnalysisForBSSID(bssid string) []wifi.HandshakeCapture {
	key, err := wifi.CanonicalMAC(bssid)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*PcapEntry, 0, len(s.reg.Pcaps))
	for _, e := range s.reg.Pcaps {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *PcapEntry) int {
		if c := a.Created.Compare(b.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})

	var out []wifi.HandshakeCapture
	for _, e := range entries {
		for _, h := range e.Analysis {
			if h.BSSID == key {
				out = append(out, h.Clone())
			}
		}
	}
	return out
}

// FirstSeen returns when mac was first observed as either a BSSID or a station.
func (s *Store) FirstSeen(mac string) (time.Time, bool) {
	key, err := wifi.CanonicalMAC(mac)
	if err != nil {
		return time.Time{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var first time.Time
	if ap, ok := s.reg.BSSIDs[key]; ok {
		first = ap.FirstSeen
	}
	if st, ok := s.reg.Stations[key]; ok && (first.IsZero() || st.FirstSeen.Before(first)) {
		first = st.FirstSeen
	}
	return first, !first.IsZero()
}

// KnownBSSIDs lists every BSSID in sorted order.
func (s *Store) KnownBSSIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.reg.BSSIDs)
}

// KnownStations lists every station MAC in sorted order.
func (s *Store) KnownStations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.reg.Stations)
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg.Clone()
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		BSSIDs:    len(s.reg.BSSIDs),
		Stations:  len(s.reg.Stations),
		Pcaps:     len(s.reg.Pcaps),
		LastSaved: s.reg.LastSaved,
	}
	for _, e := range s.reg.Pcaps {
		st.ArchiveBytes += e.Size
		if e.Analyzed {
			st.Analyzed++
		}
		for _, h := range e.Analysis {
			st.Handshakes++
			if h.HandshakeComplete {
				st.Complete++
			}
			if h.Kind == wifi.PMKIDCapture {
				st.PMKIDs++
			}
		}
	}
	return st
}
