package registry

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wifibear/capvault/internal/capture"
	"github.com/wifibear/capvault/pkg/wifi"
)

// BSSIDUpdate is one observation of an access point. Zero times mean "now";
// FirstSeen defaults to SeenAt.
type BSSIDUpdate struct {
	BSSID      string
	ESSID      string
	Channel    string
	Encryption string
	Packets    uint64
	Beacons    uint64
	FirstSeen  time.Time
	SeenAt     time.Time
}

// StationUpdate is one observation of a client.
type StationUpdate struct {
	MAC             string
	AssociatedBSSID string
	// ProbedESSIDs is a comma separated list.
	ProbedESSIDs string
	Packets      uint64
	FirstSeen    time.Time
	SeenAt       time.Time
}

// UpdateBSSID merges one access point observation and persists the registry.
func (s *Store) UpdateBSSID(u BSSIDUpdate) error {
	key, err := wifi.CanonicalMAC(u.BSSID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.span(u.FirstSeen, u.SeenAt, time.Time{})
	s.mergeAccessPoint(key, u, first, last, true)
	return s.saveLocked()
}

// UpdateStation merges one client observation and persists the registry.
func (s *Store) UpdateStation(u StationUpdate) error {
	key, err := wifi.CanonicalMAC(u.MAC)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}
	assoc, err := canonicalOptional(u.AssociatedBSSID)
	if err != nil {
		return err
	}
	u.AssociatedBSSID = assoc

	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.span(u.FirstSeen, u.SeenAt, time.Time{})
	s.mergeStation(key, u, first, last, true)
	return s.saveLocked()
}

// UpdateFromScan merges a batch of scan results and saves once. Entries
// without their own timestamp are stamped with seenAt. Invalid entries are
// logged and skipped.
func (s *Store) UpdateFromScan(aps []BSSIDUpdate, stations []StationUpdate, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := 0
	for _, u := range aps {
		key, err := wifi.CanonicalMAC(u.BSSID)
		if err != nil {
			s.warnf("skipping scan result: %v", err)
			continue
		}
		first, last := s.span(u.FirstSeen, u.SeenAt, seenAt)
		s.mergeAccessPoint(key, u, first, last, true)
		merged++
	}
	for _, u := range stations {
		key, err := wifi.CanonicalMAC(u.MAC)
		if err != nil {
			s.warnf("skipping scan result: %v", err)
			continue
		}
		assoc, err := canonicalOptional(u.AssociatedBSSID)
		if err != nil {
			s.warnf("station %s: %v", key, err)
		}
		u.AssociatedBSSID = assoc
		first, last := s.span(u.FirstSeen, u.SeenAt, seenAt)
		s.mergeStation(key, u, first, last, true)
		merged++
	}

	s.infof("merged %d scan results", merged)
	return s.saveLocked()
}

// span resolves the observation interval of an update.
func (s *Store) span(first, seen, fallback time.Time) (time.Time, time.Time) {
	if seen.IsZero() {
		seen = fallback
	}
	if seen.IsZero() {
		seen = s.now()
	}
	if first.IsZero() || first.After(seen) {
		first = seen
	}
	return first, seen
}

func canonicalOptional(mac string) (string, error) {
	if strings.TrimSpace(mac) == "" {
		return "", nil
	}
	key, err := wifi.CanonicalMAC(mac)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMAC, err)
	}
	return key, nil
}

func isRealESSID(essid string) bool {
	return essid != "" && essid != wifi.HiddenESSID
}

// mergeAccessPoint applies the merge rules: first_seen only moves earlier,
// last_seen only later, counters only grow, a real ESSID replaces the current
// one and joins the history, the placeholder never does.
func (s *Store) mergeAccessPoint(key string, u BSSIDUpdate, first, last time.Time, countDeltas bool) {
	essid := strings.TrimSpace(u.ESSID)

	ap, ok := s.reg.BSSIDs[key]
	if !ok {
		ap = &wifi.AccessPoint{
			BSSID:        key,
			ESSID:        wifi.HiddenESSID,
			ESSIDHistory: []string{},
			FirstSeen:    first,
			LastSeen:     last,
		}
		s.reg.BSSIDs[key] = ap
		s.debugf("new BSSID %s", key)
	}

	if isRealESSID(essid) {
		if ap.ESSID != essid {
			if isRealESSID(ap.ESSID) {
				s.infof("BSSID %s changed ESSID from %q to %q", key, ap.ESSID, essid)
			}
			ap.ESSID = essid
		}
		if !slices.Contains(ap.ESSIDHistory, essid) {
			ap.ESSIDHistory = append(ap.ESSIDHistory, essid)
		}
	}
	if u.Channel != "" {
		ap.Channel = u.Channel
	}
	if u.Encryption != "" {
		ap.Encryption = u.Encryption
	}
	if !first.IsZero() && (ap.FirstSeen.IsZero() || first.Before(ap.FirstSeen)) {
		ap.FirstSeen = first
	}
	if last.After(ap.LastSeen) {
		ap.LastSeen = last
	}
	if countDeltas {
		ap.Packets += u.Packets
		ap.Beacons += u.Beacons
	}
}

func (s *Store) mergeStation(key string, u StationUpdate, first, last time.Time, countDeltas bool) {
	st, ok := s.reg.Stations[key]
	if !ok {
		st = &wifi.Station{
			MAC:       key,
			FirstSeen: first,
			LastSeen:  last,
		}
		s.reg.Stations[key] = st
		s.debugf("new station %s", key)
	}

	if u.AssociatedBSSID != "" {
		st.AssociatedBSSID = u.AssociatedBSSID
	}
	st.ProbedESSIDs = unionESSIDs(st.ProbedESSIDs, u.ProbedESSIDs)
	if !first.IsZero() && (st.FirstSeen.IsZero() || first.Before(st.FirstSeen)) {
		st.FirstSeen = first
	}
	if last.After(st.LastSeen) {
		st.LastSeen = last
	}
	if countDeltas {
		st.Packets += u.Packets
	}
}

// unionESSIDs merges two comma separated lists keeping first-seen order.
func unionESSIDs(current, added string) string {
	var out []string
	for _, list := range []string{current, added} {
		for _, e := range strings.Split(list, ",") {
			e = strings.TrimSpace(e)
			if isRealESSID(e) && !slices.Contains(out, e) {
				out = append(out, e)
			}
		}
	}
	return strings.Join(out, ",")
}

// mergeDataset folds a decoded capture into the registry. Fragments without
// frame timestamps are stamped with fallback.
func (s *Store) mergeDataset(ds *capture.Dataset, fallback time.Time, countDeltas bool) {
	for _, key := range ds.BSSIDs() {
		frag := ds.AccessPoints[key]
		first, last := s.span(frag.FirstSeen, frag.LastSeen, fallback)
		s.mergeAccessPoint(key, BSSIDUpdate{
			BSSID:      key,
			ESSID:      frag.ESSID,
			Channel:    frag.Channel,
			Encryption: frag.Encryption,
			Packets:    frag.Packets,
			Beacons:    frag.Beacons,
		}, first, last, countDeltas)
	}
	for _, key := range ds.StationMACs() {
		frag := ds.Stations[key]
		first, last := s.span(frag.FirstSeen, frag.LastSeen, fallback)
		s.mergeStation(key, StationUpdate{
			MAC:             key,
			AssociatedBSSID: frag.AssociatedBSSID,
			ProbedESSIDs:    strings.Join(frag.ProbedESSIDs, ","),
			Packets:         frag.Packets,
		}, first, last, countDeltas)
	}
}
