package registry

import (
	"maps"
	"slices"
	"time"

	"github.com/wifibear/capvault/pkg/wifi"
)

// PcapEntry describes one archived capture file.
type PcapEntry struct {
	Filename string                  `json:"filename"`
	BSSID    string                  `json:"bssid"`
	Created  time.Time               `json:"created"`
	Size     int64                   `json:"size_bytes"`
	Path     string                  `json:"path"`
	Digest   string                  `json:"digest,omitempty"`
	Analyzed bool                    `json:"analyzed"`
	Analysis []wifi.HandshakeCapture `json:"analysis,omitempty"`
}

// Clone returns a deep copy.
func (e PcapEntry) Clone() PcapEntry {
	if e.Analysis != nil {
		analysis := make([]wifi.HandshakeCapture, len(e.Analysis))
		for i, h := range e.Analysis {
			analysis[i] = h.Clone()
		}
		e.Analysis = analysis
	}
	return e
}

// Registry is the persisted document: every BSSID, station and archived
// capture ever observed.
type Registry struct {
	BSSIDs    map[string]*wifi.AccessPoint `json:"bssids"`
	Stations  map[string]*wifi.Station     `json:"stations"`
	Pcaps     map[string]*PcapEntry        `json:"pcaps"`
	LastSaved time.Time                    `json:"_last_saved,omitzero"`
}

func newRegistry() *Registry {
	return &Registry{
		BSSIDs:   make(map[string]*wifi.AccessPoint),
		Stations: make(map[string]*wifi.Station),
		Pcaps:    make(map[string]*PcapEntry),
	}
}

// Clone returns a deep copy.
func (r *Registry) Clone() Registry {
	out := Registry{
		BSSIDs:    make(map[string]*wifi.AccessPoint, len(r.BSSIDs)),
		Stations:  make(map[string]*wifi.Station, len(r.Stations)),
		Pcaps:     make(map[string]*PcapEntry, len(r.Pcaps)),
		LastSaved: r.LastSaved,
	}
	for k, ap := range r.BSSIDs {
		c := ap.Clone()
		out.BSSIDs[k] = &c
	}
	for k, st := range r.Stations {
		c := *st
		out.Stations[k] = &c
	}
	for k, e := range r.Pcaps {
		c := e.Clone()
		out.Pcaps[k] = &c
	}
	return out
}

// normalize repairs a loaded document: missing maps are created, keys are
// canonicalized and records with unusable keys are dropped.
func (r *Registry) normalize() (dropped int) {
	bssids := make(map[string]*wifi.AccessPoint, len(r.BSSIDs))
	for k, ap := range r.BSSIDs {
		key, err := wifi.CanonicalMAC(k)
		if err != nil || ap == nil {
			dropped++
			continue
		}
		ap.BSSID = key
		if ap.ESSID == "" {
			ap.ESSID = wifi.HiddenESSID
		}
		if ap.ESSIDHistory == nil {
			ap.ESSIDHistory = []string{}
		}
		bssids[key] = ap
	}

	stations := make(map[string]*wifi.Station, len(r.Stations))
	for k, st := range r.Stations {
		key, err := wifi.CanonicalMAC(k)
		if err != nil || st == nil {
			dropped++
			continue
		}
		st.MAC = key
		stations[key] = st
	}

	pcaps := make(map[string]*PcapEntry, len(r.Pcaps))
	for k, e := range r.Pcaps {
		if e == nil || k == "" {
			dropped++
			continue
		}
		e.Filename = k
		if e.BSSID == "" {
			e.BSSID = wifi.UnknownBSSID
		}
		pcaps[k] = e
	}

	r.BSSIDs, r.Stations, r.Pcaps = bssids, stations, pcaps
	return dropped
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
