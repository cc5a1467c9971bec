package capture

import (
	"slices"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/wifibear/capvault/pkg/wifi"
)

// APFragment is what one capture file says about one BSSID.
type APFragment struct {
	BSSID      string    `json:"bssid"`
	ESSID      string    `json:"essid"`
	Channel    string    `json:"channel"`
	Encryption string    `json:"encryption"`
	Packets    uint64    `json:"packets"`
	Beacons    uint64    `json:"beacons"`
	FirstIndex int       `json:"first_index"`
	LastIndex  int       `json:"last_index"`
	FirstSeen  time.Time `json:"first_seen,omitzero"`
	LastSeen   time.Time `json:"last_seen,omitzero"`
}

// StationFragment is what one capture file says about one client.
type StationFragment struct {
	MAC             string    `json:"station_mac"`
	AssociatedBSSID string    `json:"associated_bssid,omitempty"`
	ProbedESSIDs    []string  `json:"probed_essids,omitempty"`
	Packets         uint64    `json:"packets"`
	FirstIndex      int       `json:"first_index"`
	LastIndex       int       `json:"last_index"`
	FirstSeen       time.Time `json:"first_seen,omitzero"`
	LastSeen        time.Time `json:"last_seen,omitzero"`
}

// Dataset is the result of decoding a single capture file.
type Dataset struct {
	Source        string                      `json:"source"`
	LinkType      layers.LinkType             `json:"link_type"`
	AccessPoints  map[string]*APFragment      `json:"bssids"`
	Stations      map[string]*StationFragment `json:"stations"`
	Handshakes    []wifi.HandshakeCapture     `json:"handshakes"`
	TotalPackets  int                         `json:"total_packets"`
	TotalBeacons  int                         `json:"total_beacons"`
	EAPOLFrames   int                         `json:"eapol_frames"`
	SkippedFrames int                         `json:"skipped_frames"`
}

func newDataset(source string, lt layers.LinkType) *Dataset {
	return &Dataset{
		Source:       source,
		LinkType:     lt,
		AccessPoints: make(map[string]*APFragment),
		Stations:     make(map[string]*StationFragment),
		Handshakes:   []wifi.HandshakeCapture{},
	}
}

// BSSIDs returns the access point keys in sorted order.
func (ds *Dataset) BSSIDs() []string {
	keys := make([]string, 0, len(ds.AccessPoints))
	for k := range ds.AccessPoints {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// StationMACs returns the station keys in sorted order.
func (ds *Dataset) StationMACs() []string {
	keys := make([]string, 0, len(ds.Stations))
	for k := range ds.Stations {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// PMKIDs counts handshake entries carrying a PMKID.
func (ds *Dataset) PMKIDs() int {
	n := 0
	for _, h := range ds.Handshakes {
		if h.Kind == wifi.PMKIDCapture {
			n++
		}
	}
	return n
}

func (ds *Dataset) accessPoint(bssid string, index int, ts time.Time) *APFragment {
	ap, ok := ds.AccessPoints[bssid]
	if !ok {
		ap = &APFragment{
			BSSID:      bssid,
			ESSID:      wifi.HiddenESSID,
			FirstIndex: index,
			FirstSeen:  ts,
		}
		ds.AccessPoints[bssid] = ap
	}
	ap.LastIndex = index
	ap.FirstSeen, ap.LastSeen = widen(ap.FirstSeen, ap.LastSeen, ts)
	return ap
}

// eapolAccessPoint records a BSSID first seen through EAPOL. Known access
// points are left as their management frames described them.
func (ds *Dataset) eapolAccessPoint(bssid string, index int, ts time.Time) {
	if _, ok := ds.AccessPoints[bssid]; ok {
		return
	}
	ap := ds.accessPoint(bssid, index, ts)
	ap.Packets = 1
}

func (ds *Dataset) station(mac string, index int, ts time.Time) *StationFragment {
	st, ok := ds.Stations[mac]
	if !ok {
		st = &StationFragment{
			MAC:        mac,
			FirstIndex: index,
			FirstSeen:  ts,
		}
		ds.Stations[mac] = st
	}
	st.LastIndex = index
	st.FirstSeen, st.LastSeen = widen(st.FirstSeen, st.LastSeen, ts)
	return st
}

// widen extends [first, last] to cover ts. Zero values mean unknown.
func widen(first, last, ts time.Time) (time.Time, time.Time) {
	if ts.IsZero() {
		return first, last
	}
	if first.IsZero() || ts.Before(first) {
		first = ts
	}
	if last.IsZero() || ts.After(last) {
		last = ts
	}
	return first, last
}
