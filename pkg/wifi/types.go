package wifi

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// HiddenESSID is reported for networks that never advertised a usable name.
const HiddenESSID = "Hidden or Unknown"

type EncryptionType int

const (
	EncOpen EncryptionType = iota
	EncWEP
	EncWPA
	EncWPA2
)

func (e EncryptionType) String() string {
	switch e {
	case EncOpen:
		return "Open"
	case EncWEP:
		return "WEP"
	case EncWPA:
		return "WPA"
	case EncWPA2:
		return "WPA2"
	default:
		return "Unknown"
	}
}

// EncryptionLabel joins the detected protocols the way they are stored:
// RSN first, then WPA, e.g. "WPA2/WPA". WEP is only reported when neither
// RSN nor WPA was advertised; nothing at all yields "Open".
func EncryptionLabel(rsn, wpa, privacy bool) string {
	var parts []string
	if rsn {
		parts = append(parts, EncWPA2.String())
	}
	if wpa {
		parts = append(parts, EncWPA.String())
	}
	if len(parts) == 0 && privacy {
		parts = append(parts, EncWEP.String())
	}
	if len(parts) == 0 {
		return EncOpen.String()
	}
	return strings.Join(parts, "/")
}

// AccessPoint is the registry record for one BSSID.
type AccessPoint struct {
	BSSID        string    `json:"bssid"`
	ESSID        string    `json:"essid"`
	ESSIDHistory []string  `json:"essid_history"`
	Channel      string    `json:"channel"`
	Encryption   string    `json:"encryption"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Packets      uint64    `json:"packets"`
	Beacons      uint64    `json:"beacons"`
}

func (a *AccessPoint) String() string {
	return fmt.Sprintf("%s [%s] Ch:%s %s", a.ESSID, a.BSSID, a.Channel, a.Encryption)
}

// Clone returns a deep copy.
func (a AccessPoint) Clone() AccessPoint {
	a.ESSIDHistory = slices.Clone(a.ESSIDHistory)
	return a
}

// Station is the registry record for one client MAC.
type Station struct {
	MAC             string    `json:"station_mac"`
	AssociatedBSSID string    `json:"associated_bssid,omitempty"`
	ProbedESSIDs    string    `json:"essids"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Packets         uint64    `json:"packets"`
}

func (s *Station) String() string {
	return fmt.Sprintf("%s -> %s (%d pkts)", s.MAC, s.AssociatedBSSID, s.Packets)
}

// HandshakeKind classifies what a capture holds for one BSSID.
type HandshakeKind string

const (
	PMKIDCapture      HandshakeKind = "pmkid"
	HandshakePartial  HandshakeKind = "handshake_partial"
	HandshakeComplete HandshakeKind = "handshake_complete"
)

func (k HandshakeKind) String() string {
	switch k {
	case PMKIDCapture:
		return "PMKID"
	case HandshakeComplete:
		return "WPA Handshake (Complete)"
	case HandshakePartial:
		return "WPA Handshake (Partial)"
	default:
		return "Unknown"
	}
}

// HandshakeCapture is the per-BSSID authentication artifact found in one capture file.
type HandshakeCapture struct {
	Kind              HandshakeKind `json:"type"`
	BSSID             string        `json:"bssid"`
	SSID              string        `json:"ssid"`
	ClientMAC         string        `json:"client_mac,omitempty"`
	PMKID             string        `json:"pmkid,omitempty"`
	HandshakeComplete bool          `json:"handshake_complete"`
	EAPOLFrames       int           `json:"eapol_frames"`
	Messages          []string      `json:"messages,omitempty"`
	SourceFile        string        `json:"source_file"`
	PacketIndex       int           `json:"packet_index"`
}

// Clone returns a deep copy.
func (h HandshakeCapture) Clone() HandshakeCapture {
	h.Messages = slices.Clone(h.Messages)
	return h
}
