package capture

import (
	"net"
	"slices"

	"github.com/google/gopacket/layers"
	"github.com/wifibear/capvault/pkg/wifi"
)

const (
	// clientLookahead bounds how many EAPOL frames per BSSID are inspected
	// for the client address.
	clientLookahead = 5
	completeFrames  = 4
	maxMessages     = 4
)

// eapolTrack is the bounded per-BSSID state kept while streaming a capture.
type eapolTrack struct {
	bssid      string
	count      int
	firstIndex int
	pmkid      string
	client     string
	messages   []wifi.HandshakeMessage
}

// handshakeTracker accumulates EAPOL frames per BSSID in a single pass.
type handshakeTracker struct {
	order   []string
	byBSSID map[string]*eapolTrack
}

func newHandshakeTracker() *handshakeTracker {
	return &handshakeTracker{byBSSID: make(map[string]*eapolTrack)}
}

// observe records one EAPOL-bearing frame. frame is the full EAPOL frame,
// header included. It returns the BSSID the frame was attributed to.
func (t *handshakeTracker) observe(index int, dot11 *layers.Dot11, frame []byte) (string, bool) {
	if wifi.IsGroup(dot11.Address3) {
		return "", false
	}
	bssid := wifi.FormatMAC(dot11.Address3)

	tr, ok := t.byBSSID[bssid]
	if !ok {
		tr = &eapolTrack{bssid: bssid, firstIndex: index}
		t.byBSSID[bssid] = tr
		t.order = append(t.order, bssid)
	}
	tr.count++

	key, err := wifi.ParseEAPOLKeyFrame(frame)
	if tr.count == 1 && err == nil {
		if pmkid, ok := key.PMKID(); ok {
			tr.pmkid = pmkid
		}
	}
	if tr.count <= clientLookahead && tr.client == "" {
		tr.client = clientAddress(dot11, bssid)
	}
	if err == nil && len(tr.messages) < maxMessages {
		if msg := key.MessageNumber(); msg != wifi.HandshakeMsgUnknown && !slices.Contains(tr.messages, msg) {
			tr.messages = append(tr.messages, msg)
		}
	}
	return bssid, true
}

// clientAddress picks address-1, else address-2, skipping the BSSID itself
// and group addresses.
func clientAddress(dot11 *layers.Dot11, bssid string) string {
	for _, addr := range []net.HardwareAddr{dot11.Address1, dot11.Address2} {
		if wifi.IsGroup(addr) {
			continue
		}
		if mac := wifi.FormatMAC(addr); mac != bssid {
			return mac
		}
	}
	return ""
}

// resolve classifies every tracked BSSID, in order of its first EAPOL frame.
func (t *handshakeTracker) resolve(ds *Dataset) []wifi.HandshakeCapture {
	out := make([]wifi.HandshakeCapture, 0, len(t.order))
	for _, bssid := range t.order {
		tr := t.byBSSID[bssid]
		hc := wifi.HandshakeCapture{
			BSSID:             bssid,
			SSID:              wifi.HiddenESSID,
			ClientMAC:         tr.client,
			PMKID:             tr.pmkid,
			HandshakeComplete: tr.count >= completeFrames,
			EAPOLFrames:       tr.count,
			SourceFile:        ds.Source,
			PacketIndex:       tr.firstIndex,
		}
		if ap, ok := ds.AccessPoints[bssid]; ok {
			hc.SSID = ap.ESSID
		}
		switch {
		case tr.pmkid != "":
			hc.Kind = wifi.PMKIDCapture
		case hc.HandshakeComplete:
			hc.Kind = wifi.HandshakeComplete
		default:
			hc.Kind = wifi.HandshakePartial
		}
		for _, m := range tr.messages {
			hc.Messages = append(hc.Messages, m.String())
		}
		out = append(out, hc)
	}
	return out
}
