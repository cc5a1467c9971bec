package capture

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ct "github.com/wifibear/capvault/internal/capture/capturetest"
	"github.com/wifibear/capvault/pkg/wifi"
)

var (
	apMAC     = ct.MAC("aa:bb:cc:dd:ee:ff")
	clientMAC = ct.MAC("02:11:22:33:44:55")
	otherAP   = ct.MAC("02:00:00:00:00:01")
	pmkid     = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0xfe, 0xdc, 0xba, 0x98, 0x76, 0x54, 0x32, 0x10}
)

const (
	apKey     = "AA:BB:CC:DD:EE:FF"
	clientKey = "02:11:22:33:44:55"
)

func parse(t *testing.T, frames ...[]byte) *Dataset {
	t.Helper()
	ds, err := ParseBytes(context.Background(), ct.Pcap(t, frames...), "test.pcap")
	require.NoError(t, err)
	return ds
}

func TestParseBeaconAndCompleteHandshake(t *testing.T) {
	frames := append([][]byte{ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.Channel(6), ct.RSN())},
		ct.Handshake(apMAC, clientMAC, nil)...)
	ds := parse(t, frames...)

	require.Contains(t, ds.AccessPoints, apKey)
	ap := ds.AccessPoints[apKey]
	assert.Equal(t, "HomeNet", ap.ESSID)
	assert.Equal(t, "6", ap.Channel)
	assert.Equal(t, "WPA2", ap.Encryption)
	assert.Equal(t, uint64(1), ap.Beacons)
	assert.Equal(t, uint64(1), ap.Packets)
	assert.Equal(t, 0, ap.FirstIndex)
	assert.Equal(t, 0, ap.LastIndex)
	assert.True(t, ap.FirstSeen.Equal(ct.Start), "first seen %v", ap.FirstSeen)
	assert.True(t, ap.LastSeen.Equal(ct.Start), "last seen %v", ap.LastSeen)

	want := []wifi.HandshakeCapture{{
		Kind:              wifi.HandshakeComplete,
		BSSID:             apKey,
		SSID:              "HomeNet",
		ClientMAC:         clientKey,
		HandshakeComplete: true,
		EAPOLFrames:       4,
		Messages:          []string{"M1", "M2", "M3", "M4"},
		SourceFile:        "test.pcap",
		PacketIndex:       1,
	}}
	if diff := cmp.Diff(want, ds.Handshakes); diff != "" {
		t.Errorf("handshakes mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 5, ds.TotalPackets)
	assert.Equal(t, 1, ds.TotalBeacons)
	assert.Equal(t, 4, ds.EAPOLFrames)
	assert.Zero(t, ds.SkippedFrames)
}

func TestParsePMKIDInFirstFrame(t *testing.T) {
	frames := append([][]byte{ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.RSN())},
		ct.Handshake(apMAC, clientMAC, pmkid)...)
	ds := parse(t, frames...)

	require.Len(t, ds.Handshakes, 1)
	h := ds.Handshakes[0]
	assert.Equal(t, wifi.PMKIDCapture, h.Kind)
	assert.Equal(t, hex.EncodeToString(pmkid), h.PMKID)
	assert.True(t, h.HandshakeComplete)
	assert.Equal(t, 1, ds.PMKIDs())
}

func TestParsePMKIDOnlyFromFirstFrame(t *testing.T) {
	frames := [][]byte{
		ct.EAPOLData(apMAC, clientMAC, true, ct.EAPOLKey(ct.KeyInfoM1, 0x11, nil)),
		ct.EAPOLData(apMAC, clientMAC, false, ct.EAPOLKey(ct.KeyInfoM2, 0x22, ct.PMKIDKeyData(pmkid))),
	}
	ds := parse(t, frames...)

	require.Len(t, ds.Handshakes, 1)
	assert.Equal(t, wifi.HandshakePartial, ds.Handshakes[0].Kind)
	assert.Empty(t, ds.Handshakes[0].PMKID)
	assert.Equal(t, wifi.HiddenESSID, ds.Handshakes[0].SSID)
}

func TestParseHandshakeWithKDEInFirstFrameIsComplete(t *testing.T) {
	frames := ct.Handshake(apMAC, clientMAC, nil)
	frames[0] = ct.EAPOLData(apMAC, clientMAC, true, ct.EAPOLKey(ct.KeyInfoM1, 0x11, ct.PMKIDKDE(pmkid)))
	ds := parse(t, frames...)

	require.Len(t, ds.Handshakes, 1)
	assert.Equal(t, wifi.HandshakeComplete, ds.Handshakes[0].Kind)
	assert.Empty(t, ds.Handshakes[0].PMKID)
}

func TestParseZeroPMKIDIsKept(t *testing.T) {
	ds := parse(t, ct.EAPOLData(apMAC, clientMAC, true, ct.EAPOLKey(ct.KeyInfoM1, 0x11, ct.PMKIDKeyData(make([]byte, 16)))))

	require.Len(t, ds.Handshakes, 1)
	assert.Equal(t, wifi.PMKIDCapture, ds.Handshakes[0].Kind)
	assert.Equal(t, "00000000000000000000000000000000", ds.Handshakes[0].PMKID)
}

func TestParsePartialHandshake(t *testing.T) {
	hs := ct.Handshake(apMAC, clientMAC, nil)
	ds := parse(t, hs[0], hs[1])

	require.Len(t, ds.Handshakes, 1)
	h := ds.Handshakes[0]
	assert.Equal(t, wifi.HandshakePartial, h.Kind)
	assert.False(t, h.HandshakeComplete)
	assert.Equal(t, 2, h.EAPOLFrames)
	assert.Equal(t, clientKey, h.ClientMAC)

	// EAPOL creates the access point even without a beacon.
	require.Contains(t, ds.AccessPoints, apKey)
	ap := ds.AccessPoints[apKey]
	assert.Equal(t, wifi.HiddenESSID, ap.ESSID)
	assert.Equal(t, uint64(1), ap.Packets)
	assert.Zero(t, ap.Beacons)
	assert.Equal(t, 0, ap.FirstIndex)
	assert.Equal(t, 0, ap.LastIndex)
}

func TestParseBeaconAfterEAPOLFillsAccessPoint(t *testing.T) {
	hs := ct.Handshake(apMAC, clientMAC, nil)
	ds := parse(t, hs[0], hs[1], ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.RSN()))

	ap := ds.AccessPoints[apKey]
	assert.Equal(t, "HomeNet", ap.ESSID)
	assert.Equal(t, "WPA2", ap.Encryption)
	assert.Equal(t, uint64(2), ap.Packets)
	assert.Equal(t, uint64(1), ap.Beacons)
	assert.Equal(t, 0, ap.FirstIndex)
	assert.Equal(t, 2, ap.LastIndex)
}

func TestParseHandshakesOrderedByFirstFrame(t *testing.T) {
	first := ct.Handshake(otherAP, clientMAC, nil)
	second := ct.Handshake(apMAC, clientMAC, nil)
	ds := parse(t, first[0], second[0], first[1], second[1])

	require.Len(t, ds.Handshakes, 2)
	assert.Equal(t, "02:00:00:00:00:01", ds.Handshakes[0].BSSID)
	assert.Equal(t, 0, ds.Handshakes[0].PacketIndex)
	assert.Equal(t, apKey, ds.Handshakes[1].BSSID)
	assert.Equal(t, 1, ds.Handshakes[1].PacketIndex)
}

func TestParseEncryptionLabels(t *testing.T) {
	tests := []struct {
		name    string
		privacy bool
		ies     []ct.IE
		want    string
	}{
		{"open", false, []ct.IE{ct.SSID("cafe")}, "Open"},
		{"wep", true, []ct.IE{ct.SSID("old")}, "WEP"},
		{"wpa2", true, []ct.IE{ct.SSID("n"), ct.RSN()}, "WPA2"},
		{"wpa", true, []ct.IE{ct.SSID("n"), ct.WPA()}, "WPA"},
		{"mixed", true, []ct.IE{ct.SSID("n"), ct.WPA(), ct.RSN()}, "WPA2/WPA"},
		{"wps is not wpa", false, []ct.IE{ct.SSID("n"), ct.WPS()}, "Open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := parse(t, ct.Beacon(apMAC, tt.privacy, tt.ies...))
			require.Contains(t, ds.AccessPoints, apKey)
			assert.Equal(t, tt.want, ds.AccessPoints[apKey].Encryption)
		})
	}
}

func TestParseHiddenESSID(t *testing.T) {
	tests := []struct {
		name string
		ies  []ct.IE
	}{
		{"empty ssid", []ct.IE{ct.SSID("")}},
		{"nul ssid", []ct.IE{{ID: 0, Data: []byte{0, 0, 0, 0}}}},
		{"no ssid element", []ct.IE{ct.Channel(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := parse(t, ct.Beacon(apMAC, false, tt.ies...))
			assert.Equal(t, wifi.HiddenESSID, ds.AccessPoints[apKey].ESSID)
		})
	}
}

func TestParseFirstRealESSIDWins(t *testing.T) {
	ds := parse(t,
		ct.Beacon(apMAC, false, ct.SSID("")),
		ct.Beacon(apMAC, false, ct.SSID("Revealed"), ct.Channel(11)),
		ct.Beacon(apMAC, false, ct.SSID("Renamed")),
	)
	ap := ds.AccessPoints[apKey]
	assert.Equal(t, "Revealed", ap.ESSID)
	assert.Equal(t, "11", ap.Channel)
	assert.Equal(t, uint64(3), ap.Beacons)
}

func TestParseProbeResponseCountsPacketsOnly(t *testing.T) {
	ds := parse(t, ct.ProbeResponse(apMAC, clientMAC, false, ct.SSID("Lab"), ct.Channel(36)))
	ap := ds.AccessPoints[apKey]
	assert.Equal(t, "Lab", ap.ESSID)
	assert.Equal(t, "36", ap.Channel)
	assert.Equal(t, uint64(1), ap.Packets)
	assert.Zero(t, ap.Beacons)
	assert.Zero(t, ds.TotalBeacons)
}

func TestParseShortTrailingElements(t *testing.T) {
	tests := []struct {
		name    string
		ies     []ct.IE
		essid   string
		channel string
	}{
		{"channel last", []ct.IE{ct.SSID("Lab"), ct.Channel(36)}, "Lab", "36"},
		{"short ssid last", []ct.IE{ct.Channel(1), ct.SSID("ab")}, "ab", "1"},
		{"channel before rsn", []ct.IE{ct.SSID("Lab"), ct.Channel(36), ct.RSN()}, "Lab", "36"},
		{"empty trailing element", []ct.IE{ct.SSID("Lab"), ct.Channel(6), {ID: 48}}, "Lab", "6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := parse(t, ct.Beacon(apMAC, false, tt.ies...))
			require.Contains(t, ds.AccessPoints, apKey)
			assert.Equal(t, tt.essid, ds.AccessPoints[apKey].ESSID)
			assert.Equal(t, tt.channel, ds.AccessPoints[apKey].Channel)
		})
	}
}

func TestReadElements(t *testing.T) {
	raw := []byte{
		0x00, 0x03, 'L', 'a', 'b',
		0x03, 0x01, 0x24,
		0xdd, 0x04, 0x00, 0x50, 0xf2, 0x01,
		0x30, 0x10, 0x01, // length runs past the end
	}
	el := readElements(raw)
	assert.Equal(t, "Lab", el.essid)
	assert.Equal(t, "36", el.channel)
	assert.True(t, el.wpa)
	assert.False(t, el.rsn)

	assert.Equal(t, wifi.HiddenESSID, readElements(nil).essid)
	assert.Equal(t, wifi.HiddenESSID, readElements([]byte{0x00}).essid)
}

func TestParseProbedESSIDs(t *testing.T) {
	ds := parse(t,
		ct.ProbeRequest(clientMAC, "Airport"),
		ct.ProbeRequest(clientMAC, "Hotel"),
		ct.ProbeRequest(clientMAC, "LongerNetworkName"),
	)
	require.Contains(t, ds.Stations, clientKey)
	st := ds.Stations[clientKey]
	assert.Equal(t, []string{"Airport", "Hotel", "LongerNetworkName"}, st.ProbedESSIDs)
	assert.Empty(t, st.AssociatedBSSID)
	assert.Equal(t, uint64(3), st.Packets)
}

func TestParseDataFrameDirection(t *testing.T) {
	tests := []struct {
		name   string
		fromAP bool
	}{
		{"to distribution system", false},
		{"from distribution system", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := parse(t, ct.Data(apMAC, clientMAC, tt.fromAP, 0x0800, []byte{0x45, 0x00}))
			require.Len(t, ds.Stations, 1)
			require.Contains(t, ds.Stations, clientKey)
			assert.Equal(t, apKey, ds.Stations[clientKey].AssociatedBSSID)
		})
	}
}

func TestParseStations(t *testing.T) {
	ds := parse(t,
		ct.ProbeRequest(clientMAC, "Airport"),
		ct.ProbeRequest(clientMAC, ""),
		ct.ProbeRequest(clientMAC, "Hotel"),
		ct.ProbeRequest(clientMAC, "Airport"),
		ct.Data(apMAC, clientMAC, false, 0x0800, []byte{0x45, 0x00}),
		ct.Data(apMAC, clientMAC, true, 0x0800, []byte{0x45, 0x00}),
	)

	require.Contains(t, ds.Stations, clientKey)
	st := ds.Stations[clientKey]
	assert.Equal(t, []string{"Airport", "Hotel"}, st.ProbedESSIDs)
	assert.Equal(t, apKey, st.AssociatedBSSID)
	assert.Equal(t, uint64(6), st.Packets)
	assert.NotContains(t, ds.Stations, apKey)
}

func TestParseSkipsMalformedFrames(t *testing.T) {
	ds := parse(t,
		[]byte{0x80},
		ct.Beacon(apMAC, false, ct.SSID("Fine")),
		[]byte{0x08, 0x00, 0x00},
	)
	assert.Equal(t, 3, ds.TotalPackets)
	assert.Equal(t, 2, ds.SkippedFrames)
	assert.Equal(t, "Fine", ds.AccessPoints[apKey].ESSID)
}

func TestParseIsIdempotent(t *testing.T) {
	frames := append([][]byte{
		ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.RSN()),
		ct.ProbeRequest(clientMAC, "HomeNet"),
	}, ct.Handshake(apMAC, clientMAC, pmkid)...)
	raw := ct.Pcap(t, frames...)

	first, err := ParseBytes(context.Background(), raw, "x.pcap")
	require.NoError(t, err)
	second, err := ParseBytes(context.Background(), raw, "x.pcap")
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second parse differs (-first +second):\n%s", diff)
	}
}

func TestParsePcapNG(t *testing.T) {
	frames := append([][]byte{ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.RSN())},
		ct.Handshake(apMAC, clientMAC, nil)...)

	classic, err := ParseBytes(context.Background(), ct.Pcap(t, frames...), "same")
	require.NoError(t, err)
	ng, err := ParseBytes(context.Background(), ct.PcapNG(t, frames...), "same")
	require.NoError(t, err)

	if diff := cmp.Diff(classic, ng, cmpopts.IgnoreFields(Dataset{}, "LinkType")); diff != "" {
		t.Errorf("pcapng dataset differs (-pcap +pcapng):\n%s", diff)
	}
}

func TestParseContainerErrors(t *testing.T) {
	ctx := context.Background()

	_, err := ParseBytes(ctx, nil, "empty")
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = ParseBytes(ctx, []byte("this is not a capture file"), "text")
	assert.ErrorIs(t, err, ErrUnsupportedContainer)

	_, err = Parse(ctx, bytes.NewReader([]byte{0xd4, 0xc3}), "short")
	assert.ErrorIs(t, err, ErrUnsupportedContainer)
}

func TestParseFileErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := ParseFile(ctx, filepath.Join(dir, "missing.pcap"))
	assert.ErrorIs(t, err, ErrFileNotFound)

	empty := filepath.Join(dir, "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = ParseFile(ctx, empty)
	assert.ErrorIs(t, err, ErrEmptyFile)

	good := filepath.Join(dir, "good.cap")
	ct.WriteFile(t, good, ct.Beacon(apMAC, false, ct.SSID("x")))
	ds, err := ParseFile(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, good, ds.Source)
	assert.Len(t, ds.AccessPoints, 1)
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ds, err := ParseBytes(ctx, ct.Pcap(t, ct.Beacon(apMAC, false, ct.SSID("x"))), "c.pcap")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ds)
}

func TestWithFCS(t *testing.T) {
	frame := ct.Beacon(apMAC, false, ct.SSID("x"))
	assert.Equal(t, frame, withFCS(frame), "valid FCS is kept")

	bare := frame[:len(frame)-4]
	assert.Equal(t, frame, withFCS(bare), "missing FCS is appended")
}

func TestHasCaptureExt(t *testing.T) {
	assert.True(t, HasCaptureExt("a.pcap"))
	assert.True(t, HasCaptureExt("a.PCAPNG"))
	assert.True(t, HasCaptureExt("/x/y.cap"))
	assert.False(t, HasCaptureExt("notes.txt"))
	assert.False(t, HasCaptureExt("pcap"))
}
