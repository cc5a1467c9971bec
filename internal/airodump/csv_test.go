package airodump

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifibear/capvault/pkg/wifi"
)

const sample = "\r\n" +
	"BSSID, First time seen, Last time seen, channel, Speed, Privacy, Cipher, Authentication, Power, # beacons, # IV, LAN IP, ID-length, ESSID, Key\r\n" +
	"AA:BB:CC:DD:EE:FF, 2024-05-01 09:58:01, 2024-05-01 10:02:11,  6,  54, WPA2 WPA, CCMP TKIP, PSK, -42,      120,       15,   0.  0.  0.  0,   7, HomeNet, \r\n" +
	"02:00:00:00:00:01, 2024-05-01 09:59:00, 2024-05-01 10:00:00, 11,  54, WEP , WEP, , -70,        8,        0,   0.  0.  0.  0,   0, , \r\n" +
	"02:00:00:00:00:02, 2024-05-01 09:59:00, 2024-05-01 10:00:00, -1,  -1, OPN , , , -80,        3,        0,   0.  0.  0.  0,   4, \\x00\\x00\\x00\\x00, \r\n" +
	"not-a-mac, 2024-05-01 09:59:00, 2024-05-01 10:00:00, 1, 54, OPN, , , -1, 1, 0, 0.0.0.0, 0, x, \r\n" +
	"\r\n" +
	"Station MAC, First time seen, Last time seen, Power, # packets, BSSID, Probed ESSIDs\r\n" +
	"02:11:22:33:44:55, 2024-05-01 09:58:30, 2024-05-01 10:01:00, -50,       42, AA:BB:CC:DD:EE:FF, Airport,Hotel\r\n" +
	"DE:AD:BE:EF:00:01, 2024-05-01 09:59:30, 2024-05-01 09:59:45, -60,        3, (not associated) , \r\n" +
	"short, row\r\n"

func TestParse(t *testing.T) {
	scan, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, scan.AccessPoints, 3)
	home := scan.AccessPoints[0]
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", home.BSSID)
	assert.Equal(t, "HomeNet", home.ESSID)
	assert.Equal(t, "6", home.Channel)
	assert.Equal(t, "WPA2/WPA", home.Encryption)
	assert.Equal(t, uint64(120), home.Beacons)
	assert.Equal(t, uint64(135), home.Packets)
	assert.True(t, home.FirstSeen.Equal(time.Date(2024, 5, 1, 9, 58, 1, 0, time.Local)))
	assert.True(t, home.SeenAt.Equal(time.Date(2024, 5, 1, 10, 2, 11, 0, time.Local)))

	wep := scan.AccessPoints[1]
	assert.Equal(t, "WEP", wep.Encryption)
	assert.Equal(t, wifi.HiddenESSID, wep.ESSID)

	open := scan.AccessPoints[2]
	assert.Equal(t, "Open", open.Encryption)
	assert.Equal(t, wifi.HiddenESSID, open.ESSID)
	assert.Empty(t, open.Channel)

	require.Len(t, scan.Stations, 2)
	assert.Equal(t, "02:11:22:33:44:55", scan.Stations[0].MAC)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", scan.Stations[0].AssociatedBSSID)
	assert.Equal(t, "Airport,Hotel", scan.Stations[0].ProbedESSIDs)
	assert.Equal(t, uint64(42), scan.Stations[0].Packets)
	assert.Empty(t, scan.Stations[1].AssociatedBSSID)
	assert.Empty(t, scan.Stations[1].ProbedESSIDs)

	assert.Equal(t, 2, scan.Skipped)
}

func TestEncryptionLabel(t *testing.T) {
	tests := map[string]string{
		"WPA2":      "WPA2",
		"WPA2 WPA":  "WPA2/WPA",
		"WPA3 WPA2": "WPA2",
		"WPA":       "WPA",
		"WEP":       "WEP",
		"OPN":       "Open",
		"":          "Open",
	}
	for in, want := range tests {
		assert.Equal(t, want, encryptionLabel(in), in)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan-01.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	scan, err := ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, scan.AccessPoints, 3)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
