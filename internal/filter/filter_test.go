package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifibear/capvault/pkg/wifi"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCompileAccessPoints(t *testing.T) {
	Now = func() time.Time { return now }
	t.Cleanup(func() { Now = time.Now })

	home := wifi.AccessPoint{
		BSSID:        "AA:BB:CC:DD:EE:FF",
		ESSID:        "Home",
		ESSIDHistory: []string{"Home", "Home-old"},
		Channel:      "6",
		Encryption:   "WPA2",
		Packets:      120,
		Beacons:      100,
		LastSeen:     now.Add(-time.Hour),
	}
	hidden := wifi.AccessPoint{BSSID: "02:00:00:00:00:01", ESSID: wifi.HiddenESSID, Encryption: "Open"}

	tests := []struct {
		name       string
		src        string
		home, hide bool
	}{
		{"empty matches all", "", true, true},
		{"blank matches all", "   ", true, true},
		{"encryption", `encryption == "WPA2"`, true, false},
		{"counter", `beacons >= 100 && packets > 100`, true, false},
		{"substring", `essid contains "Ho"`, true, false},
		{"history", `"Home-old" in history`, true, false},
		{"hidden", `hidden`, false, true},
		{"age", `age <= 3600`, true, true},
		{"prefix", `bssid startsWith "02:"`, false, true},
		{"channel", `channel == "6"`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := CompileAccessPoints(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.home, match(home))
			assert.Equal(t, tt.hide, match(hidden))
		})
	}
}

func TestCompileStations(t *testing.T) {
	st := wifi.Station{
		MAC:             "02:11:22:33:44:55",
		AssociatedBSSID: "AA:BB:CC:DD:EE:FF",
		ProbedESSIDs:    "Airport, Hotel",
		Packets:         7,
		FirstSeen:       now,
	}
	lone := wifi.Station{MAC: "DE:AD:BE:EF:00:01"}

	match, err := CompileStations(`"Hotel" in probes && associated`)
	require.NoError(t, err)
	assert.True(t, match(st))
	assert.False(t, match(lone))

	match, err = CompileStations(`first_seen == 0`)
	require.NoError(t, err)
	assert.False(t, match(st))
	assert.True(t, match(lone))

	match, err = CompileStations("")
	require.NoError(t, err)
	assert.True(t, match(lone))
}

func TestCompileErrors(t *testing.T) {
	_, err := CompileAccessPoints(`essid ==`)
	assert.Error(t, err)

	_, err = CompileAccessPoints(`packets + 1`)
	assert.Error(t, err, "non-boolean expressions are rejected")

	_, err = CompileStations(`nosuchfield == 1`)
	assert.Error(t, err)
}
