package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ct "github.com/wifibear/capvault/internal/capture/capturetest"
)

var (
	apMAC     = ct.MAC("aa:bb:cc:dd:ee:ff")
	clientMAC = ct.MAC("02:11:22:33:44:55")
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--dir", dir, "-v", "0"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCapture(t *testing.T, pmkid []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	frames := append([][]byte{
		ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.Channel(6), ct.RSN()),
		ct.ProbeRequest(clientMAC, "Airport"),
	}, ct.Handshake(apMAC, clientMAC, pmkid)...)
	ct.WriteFile(t, path, frames...)
	return path
}

func TestIngestAndQuery(t *testing.T) {
	dir := t.TempDir()
	src := writeCapture(t, bytes.Repeat([]byte{0x5A}, 16))

	out, err := run(t, dir, "ingest", src)
	require.NoError(t, err)
	assert.Contains(t, out, "_unknown_capture.pcap")
	assert.FileExists(t, filepath.Join(dir, "network_history.json"))

	out, err = run(t, dir, "aps")
	require.NoError(t, err)
	assert.Contains(t, out, "HomeNet")
	assert.Contains(t, out, "AA:BB:CC:DD:EE:FF")

	out, err = run(t, dir, "aps", "--filter", `encryption == "Open"`)
	require.NoError(t, err)
	assert.NotContains(t, out, "HomeNet")
	assert.Contains(t, out, "0 of 1 access points")

	_, err = run(t, dir, "aps", "--filter", `essid ==`)
	assert.Error(t, err)

	out, err = run(t, dir, "stations", "--json")
	require.NoError(t, err)
	var stations []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stations))
	require.Len(t, stations, 1)
	assert.Equal(t, "02:11:22:33:44:55", stations[0]["station_mac"])
	assert.Equal(t, "Airport", stations[0]["essids"])

	out, err = run(t, dir, "show", "aa-bb-cc-dd-ee-ff")
	require.NoError(t, err)
	assert.Contains(t, out, "PMKID")
	assert.Contains(t, out, "5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a")

	_, err = run(t, dir, "show", "02:00:00:00:00:09")
	assert.Error(t, err)

	out, err = run(t, dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Handshakes   1 (1 complete, 1 PMKID)")

	out, err = run(t, dir, "pcaps")
	require.NoError(t, err)
	assert.Contains(t, out, "1 captures")

	out, err = run(t, dir, "export", "hashcat", "-")
	require.NoError(t, err)
	assert.Equal(t, "WPA*01*5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a*aabbccddeeff*021122334455*486f6d654e6574***\n", out)

	db := filepath.Join(t.TempDir(), "snap.db")
	_, err = run(t, dir, "export", "sqlite", db)
	require.NoError(t, err)
	assert.FileExists(t, db)
}

func TestSyncAndPrune(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pcaps")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	data, err := os.ReadFile(writeCapture(t, nil))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(archive, "dropped.pcap"), data, 0o644))

	out, err := run(t, dir, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "+ dropped.pcap")

	out, err = run(t, dir, "--quota", "1", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned dropped.pcap")
	assert.NoFileExists(t, filepath.Join(archive, "dropped.pcap"))

	_, err = run(t, dir, "--quota", "lots", "stats")
	assert.Error(t, err)
}

func TestParseAndStrip(t *testing.T) {
	src := writeCapture(t, nil)

	out, err := run(t, t.TempDir(), "parse", src)
	require.NoError(t, err)
	assert.Contains(t, out, "HomeNet")
	assert.Contains(t, out, "WPA Handshake (Complete)")

	out, err = run(t, t.TempDir(), "parse", "--json", src)
	require.NoError(t, err)
	var ds map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	assert.Contains(t, ds["bssids"], "AA:BB:CC:DD:EE:FF")

	stripped := filepath.Join(t.TempDir(), "hs.pcap")
	out, err = run(t, t.TempDir(), "strip", "--bssid", "aa:bb:cc:dd:ee:ff", src, stripped)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 5 frames")

	_, err = run(t, t.TempDir(), "parse", filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}

func TestImportCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(t.TempDir(), "scan-01.csv")
	csv := strings.Join([]string{
		"BSSID, First time seen, Last time seen, channel, Speed, Privacy, Cipher, Authentication, Power, # beacons, # IV, LAN IP, ID-length, ESSID, Key",
		"AA:BB:CC:DD:EE:FF, 2024-05-01 09:58:01, 2024-05-01 10:02:11,  6,  54, WPA2, CCMP, PSK, -42, 120, 15, 0.0.0.0, 7, HomeNet, ",
		"",
		"Station MAC, First time seen, Last time seen, Power, # packets, BSSID, Probed ESSIDs",
		"02:11:22:33:44:55, 2024-05-01 09:58:30, 2024-05-01 10:01:00, -50, 42, AA:BB:CC:DD:EE:FF, Airport",
	}, "\n")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))

	out, err := run(t, dir, "import-csv", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 access points, 1 stations")

	out, err = run(t, dir, "aps", "--filter", "beacons == 120")
	require.NoError(t, err)
	assert.Contains(t, out, "HomeNet")
}

func TestConfigFileOverlay(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(t.TempDir(), "elsewhere")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("storage:\n  archive_dir: "+archive+"\n"), 0o644))

	out, err := run(t, dir, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, archive)
}
