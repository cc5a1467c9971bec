package registry

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wifibear/capvault/internal/capture"
	ct "github.com/wifibear/capvault/internal/capture/capturetest"
)

var (
	apMAC     = ct.MAC("aa:bb:cc:dd:ee:ff")
	otherAP   = ct.MAC("02:00:00:00:00:01")
	clientMAC = ct.MAC("02:11:22:33:44:55")
)

const (
	apKey      = "AA:BB:CC:DD:EE:FF"
	otherAPKey = "02:00:00:00:00:01"
	clientKey  = "02:11:22:33:44:55"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testOptions(t *testing.T) (Options, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	clk := &fakeClock{t: epoch}
	return Options{
		ArchiveDir:   filepath.Join(dir, "pcaps"),
		RegistryPath: filepath.Join(dir, "network_history.json"),
		Logger:       log.New(io.Discard, "", 0),
		Now:          clk.Now,
		Parse:        capture.ParseFile,
	}, clk
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	opts, clk := testOptions(t)
	require.NoError(t, os.MkdirAll(opts.ArchiveDir, 0o755))
	return New(opts), clk
}

// handshakeCapture is a beacon of apMAC followed by a complete handshake with clientMAC.
func handshakeCapture() [][]byte {
	return append([][]byte{ct.Beacon(apMAC, true, ct.SSID("HomeNet"), ct.Channel(6), ct.RSN())},
		ct.Handshake(apMAC, clientMAC, nil)...)
}

func writeCapture(t *testing.T, dir, name string, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	ct.WriteFile(t, path, frames...)
	return path
}
