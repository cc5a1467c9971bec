package export

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/wifibear/capvault/pkg/wifi"
)

const broadcastHex = "ffffffffffff"

// WritePMKIDHashes writes one hashcat line per distinct PMKID capture and
// returns how many lines were written. The default format is the 22000
// WPA*01 line; legacy selects the older 16800 pmkid*ap*sta*essid form.
func WritePMKIDHashes(w io.Writer, captures []wifi.HandshakeCapture, legacy bool) (int, error) {
	bw := bufio.NewWriter(w)
	seen := make(map[string]bool)
	n := 0
	for _, c := range captures {
		line, ok := pmkidLine(c, legacy)
		if !ok || seen[line] {
			continue
		}
		seen[line] = true
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}

func pmkidLine(c wifi.HandshakeCapture, legacy bool) (string, bool) {
	if c.PMKID == "" {
		return "", false
	}
	pmkid := strings.ToLower(c.PMKID)
	if b, err := hex.DecodeString(pmkid); err != nil || len(b) != 16 {
		return "", false
	}
	ap, ok := hexMAC(c.BSSID)
	if !ok {
		return "", false
	}
	sta, ok := hexMAC(c.ClientMAC)
	if !ok {
		sta = broadcastHex
	}
	essid := ""
	if c.SSID != wifi.HiddenESSID {
		essid = hex.EncodeToString([]byte(c.SSID))
	}

	if legacy {
		return strings.Join([]string{pmkid, ap, sta, essid}, "*"), true
	}
	return fmt.Sprintf("WPA*01*%s*%s*%s*%s***", pmkid, ap, sta, essid), true
}

func hexMAC(mac string) (string, bool) {
	key, err := wifi.CanonicalMAC(mac)
	if err != nil {
		return "", false
	}
	return strings.ToLower(strings.ReplaceAll(key, ":", "")), true
}

func joinMessages(msgs []string) any {
	if len(msgs) == 0 {
		return nil
	}
	return strings.Join(msgs, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
