// Package airodump imports the CSV files airodump-ng writes alongside its
// captures, turning them into registry scan updates.
package airodump

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wifibear/capvault/internal/registry"
	"github.com/wifibear/capvault/pkg/wifi"
)

// Column positions in the access point section.
const (
	apBSSID     = 0
	apFirstSeen = 1
	apLastSeen  = 2
	apChannel   = 3
	apPrivacy   = 5
	apBeacons   = 9
	apIVs       = 10
	apESSID     = 13
)

// Column positions in the station section.
const (
	stMAC       = 0
	stFirstSeen = 1
	stLastSeen  = 2
	stPackets   = 4
	stBSSID     = 5
	stProbed    = 6
)

// Scan is the content of one airodump-ng CSV file.
type Scan struct {
	AccessPoints []registry.BSSIDUpdate
	Stations     []registry.StationUpdate
	// Skipped counts rows that could not be parsed.
	Skipped int
}

// ParseFile reads the airodump-ng CSV at path.
func ParseFile(path string) (*Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an airodump-ng CSV stream. Malformed rows are skipped and
// counted; only a read failure of the stream itself is an error.
func Parse(r io.Reader) (*Scan, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	scan := &Scan{}
	parsingStations := false
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				scan.Skipped++
				continue
			}
			return scan, fmt.Errorf("read csv: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		switch first := strings.TrimSpace(record[0]); first {
		case "BSSID":
			parsingStations = false
			continue
		case "Station MAC":
			parsingStations = true
			continue
		case "":
			continue
		}

		if parsingStations {
			if u, ok := parseStationRecord(record); ok {
				scan.Stations = append(scan.Stations, u)
			} else {
				scan.Skipped++
			}
			continue
		}
		if u, ok := parseAccessPointRecord(record); ok {
			scan.AccessPoints = append(scan.AccessPoints, u)
		} else {
			scan.Skipped++
		}
	}
	return scan, nil
}

func parseAccessPointRecord(record []string) (registry.BSSIDUpdate, bool) {
	if len(record) <= apESSID {
		return registry.BSSIDUpdate{}, false
	}
	field := func(i int) string { return strings.TrimSpace(record[i]) }

	bssid, err := wifi.CanonicalMAC(field(apBSSID))
	if err != nil {
		return registry.BSSIDUpdate{}, false
	}

	essid := field(apESSID)
	if essid == "" || strings.HasPrefix(essid, `\x00`) {
		essid = wifi.HiddenESSID
	}
	channel := field(apChannel)
	if n, err := strconv.Atoi(channel); err != nil || n <= 0 {
		channel = ""
	}
	beacons := parseCount(field(apBeacons))
	ivs := parseCount(field(apIVs))

	return registry.BSSIDUpdate{
		BSSID:      bssid,
		ESSID:      essid,
		Channel:    channel,
		Encryption: encryptionLabel(field(apPrivacy)),
		Packets:    beacons + ivs,
		Beacons:    beacons,
		FirstSeen:  parseTime(field(apFirstSeen)),
		SeenAt:     parseTime(field(apLastSeen)),
	}, true
}

func parseStationRecord(record []string) (registry.StationUpdate, bool) {
	if len(record) <= stBSSID {
		return registry.StationUpdate{}, false
	}
	field := func(i int) string { return strings.TrimSpace(record[i]) }

	mac, err := wifi.CanonicalMAC(field(stMAC))
	if err != nil {
		return registry.StationUpdate{}, false
	}
	assoc, err := wifi.CanonicalMAC(field(stBSSID))
	if err != nil {
		// "(not associated)"
		assoc = ""
	}

	var probed []string
	for _, p := range record[stProbed:] {
		if p = strings.TrimSpace(p); p != "" {
			probed = append(probed, p)
		}
	}

	return registry.StationUpdate{
		MAC:             mac,
		AssociatedBSSID: assoc,
		ProbedESSIDs:    strings.Join(probed, ","),
		Packets:         parseCount(field(stPackets)),
		FirstSeen:       parseTime(field(stFirstSeen)),
		SeenAt:          parseTime(field(stLastSeen)),
	}, true
}

// encryptionLabel maps the privacy column ("WPA2 WPA", "WEP", "OPN", ...)
// onto the registry's encryption labels.
func encryptionLabel(privacy string) string {
	var rsn, wpa, wep bool
	for _, tok := range strings.Fields(strings.ToUpper(privacy)) {
		switch tok {
		case "WPA2", "WPA3":
			rsn = true
		case "WPA":
			wpa = true
		case "WEP":
			wep = true
		}
	}
	return wifi.EncryptionLabel(rsn, wpa, wep)
}

func parseCount(s string) uint64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return uint64(n)
}

// parseTime reads airodump's local wall-clock timestamps.
func parseTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}
