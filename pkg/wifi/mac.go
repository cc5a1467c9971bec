package wifi

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

// UnknownBSSID labels archive entries whose access point could not be determined.
const UnknownBSSID = "UNKNOWN"

var (
	colonMACRe = regexp.MustCompile(`[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}`)
	dashMACRe  = regexp.MustCompile(`[0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5}`)
)

// CanonicalMAC parses a hardware address in any form accepted by net.ParseMAC
// and returns it as uppercase, colon separated hex. Only 6-byte addresses are valid.
func CanonicalMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse mac %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("parse mac %q: not a 6-byte address", s)
	}
	return FormatMAC(hw), nil
}

// FormatMAC renders a hardware address in canonical form.
func FormatMAC(hw net.HardwareAddr) string {
	return strings.ToUpper(hw.String())
}

// DashedMAC turns a canonical MAC into the form used inside archive filenames.
func DashedMAC(mac string) string {
	return strings.ReplaceAll(strings.ToUpper(mac), ":", "-")
}

// IsBroadcast reports whether mac is ff:ff:ff:ff:ff:ff or malformed.
func IsBroadcast(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return true
	}
	return mac[0] == 0xff && mac[1] == 0xff && mac[2] == 0xff &&
		mac[3] == 0xff && mac[4] == 0xff && mac[5] == 0xff
}

// IsGroup reports whether mac is a broadcast or multicast address.
func IsGroup(mac net.HardwareAddr) bool {
	if IsBroadcast(mac) {
		return true
	}
	return mac[0]&0x01 != 0
}

// FindMAC returns the first MAC-looking substring of s in canonical form.
// Colon separated addresses are preferred over dash separated ones.
func FindMAC(s string) (string, bool) {
	for _, re := range []*regexp.Regexp{colonMACRe, dashMACRe} {
		if m := re.FindString(s); m != "" {
			return strings.ToUpper(strings.ReplaceAll(m, "-", ":")), true
		}
	}
	return "", false
}
