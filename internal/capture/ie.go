package capture

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/wifibear/capvault/pkg/wifi"
)

// capabilityPrivacy is the Privacy bit of the beacon capability field.
const capabilityPrivacy = 0x0010

// fixedFieldsLen covers timestamp, beacon interval and capability info.
const fixedFieldsLen = 12

var wpaVendorPrefix = []byte{0x00, 0x50, 0xF2, 0x01}

// elements holds what the information elements of a management frame advertise.
type elements struct {
	essid   string
	channel string
	rsn     bool
	wpa     bool
}

// managementElements returns the tagged parameters of a beacon, probe
// response or probe request body.
func managementElements(dot11 *layers.Dot11) []byte {
	body := dot11.LayerPayload()
	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon, layers.Dot11TypeMgmtProbeResp:
		if len(body) < fixedFieldsLen {
			return nil
		}
		return body[fixedFieldsLen:]
	case layers.Dot11TypeMgmtProbeReq:
		return body
	}
	return nil
}

// readElements walks tag/length/value elements. A truncated trailing
// element ends the walk; everything before it is kept.
func readElements(data []byte) elements {
	var el elements
	var haveSSID, haveChannel bool

	for len(data) >= 2 {
		id := layers.Dot11InformationElementID(data[0])
		n := int(data[1])
		if len(data) < 2+n {
			break
		}
		info := data[2 : 2+n]
		data = data[2+n:]

		switch id {
		case layers.Dot11InformationElementIDSSID:
			if !haveSSID {
				el.essid = sanitizeESSID(info)
				haveSSID = true
			}
		case layers.Dot11InformationElementIDDSSet:
			if !haveChannel && n > 0 {
				el.channel = strconv.Itoa(int(info[0]))
				haveChannel = true
			}
		case layers.Dot11InformationElementIDRSNInfo:
			el.rsn = true
		case layers.Dot11InformationElementIDVendor:
			if bytes.HasPrefix(info, wpaVendorPrefix) {
				el.wpa = true
			}
		}
	}
	if !haveSSID {
		el.essid = wifi.HiddenESSID
	}
	return el
}

// sanitizeESSID drops invalid UTF-8 and non-printable runes.
func sanitizeESSID(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return wifi.HiddenESSID
	}
	return s
}

// privacyAdvertised reports the protected bit of the frame control field or
// the Privacy bit of a beacon / probe response capability field.
func privacyAdvertised(packet gopacket.Packet, dot11 *layers.Dot11) bool {
	if dot11.Flags.WEP() {
		return true
	}
	if beacon, ok := packet.Layer(layers.LayerTypeDot11MgmtBeacon).(*layers.Dot11MgmtBeacon); ok {
		return beacon.Flags&capabilityPrivacy != 0
	}
	if resp, ok := packet.Layer(layers.LayerTypeDot11MgmtProbeResp).(*layers.Dot11MgmtProbeResp); ok {
		return resp.Flags&capabilityPrivacy != 0
	}
	return false
}
