// Package capturetest builds raw 802.11 frames and capture files for tests.
package capturetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Start is the timestamp of the first frame written by the helpers.
var Start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

const (
	fcBeacon    = 0x80
	fcProbeReq  = 0x40
	fcProbeResp = 0x50
	fcData      = 0x08

	flagToDS   = 0x01
	flagFromDS = 0x02
)

// MAC parses s and panics on failure.
func MAC(s string) net.HardwareAddr {
	hw, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return hw
}

// IE is a raw information element.
type IE struct {
	ID   byte
	Data []byte
}

func SSID(name string) IE { return IE{ID: 0, Data: []byte(name)} }

func Channel(ch byte) IE { return IE{ID: 3, Data: []byte{ch}} }

// RSN is a WPA2-PSK CCMP RSN element.
func RSN() IE {
	return IE{ID: 48, Data: []byte{
		0x01, 0x00,
		0x00, 0x0f, 0xac, 0x04,
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x04,
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x02,
		0x00, 0x00,
	}}
}

// WPA is the legacy WPA vendor element.
func WPA() IE {
	return IE{ID: 221, Data: []byte{
		0x00, 0x50, 0xf2, 0x01,
		0x01, 0x00,
		0x00, 0x50, 0xf2, 0x02,
		0x01, 0x00, 0x00, 0x50, 0xf2, 0x02,
		0x01, 0x00, 0x00, 0x50, 0xf2, 0x02,
	}}
}

// WPS is a WPS vendor element, which is not WPA.
func WPS() IE {
	return IE{ID: 221, Data: []byte{0x00, 0x50, 0xf2, 0x04, 0x10, 0x4a, 0x00, 0x01, 0x10}}
}

func header(fc, flags byte, a1, a2, a3 net.HardwareAddr) []byte {
	b := []byte{fc, flags, 0x00, 0x00}
	b = append(b, a1...)
	b = append(b, a2...)
	b = append(b, a3...)
	return append(b, 0x10, 0x00)
}

func appendIEs(b []byte, ies []IE) []byte {
	for _, ie := range ies {
		b = append(b, ie.ID, byte(len(ie.Data)))
		b = append(b, ie.Data...)
	}
	return b
}

func withFCS(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, crc32.ChecksumIEEE(b))
}

func fixedFields(privacy bool) []byte {
	capability := uint16(0x0001)
	if privacy {
		capability |= 0x0010
	}
	b := make([]byte, 8)
	b = binary.LittleEndian.AppendUint16(b, 100)
	return binary.LittleEndian.AppendUint16(b, capability)
}

// Beacon builds a beacon frame from bssid.
func Beacon(bssid net.HardwareAddr, privacy bool, ies ...IE) []byte {
	b := header(fcBeacon, 0, broadcast, bssid, bssid)
	b = append(b, fixedFields(privacy)...)
	return withFCS(appendIEs(b, ies))
}

// ProbeResponse builds a probe response from bssid to dst.
func ProbeResponse(bssid, dst net.HardwareAddr, privacy bool, ies ...IE) []byte {
	b := header(fcProbeResp, 0, dst, bssid, bssid)
	b = append(b, fixedFields(privacy)...)
	return withFCS(appendIEs(b, ies))
}

// ProbeRequest builds a broadcast probe request from src.
func ProbeRequest(src net.HardwareAddr, ssid string) []byte {
	b := header(fcProbeReq, 0, broadcast, src, broadcast)
	return withFCS(appendIEs(b, []IE{SSID(ssid)}))
}

var llcSNAPEAPOL = []byte{0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00, 0x88, 0x8e}

// Data builds a data frame from client to the AP, or from the AP to client
// when fromAP is set, carrying payload after an LLC/SNAP header of ethertype.
func Data(bssid, client net.HardwareAddr, fromAP bool, ethertype uint16, payload []byte) []byte {
	var b []byte
	if fromAP {
		b = header(fcData, flagFromDS, client, bssid, bssid)
	} else {
		b = header(fcData, flagToDS, bssid, client, bssid)
	}
	b = append(b, 0xaa, 0xaa, 0x03, 0x00, 0x00, 0x00)
	b = binary.BigEndian.AppendUint16(b, ethertype)
	return withFCS(append(b, payload...))
}

// EAPOLData wraps an EAPOL frame in a data frame.
func EAPOLData(bssid, client net.HardwareAddr, fromAP bool, eapol []byte) []byte {
	return Data(bssid, client, fromAP, 0x888e, eapol)
}

// Key info values of the four handshake messages.
const (
	KeyInfoM1 uint16 = 0x008a
	KeyInfoM2 uint16 = 0x010a
	KeyInfoM3 uint16 = 0x13ca
	KeyInfoM4 uint16 = 0x030a
)

// EAPOLKey builds an EAPOL-Key frame. A zero nonce byte leaves the nonce zeroed.
func EAPOLKey(keyInfo uint16, nonce byte, keyData []byte) []byte {
	body := []byte{0x02}
	body = binary.BigEndian.AppendUint16(body, keyInfo)
	body = binary.BigEndian.AppendUint16(body, 16)
	body = append(body, make([]byte, 8)...)
	body = append(body, bytes.Repeat([]byte{nonce}, 32)...)
	body = append(body, make([]byte, 16+8+8)...)
	if keyInfo&0x0100 != 0 {
		body = append(body, bytes.Repeat([]byte{0x5a}, 16)...)
	} else {
		body = append(body, make([]byte, 16)...)
	}
	body = binary.BigEndian.AppendUint16(body, uint16(len(keyData)))
	body = append(body, keyData...)

	frame := []byte{0x02, 0x03}
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(body)))
	return append(frame, body...)
}

// PMKIDKeyData is key data carrying pmkid in the 00 00 prefixed layout.
func PMKIDKeyData(pmkid []byte) []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x00}, pmkid...)
}

// PMKIDKDE is key data carrying pmkid as a standard RSN KDE.
func PMKIDKDE(pmkid []byte) []byte {
	return append([]byte{0xdd, 0x14, 0x00, 0x0f, 0xac, 0x04}, pmkid...)
}

// Handshake builds the four EAPOL messages between bssid and client.
// A non-nil pmkid is carried in the key data of M1.
func Handshake(bssid, client net.HardwareAddr, pmkid []byte) [][]byte {
	var m1Data []byte
	if pmkid != nil {
		m1Data = PMKIDKeyData(pmkid)
	}
	return [][]byte{
		EAPOLData(bssid, client, true, EAPOLKey(KeyInfoM1, 0x11, m1Data)),
		EAPOLData(bssid, client, false, EAPOLKey(KeyInfoM2, 0x22, bytes.Repeat([]byte{0x30}, 22))),
		EAPOLData(bssid, client, true, EAPOLKey(KeyInfoM3, 0x11, bytes.Repeat([]byte{0x40}, 56))),
		EAPOLData(bssid, client, false, EAPOLKey(KeyInfoM4, 0x00, nil)),
	}
}

// Pcap encodes frames as a classic pcap with raw 802.11 link type, one
// second apart from Start.
func Pcap(tb testing.TB, frames ...[]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeIEEE802_11); err != nil {
		tb.Fatalf("write pcap header: %v", err)
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     Start.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			tb.Fatalf("write frame %d: %v", i, err)
		}
	}
	return buf.Bytes()
}

// PcapNG encodes frames as pcapng with raw 802.11 link type.
func PcapNG(tb testing.TB, frames ...[]byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeIEEE802_11)
	if err != nil {
		tb.Fatalf("create pcapng writer: %v", err)
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     Start.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			tb.Fatalf("write frame %d: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		tb.Fatalf("flush pcapng: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes a classic pcap of frames to path.
func WriteFile(tb testing.TB, path string, frames ...[]byte) {
	tb.Helper()
	if err := os.WriteFile(path, Pcap(tb, frames...), 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}
