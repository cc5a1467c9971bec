package wifi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	EAPOLKeyTypeRC4      = 1
	EAPOLKeyTypeAES      = 2
	EAPOLVersion1        = 1
	EAPOLVersion2        = 2
	EAPOLTypeKey         = 3
	EAPOLKeyInfoPairwise = 0x0008
	EAPOLKeyInfoInstall  = 0x0040
	EAPOLKeyInfoACK      = 0x0080
	EAPOLKeyInfoMIC      = 0x0100
	EAPOLKeyInfoSecure   = 0x0200

	// eapolKeyHeaderLen covers the EAPOL header plus the fixed key descriptor fields.
	eapolKeyHeaderLen = 99
	pmkidLen          = 16
)

// EAPOLKeyFrame is a decoded EAPOL-Key frame, header included.
type EAPOLKeyFrame struct {
	Version        uint8
	Type           uint8
	Length         uint16
	DescriptorType uint8
	KeyInfo        uint16
	KeyLength      uint16
	ReplayCounter  uint64
	Nonce          [32]byte
	IV             [16]byte
	RSC            [8]byte
	ID             [8]byte
	MIC            [16]byte
	DataLength     uint16
	Data           []byte
}

type HandshakeMessage int

const (
	HandshakeMsgUnknown HandshakeMessage = 0
	HandshakeMsg1       HandshakeMessage = 1
	HandshakeMsg2       HandshakeMessage = 2
	HandshakeMsg3       HandshakeMessage = 3
	HandshakeMsg4       HandshakeMessage = 4
)

func (h HandshakeMessage) String() string {
	switch h {
	case HandshakeMsg1:
		return "M1"
	case HandshakeMsg2:
		return "M2"
	case HandshakeMsg3:
		return "M3"
	case HandshakeMsg4:
		return "M4"
	default:
		return "Unknown"
	}
}

// ParseEAPOLKeyFrame decodes a full EAPOL frame (4-byte header included)
// carrying a key descriptor. Key data is bounded by the declared data length.
func ParseEAPOLKeyFrame(data []byte) (*EAPOLKeyFrame, error) {
	if len(data) < eapolKeyHeaderLen {
		return nil, fmt.Errorf("EAPOL key frame too short: %d bytes", len(data))
	}
	if data[1] != EAPOLTypeKey {
		return nil, fmt.Errorf("EAPOL packet type %d is not a key frame", data[1])
	}

	frame := &EAPOLKeyFrame{
		Version:        data[0],
		Type:           data[1],
		Length:         binary.BigEndian.Uint16(data[2:4]),
		DescriptorType: data[4],
		KeyInfo:        binary.BigEndian.Uint16(data[5:7]),
		KeyLength:      binary.BigEndian.Uint16(data[7:9]),
		ReplayCounter:  binary.BigEndian.Uint64(data[9:17]),
	}

	copy(frame.Nonce[:], data[17:49])
	copy(frame.IV[:], data[49:65])
	copy(frame.RSC[:], data[65:73])
	copy(frame.ID[:], data[73:81])
	copy(frame.MIC[:], data[81:97])

	frame.DataLength = binary.BigEndian.Uint16(data[97:99])
	if rest := data[eapolKeyHeaderLen:]; len(rest) > 0 {
		if int(frame.DataLength) < len(rest) {
			rest = rest[:frame.DataLength]
		}
		frame.Data = rest
	}

	return frame, nil
}

func (f *EAPOLKeyFrame) MessageNumber() HandshakeMessage {
	hasACK := f.KeyInfo&EAPOLKeyInfoACK != 0
	hasMIC := f.KeyInfo&EAPOLKeyInfoMIC != 0
	hasInstall := f.KeyInfo&EAPOLKeyInfoInstall != 0
	hasSecure := f.KeyInfo&EAPOLKeyInfoSecure != 0

	isNonceZero := true
	for _, b := range f.Nonce {
		if b != 0 {
			isNonceZero = false
			break
		}
	}

	switch {
	case hasACK && !hasMIC && !hasInstall:
		return HandshakeMsg1
	case !hasACK && hasMIC && !hasInstall && !isNonceZero:
		return HandshakeMsg2
	case hasACK && hasMIC && hasInstall && hasSecure:
		return HandshakeMsg3
	case !hasACK && hasMIC && !hasInstall && hasSecure && isNonceZero:
		return HandshakeMsg4
	default:
		return HandshakeMsgUnknown
	}
}

// PMKID returns the hex PMKID carried in the key data, if any. The key info
// must have the MIC or ACK bit set; M1 frames carry the PMKID with ACK only.
func (f *EAPOLKeyFrame) PMKID() (string, bool) {
	if f.KeyInfo&(EAPOLKeyInfoMIC|EAPOLKeyInfoACK) == 0 {
		return "", false
	}
	return ExtractPMKID(f.Data)
}

// ExtractPMKID reads a PMKID from EAPOL key data that is at least 20 bytes
// long and opens with 0x00 0x00. The PMKID sits at [4:20].
func ExtractPMKID(keyData []byte) (string, bool) {
	if len(keyData) < 4+pmkidLen || keyData[0] != 0x00 || keyData[1] != 0x00 {
		return "", false
	}
	return hex.EncodeToString(keyData[4 : 4+pmkidLen]), true
}
