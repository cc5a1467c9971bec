// Package capture decodes 802.11 capture files into per-file datasets of
// access points, stations and authentication artifacts.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"log"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/wifibear/capvault/pkg/wifi"
)

var (
	ErrFileNotFound         = errors.New("capture file not found")
	ErrEmptyFile            = errors.New("capture file is empty")
	ErrUnsupportedContainer = errors.New("unsupported capture container")
)

// cancelCheckInterval is how many frames are decoded between context checks.
const cancelCheckInterval = 1024

var (
	pcapMagics = [][]byte{
		{0xd4, 0xc3, 0xb2, 0xa1},
		{0xa1, 0xb2, 0xc3, 0xd4},
		{0x4d, 0x3c, 0xb2, 0xa1},
		{0xa1, 0xb2, 0x3c, 0x4d},
	}
	pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

	captureExts = []string{".pcap", ".pcapng", ".cap"}
)

// HasCaptureExt reports whether name carries a capture file extension.
func HasCaptureExt(name string) bool {
	return slices.Contains(captureExts, strings.ToLower(filepath.Ext(name)))
}

// Decoder turns capture files into datasets. The zero value logs to the
// standard logger at verbosity 0.
type Decoder struct {
	Logger  *log.Logger
	Verbose int
}

// ParseFile decodes the capture at path with a default Decoder.
func ParseFile(ctx context.Context, path string) (*Dataset, error) {
	return (&Decoder{}).ParseFile(ctx, path)
}

// Parse decodes a capture stream with a default Decoder.
func Parse(ctx context.Context, r io.Reader, source string) (*Dataset, error) {
	return (&Decoder{}).Parse(ctx, r, source)
}

// ParseBytes decodes an in-memory capture with a default Decoder.
func ParseBytes(ctx context.Context, b []byte, source string) (*Dataset, error) {
	return (&Decoder{}).ParseBytes(ctx, b, source)
}

func (d *Decoder) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

func (d *Decoder) debugf(format string, args ...any) {
	if d.Verbose > 1 {
		d.logger().Printf(format, args...)
	}
}

func (d *Decoder) warnf(format string, args ...any) {
	d.logger().Printf("warn: "+format, args...)
}

// ParseFile validates and decodes the capture at path.
func (d *Decoder) ParseFile(ctx context.Context, path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat capture: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrUnsupportedContainer, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	if !HasCaptureExt(path) {
		d.warnf("%s does not have a capture file extension, decoding anyway", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	return d.Parse(ctx, f, path)
}

// ParseBytes decodes an in-memory capture.
func (d *Decoder) ParseBytes(ctx context.Context, b []byte, source string) (*Dataset, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, source)
	}
	return d.Parse(ctx, bytes.NewReader(b), source)
}

// Parse decodes a capture stream frame by frame. Frames that fail to decode
// are counted as skipped. Cancellation discards the partial dataset.
func (d *Decoder) Parse(ctx context.Context, r io.Reader, source string) (*Dataset, error) {
	src, err := openFrames(bufio.NewReaderSize(r, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	ds := newDataset(source, src.LinkType())
	hs := newHandshakeTracker()

	for index := 0; ; index++ {
		if index%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			d.warnf("%s: stopped after %d frames: %v", source, index, err)
			break
		}

		ds.TotalPackets++
		d.decodeFrame(ds, hs, index, data, ci.Timestamp)
	}

	ds.Handshakes = hs.resolve(ds)
	d.debugf("%s: %d frames, %d BSSIDs, %d stations, %d EAPOL, %d skipped",
		source, ds.TotalPackets, len(ds.AccessPoints), len(ds.Stations), ds.EAPOLFrames, ds.SkippedFrames)
	return ds, nil
}

type frameSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// openFrames picks a reader from the container magic.
func openFrames(br *bufio.Reader) (frameSource, error) {
	magic, err := br.Peek(4)
	if len(magic) == 0 {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrUnsupportedContainer)
	}

	switch {
	case slices.ContainsFunc(pcapMagics, func(m []byte) bool { return bytes.Equal(m, magic) }):
		r, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedContainer, err)
		}
		return r, nil
	case bytes.Equal(magic, pcapngMagic):
		r, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedContainer, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: magic %x", ErrUnsupportedContainer, magic)
	}
}

func (d *Decoder) decodeFrame(ds *Dataset, hs *handshakeTracker, index int, data []byte, ts time.Time) {
	if ds.LinkType == layers.LinkTypeIEEE802_11 {
		data = withFCS(data)
	}
	if ts.Unix() <= 0 {
		ts = time.Time{}
	}

	packet := gopacket.NewPacket(data, ds.LinkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		ds.SkippedFrames++
		if errLayer := packet.ErrorLayer(); errLayer != nil {
			d.debugf("%s: frame %d: %v", ds.Source, index, errLayer.Error())
		}
		return
	}

	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		ds.TotalBeacons++
		observeAccessPoint(ds, packet, dot11, index, ts, true)
	case layers.Dot11TypeMgmtProbeResp:
		observeAccessPoint(ds, packet, dot11, index, ts, false)
	case layers.Dot11TypeMgmtProbeReq:
		observeProbe(ds, dot11, index, ts)
	}

	if dot11.Type.MainType() == layers.Dot11TypeData {
		observeData(ds, dot11, index, ts)
	}

	if l := packet.Layer(layers.LayerTypeEAPOL); l != nil {
		ds.EAPOLFrames++
		frame := append(slices.Clone(l.LayerContents()), l.LayerPayload()...)
		if bssid, ok := hs.observe(index, dot11, frame); ok {
			ds.eapolAccessPoint(bssid, index, ts)
		}
	}
}

func observeAccessPoint(ds *Dataset, packet gopacket.Packet, dot11 *layers.Dot11, index int, ts time.Time, beacon bool) {
	if wifi.IsGroup(dot11.Address3) {
		return
	}
	el := readElements(managementElements(dot11))
	ap := ds.accessPoint(wifi.FormatMAC(dot11.Address3), index, ts)

	if ap.ESSID == wifi.HiddenESSID && el.essid != wifi.HiddenESSID {
		ap.ESSID = el.essid
	}
	if ap.Channel == "" {
		ap.Channel = el.channel
	}
	if ap.Encryption == "" {
		ap.Encryption = wifi.EncryptionLabel(el.rsn, el.wpa, privacyAdvertised(packet, dot11))
	}
	ap.Packets++
	if beacon {
		ap.Beacons++
	}
}

func observeProbe(ds *Dataset, dot11 *layers.Dot11, index int, ts time.Time) {
	if wifi.IsGroup(dot11.Address2) {
		return
	}
	st := ds.station(wifi.FormatMAC(dot11.Address2), index, ts)
	st.Packets++
	if el := readElements(managementElements(dot11)); el.essid != wifi.HiddenESSID && !slices.Contains(st.ProbedESSIDs, el.essid) {
		st.ProbedESSIDs = append(st.ProbedESSIDs, el.essid)
	}
}

func observeData(ds *Dataset, dot11 *layers.Dot11, index int, ts time.Time) {
	client, bssid := dataAddresses(dot11)
	if wifi.IsGroup(client) {
		return
	}
	mac := wifi.FormatMAC(client)
	if !wifi.IsGroup(bssid) && wifi.FormatMAC(bssid) == mac {
		return
	}
	st := ds.station(mac, index, ts)
	if !wifi.IsGroup(bssid) {
		st.AssociatedBSSID = wifi.FormatMAC(bssid)
	}
	st.Packets++
}

// dataAddresses determines client and BSSID from the DS bits. Frames
// between distribution systems carry neither.
func dataAddresses(dot11 *layers.Dot11) (client, bssid net.HardwareAddr) {
	switch {
	case dot11.Flags.ToDS() && !dot11.Flags.FromDS():
		return dot11.Address2, dot11.Address1
	case !dot11.Flags.ToDS() && dot11.Flags.FromDS():
		return dot11.Address1, dot11.Address2
	case !dot11.Flags.ToDS() && !dot11.Flags.FromDS():
		return dot11.Address2, dot11.Address3
	default:
		return nil, nil
	}
}

// withFCS appends a frame check sequence when the frame does not end in a
// valid one. The gopacket Dot11 decoder always strips four trailing bytes.
func withFCS(data []byte) []byte {
	if n := len(data); n > 4 && crc32.ChecksumIEEE(data[:n-4]) == binary.LittleEndian.Uint32(data[n-4:]) {
		return data
	}
	out := make([]byte, len(data)+4)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[len(data):], crc32.ChecksumIEEE(data))
	return out
}
