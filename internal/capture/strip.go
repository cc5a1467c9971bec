package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/wifibear/capvault/pkg/wifi"
)

const stripSnapLen = 65536

// Strip copies the handshake-relevant frames for bssid from in to out as a
// classic pcap: beacons, probe responses and EAPOL frames. An empty bssid
// keeps those frames for every network. It returns the number of frames written.
func Strip(ctx context.Context, in io.Reader, out io.Writer, bssid string) (int, error) {
	if bssid != "" {
		canonical, err := wifi.CanonicalMAC(bssid)
		if err != nil {
			return 0, err
		}
		bssid = canonical
	}

	src, err := openFrames(bufio.NewReaderSize(in, 64*1024))
	if err != nil {
		return 0, err
	}

	writer := pcapgo.NewWriter(out)
	if err := writer.WriteFileHeader(stripSnapLen, src.LinkType()); err != nil {
		return 0, fmt.Errorf("write pcap header: %w", err)
	}

	kept := 0
	for index := 0; ; index++ {
		if index%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return kept, err
			}
		}
		data, ci, err := src.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return kept, fmt.Errorf("read frame %d: %w", index, err)
		}
		if !keepForStrip(data, src.LinkType(), bssid) {
			continue
		}
		ci.CaptureLength = len(data)
		if ci.Length < ci.CaptureLength {
			ci.Length = ci.CaptureLength
		}
		if err := writer.WritePacket(ci, data); err != nil {
			return kept, fmt.Errorf("write frame %d: %w", index, err)
		}
		kept++
	}
	return kept, nil
}

// StripFile is Strip over file paths. The output file is replaced.
func StripFile(ctx context.Context, inputFile, outputFile, bssid string) (int, error) {
	in, err := os.Open(inputFile)
	if err != nil {
		return 0, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	outFile, err := os.Create(outputFile)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}

	bw := bufio.NewWriter(outFile)
	kept, err := Strip(ctx, in, bw, bssid)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputFile)
		return 0, err
	}
	return kept, nil
}

func keepForStrip(data []byte, lt layers.LinkType, bssid string) bool {
	decoded := data
	if lt == layers.LinkTypeIEEE802_11 {
		decoded = withFCS(data)
	}
	packet := gopacket.NewPacket(decoded, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	dot11, ok := packet.Layer(layers.LayerTypeDot11).(*layers.Dot11)
	if !ok {
		return false
	}

	isBeacon := dot11.Type == layers.Dot11TypeMgmtBeacon || dot11.Type == layers.Dot11TypeMgmtProbeResp
	isEAPOL := packet.Layer(layers.LayerTypeEAPOL) != nil
	if !isBeacon && !isEAPOL {
		return false
	}
	if bssid == "" {
		return true
	}
	return !wifi.IsGroup(dot11.Address3) && wifi.FormatMAC(dot11.Address3) == bssid
}
