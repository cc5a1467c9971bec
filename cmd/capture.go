package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/wifibear/capvault/internal/capture"
)

// parseCmd decodes a capture without touching the registry.
func parseCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Decode a capture file and print what it contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := g.decoder().ParseFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, ds)
			}

			printf(cmd, "  %s: %d frames (%d beacons, %d EAPOL, %d undecodable)\n\n",
				ds.Source, ds.TotalPackets, ds.TotalBeacons, ds.EAPOLFrames, ds.SkippedFrames)

			printf(cmd, "  %-19s %-24s %3s %-9s %8s\n", "BSSID", "ESSID", "CH", "ENC", "BEACONS")
			for _, bssid := range ds.BSSIDs() {
				ap := ds.AccessPoints[bssid]
				printf(cmd, "  %-19s %-24s %3s %-9s %8d\n",
					bssid, clip(displayESSID(ap.ESSID), 24), ap.Channel, ap.Encryption, ap.Beacons)
			}

			if macs := ds.StationMACs(); len(macs) > 0 {
				printf(cmd, "\n  %-19s %-19s %8s %s\n", "STATION", "BSSID", "PACKETS", "PROBES")
				for _, mac := range macs {
					st := ds.Stations[mac]
					printf(cmd, "  %-19s %-19s %8d %s\n",
						mac, orDash(st.AssociatedBSSID), st.Packets, strings.Join(st.ProbedESSIDs, ","))
				}
			}

			printf(cmd, "\n  Handshakes (%d)\n", len(ds.Handshakes))
			for _, h := range ds.Handshakes {
				printf(cmd, "    %-19s %-26s client %-17s %d EAPOL from frame %d\n",
					h.BSSID, h.Kind, orDash(h.ClientMAC), h.EAPOLFrames, h.PacketIndex)
				if h.PMKID != "" {
					printf(cmd, "      pmkid %s\n", h.PMKID)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decoded dataset as JSON")
	return cmd
}

// stripCmd writes a handshake-only copy of a capture.
func stripCmd() *cobra.Command {
	var bssid string
	cmd := &cobra.Command{
		Use:   "strip IN OUT",
		Short: "Write only the beacons and EAPOL frames of a capture to a new pcap",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kept, err := capture.StripFile(cmd.Context(), args[0], args[1], bssid)
			if err != nil {
				return err
			}
			printf(cmd, "  wrote %d frames to %s\n", kept, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&bssid, "bssid", "", "Keep only frames for this BSSID")
	return cmd
}
