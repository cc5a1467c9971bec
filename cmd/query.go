package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wifibear/capvault/internal/filter"
	"github.com/wifibear/capvault/pkg/wifi"
	"github.com/wifibear/capvault/ui"
)

// apsCmd lists recorded access points.
func apsCmd(g *globals) *cobra.Command {
	var expr string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "aps",
		Short: "List every access point ever observed",
		Example: `  capvault aps --filter 'encryption == "WPA2" && beacons > 100'
  capvault aps --filter 'essid contains "Cafe" || "Cafe" in history'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := filter.CompileAccessPoints(expr)
			if err != nil {
				return err
			}
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			all := store.AllBSSIDs()
			var aps []wifi.AccessPoint
			for _, bssid := range store.KnownBSSIDs() {
				if ap := all[bssid]; match(ap) {
					aps = append(aps, ap)
				}
			}
			if asJSON {
				return writeJSON(cmd, aps)
			}

			printf(cmd, "  %-4s %-24s %-19s %3s %-9s %8s %8s %s\n",
				"#", "ESSID", "BSSID", "CH", "ENC", "BEACONS", "PACKETS", "LAST SEEN")
			for i, ap := range aps {
				printf(cmd, "  %-4d %-24s %-19s %3s %-9s %8d %8d %s\n",
					i+1, clip(displayESSID(ap.ESSID), 24), ap.BSSID, ap.Channel,
					ap.Encryption, ap.Beacons, ap.Packets, ago(ap.LastSeen))
			}
			printf(cmd, "\n  %d of %d access points\n", len(aps), len(all))
			return nil
		},
	}
	cmd.Flags().StringVar(&expr, "filter", "", "Filter expression over bssid, essid, history, channel, encryption, packets, beacons, hidden, first_seen, last_seen, age")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// stationsCmd lists recorded client stations.
func stationsCmd(g *globals) *cobra.Command {
	var expr string
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "stations",
		Short:   "List every client station ever observed",
		Example: `  capvault stations --filter '"Airport" in probes && !associated'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := filter.CompileStations(expr)
			if err != nil {
				return err
			}
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			all := store.AllStations()
			var stations []wifi.Station
			for _, mac := range store.KnownStations() {
				if st := all[mac]; match(st) {
					stations = append(stations, st)
				}
			}
			if asJSON {
				return writeJSON(cmd, stations)
			}

			printf(cmd, "  %-4s %-19s %-19s %8s %-30s %s\n",
				"#", "STATION", "BSSID", "PACKETS", "PROBES", "LAST SEEN")
			for i, st := range stations {
				assoc := st.AssociatedBSSID
				if assoc == "" {
					assoc = "(not associated)"
				}
				printf(cmd, "  %-4d %-19s %-19s %8d %-30s %s\n",
					i+1, st.MAC, assoc, st.Packets, clip(st.ProbedESSIDs, 30), ago(st.LastSeen))
			}
			printf(cmd, "\n  %d of %d stations\n", len(stations), len(all))
			return nil
		},
	}
	cmd.Flags().StringVar(&expr, "filter", "", "Filter expression over mac, bssid, associated, probes, packets, first_seen, last_seen, age")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// pcapsCmd lists archived captures.
func pcapsCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "pcaps",
		Short: "List archived captures, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			recs := store.PcapRecords()
			names := make([]string, 0, len(recs))
			for name := range recs {
				names = append(names, name)
			}
			slices.SortFunc(names, func(a, b string) int {
				if c := recs[a].Created.Compare(recs[b].Created); c != 0 {
					return c
				}
				return strings.Compare(a, b)
			})
			if asJSON {
				out := make([]any, 0, len(names))
				for _, n := range names {
					out = append(out, recs[n])
				}
				return writeJSON(cmd, out)
			}

			printf(cmd, "  %-46s %-19s %9s %-10s %s\n", "FILE", "BSSID", "SIZE", "HANDSHAKES", "CREATED")
			var total int64
			for _, n := range names {
				e := recs[n]
				total += e.Size
				hs := "-"
				if e.Analyzed {
					hs = fmt.Sprint(len(e.Analysis))
				}
				printf(cmd, "  %-46s %-19s %9s %-10s %s\n",
					clip(n, 46), e.BSSID, humanize.IBytes(uint64(e.Size)), hs, ago(e.Created))
			}
			printf(cmd, "\n  %d captures, %s\n", len(names), humanize.IBytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// showCmd prints everything known about one MAC address.
func showCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show MAC",
		Short: "Show the history of one BSSID or station",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mac, err := wifi.CanonicalMAC(args[0])
			if err != nil {
				return err
			}
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			ap, isAP := store.BSSIDHistory(mac)
			st, isStation := store.StationHistory(mac)
			if !isAP && !isStation {
				return fmt.Errorf("%s has never been observed", mac)
			}
			handshakes := store.AnalysisForBSSID(mac)

			if asJSON {
				out := map[string]any{"mac": mac}
				if isAP {
					out["access_point"] = ap
					out["handshakes"] = handshakes
				}
				if isStation {
					out["station"] = st
				}
				return writeJSON(cmd, out)
			}

			if first, ok := store.FirstSeen(mac); ok {
				printf(cmd, "  %s first seen %s (%s)\n\n", mac, first.Local().Format(time.DateTime), ago(first))
			}
			if isAP {
				printf(cmd, "  Access point\n")
				printf(cmd, "    ESSID        %s\n", displayESSID(ap.ESSID))
				if len(ap.ESSIDHistory) > 0 {
					printf(cmd, "    History      %s\n", strings.Join(ap.ESSIDHistory, ", "))
				}
				printf(cmd, "    Channel      %s\n", ap.Channel)
				printf(cmd, "    Encryption   %s\n", ap.Encryption)
				printf(cmd, "    Beacons      %s\n", humanize.Comma(int64(ap.Beacons)))
				printf(cmd, "    Packets      %s\n", humanize.Comma(int64(ap.Packets)))
				printf(cmd, "    Last seen    %s\n", ago(ap.LastSeen))
				printf(cmd, "\n  Handshakes (%d)\n", len(handshakes))
				for _, h := range handshakes {
					printf(cmd, "    %-26s client %-17s %d EAPOL %s  %s\n",
						h.Kind, orDash(h.ClientMAC), h.EAPOLFrames, strings.Join(h.Messages, ","), h.SourceFile)
					if h.PMKID != "" {
						printf(cmd, "      pmkid %s\n", h.PMKID)
					}
				}
			}
			if isStation {
				if isAP {
					printf(cmd, "\n")
				}
				printf(cmd, "  Station\n")
				printf(cmd, "    Associated   %s\n", orDash(st.AssociatedBSSID))
				printf(cmd, "    Probes       %s\n", orDash(st.ProbedESSIDs))
				printf(cmd, "    Packets      %s\n", humanize.Comma(int64(st.Packets)))
				printf(cmd, "    Last seen    %s\n", ago(st.LastSeen))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// statsCmd summarises the registry.
func statsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the registry and archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			st := store.Stats()
			printf(cmd, "  Registry     %s\n", g.cfg.RegistryPath())
			printf(cmd, "  Archive      %s\n", store.ArchiveDir())
			printf(cmd, "  BSSIDs       %d\n", st.BSSIDs)
			printf(cmd, "  Stations     %d\n", st.Stations)
			printf(cmd, "  Captures     %d (%d analysed, %s)\n", st.Pcaps, st.Analyzed, humanize.IBytes(uint64(st.ArchiveBytes)))
			printf(cmd, "  Handshakes   %d (%d complete, %d PMKID)\n", st.Handshakes, st.Complete, st.PMKIDs)
			if quota, err := g.cfg.QuotaBytes(); err == nil && quota > 0 {
				printf(cmd, "  Quota        %s\n", humanize.IBytes(uint64(quota)))
			}
			printf(cmd, "  Last saved   %s\n", ago(st.LastSaved))
			return nil
		},
	}
}

// historyCmd opens the interactive browser.
func historyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Browse the network history interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			return ui.Run(ui.NewApp(store))
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func displayESSID(essid string) string {
	if essid == "" || essid == wifi.HiddenESSID {
		return "<hidden>"
	}
	return essid
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-2] + ".."
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
