package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wifibear/capvault/internal/airodump"
	"github.com/wifibear/capvault/internal/export"
	"github.com/wifibear/capvault/pkg/wifi"
)

// exportCmd groups the snapshot writers.
func exportCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the registry to other formats",
	}
	cmd.AddCommand(exportSQLiteCmd(g))
	cmd.AddCommand(exportHashcatCmd(g))
	return cmd
}

func exportSQLiteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sqlite OUT",
		Short: "Write the registry to a SQLite database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			snap := store.Snapshot()
			if err := export.WriteSQLite(cmd.Context(), args[0], snap); err != nil {
				return err
			}
			printf(cmd, "  wrote %d BSSIDs, %d stations, %d captures to %s\n",
				len(snap.BSSIDs), len(snap.Stations), len(snap.Pcaps), args[0])
			return nil
		},
	}
}

func exportHashcatCmd(g *globals) *cobra.Command {
	var legacy bool
	var bssid string
	cmd := &cobra.Command{
		Use:   "hashcat OUT",
		Short: "Write PMKID captures as hashcat lines (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}

			var captures []wifi.HandshakeCapture
			if bssid != "" {
				key, err := wifi.CanonicalMAC(bssid)
				if err != nil {
					return err
				}
				captures = store.AnalysisForBSSID(key)
			} else {
				for _, key := range store.KnownBSSIDs() {
					captures = append(captures, store.AnalysisForBSSID(key)...)
				}
			}

			if args[0] == "-" {
				_, err := export.WritePMKIDHashes(cmd.OutOrStdout(), captures, legacy)
				return err
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			n, err := export.WritePMKIDHashes(f, captures, legacy)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			printf(cmd, "  wrote %d PMKID hashes to %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&legacy, "legacy", false, "Use the old pmkid*ap*sta*essid format (mode 16800)")
	cmd.Flags().StringVar(&bssid, "bssid", "", "Only export captures of this BSSID")
	return cmd
}

// importCSVCmd merges airodump-ng scan results.
func importCSVCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import-csv FILE...",
		Short: "Merge airodump-ng CSV scan results into the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				scan, err := airodump.ParseFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := store.UpdateFromScan(scan.AccessPoints, scan.Stations, info.ModTime()); err != nil {
					return err
				}
				printf(cmd, "  %s: %d access points, %d stations", path, len(scan.AccessPoints), len(scan.Stations))
				if scan.Skipped > 0 {
					printf(cmd, " (%d rows skipped)", scan.Skipped)
				}
				printf(cmd, "\n")
			}
			return nil
		},
	}
}
