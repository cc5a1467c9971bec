package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ingestCmd copies captures into the archive.
func ingestCmd(g *globals) *cobra.Command {
	var bssid string
	var noAnalyze bool
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Copy capture files into the archive and analyse them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			for _, src := range args {
				path, err := store.IngestPcap(cmd.Context(), src, bssid, !noAnalyze)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", src, err))
					continue
				}
				printf(cmd, "  %s -> %s\n", src, filepath.Base(path))
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&bssid, "bssid", "", "BSSID the captures target")
	cmd.Flags().BoolVar(&noAnalyze, "no-analyze", false, "Archive without decoding")
	return cmd
}

// registerCmd tracks a file already placed in the archive directory.
func registerCmd(g *globals) *cobra.Command {
	var bssid, created string
	var noAnalyze bool
	cmd := &cobra.Command{
		Use:   "register FILE",
		Short: "Register a capture that is already inside the archive directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if created != "" {
				t, err := time.Parse(time.RFC3339, created)
				if err != nil {
					return fmt.Errorf("invalid --created: %w", err)
				}
				at = t
			}
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			if err := store.RegisterExisting(cmd.Context(), args[0], bssid, 0, at, !noAnalyze); err != nil {
				return err
			}
			rec := store.PcapRecords()[filepath.Base(args[0])]
			printf(cmd, "  registered %s (%s, %s)\n", rec.Filename, rec.BSSID, humanize.IBytes(uint64(rec.Size)))
			return nil
		},
	}
	cmd.Flags().StringVar(&bssid, "bssid", "", "BSSID the capture targets")
	cmd.Flags().StringVar(&created, "created", "", "Creation time (RFC 3339, default file mtime)")
	cmd.Flags().BoolVar(&noAnalyze, "no-analyze", false, "Register without decoding")
	return cmd
}

// syncCmd reconciles the registry with the archive directory.
func syncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the registry with the archive directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			res, err := store.Sync(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range res.Added {
				printf(cmd, "  + %s\n", name)
			}
			for _, name := range res.Removed {
				printf(cmd, "  - %s\n", name)
			}
			st := store.Stats()
			printf(cmd, "  %d captures tracked (%s)\n", st.Pcaps, humanize.IBytes(uint64(st.ArchiveBytes)))
			return nil
		},
	}
}

// pruneCmd enforces the archive quota.
func pruneCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete the oldest captures until the archive fits the quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.loadStore()
			if err != nil {
				return err
			}
			res, err := store.EnforceQuota()
			if err != nil {
				return err
			}
			for _, name := range res.Removed {
				printf(cmd, "  pruned %s\n", name)
			}
			printf(cmd, "  freed %s, archive now %s\n",
				humanize.IBytes(uint64(res.FreedBytes)), humanize.IBytes(uint64(res.TotalBytes)))
			return nil
		},
	}
}

// reanalyzeCmd decodes every archived capture again.
func reanalyzeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reanalyze",
		Short: "Decode every archived capture again and refresh its analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := g.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.Reanalyze(cmd.Context()); err != nil {
				return err
			}
			st := store.Stats()
			printf(cmd, "  %d of %d captures analysed, %d handshakes (%d complete, %d PMKID)\n",
				st.Analyzed, st.Pcaps, st.Handshakes, st.Complete, st.PMKIDs)
			return nil
		},
	}
}
