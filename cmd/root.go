package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wifibear/capvault/internal/capture"
	"github.com/wifibear/capvault/internal/config"
	"github.com/wifibear/capvault/internal/registry"
)

const banner = `
   ___ __ _ _ ____ ____ _ _   _| |_
  / __/ _' | '_ \ \ / / _' | | | | __|
 | (_| (_| | |_) \ V / (_| | |_| | |_
  \___\__,_| .__/ \_/ \__,_|\__,_|\__|
           |_|
`

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	cfg        *config.Config
	configFile string
	dir        string
	archiveDir string
	registry   string
	quota      string
	verbose    int

	stderr io.Writer
}

func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	g := &globals{cfg: config.DefaultConfig(), stderr: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "capvault",
		Short: "Archive, analyse and query 802.11 captures",
		Long:  banner + "\n  capvault v" + version + " - capture archive and network history\n",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.stderr = cmd.ErrOrStderr()
			return g.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	f := rootCmd.PersistentFlags()
	f.StringVar(&g.configFile, "config", "", "Config file (default <dir>/config.yaml)")
	f.StringVar(&g.dir, "dir", g.cfg.Storage.Dir, "Base data directory")
	f.StringVar(&g.archiveDir, "archive-dir", "", "Capture archive directory (default <dir>/pcaps)")
	f.StringVar(&g.registry, "registry", "", "Registry file (default <dir>/network_history.json)")
	f.StringVar(&g.quota, "quota", "", "Archive size quota, e.g. 10GB (0 disables)")
	f.IntVarP(&g.verbose, "verbose", "v", g.cfg.Output.Verbose, "Verbosity level (0-2)")

	// Archive management
	rootCmd.AddCommand(ingestCmd(g))
	rootCmd.AddCommand(registerCmd(g))
	rootCmd.AddCommand(syncCmd(g))
	rootCmd.AddCommand(pruneCmd(g))
	rootCmd.AddCommand(reanalyzeCmd(g))

	// Queries
	rootCmd.AddCommand(apsCmd(g))
	rootCmd.AddCommand(stationsCmd(g))
	rootCmd.AddCommand(pcapsCmd(g))
	rootCmd.AddCommand(showCmd(g))
	rootCmd.AddCommand(statsCmd(g))
	rootCmd.AddCommand(historyCmd(g))

	// Capture tools
	rootCmd.AddCommand(parseCmd(g))
	rootCmd.AddCommand(stripCmd())

	// Import and export
	rootCmd.AddCommand(exportCmd(g))
	rootCmd.AddCommand(importCSVCmd(g))

	return rootCmd
}

// load applies the config file, then any flags given on the command line.
func (g *globals) load(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("dir") {
		g.cfg.Storage.Dir = g.dir
	}

	if g.configFile != "" {
		if err := config.LoadFile(g.cfg, g.configFile); err != nil {
			return err
		}
	} else if err := config.LoadDefaultFile(g.cfg); err != nil {
		return err
	}

	if flags.Changed("dir") {
		g.cfg.Storage.Dir = g.dir
	}
	if flags.Changed("archive-dir") {
		g.cfg.Storage.ArchiveDir = g.archiveDir
	}
	if flags.Changed("registry") {
		g.cfg.Storage.RegistryFile = g.registry
	}
	if flags.Changed("quota") {
		g.cfg.Storage.Quota = g.quota
	}
	if flags.Changed("verbose") {
		g.cfg.Output.Verbose = g.verbose
	}
	return nil
}

func (g *globals) logger() *log.Logger {
	return log.New(g.stderr, "", log.LstdFlags)
}

func (g *globals) decoder() *capture.Decoder {
	return &capture.Decoder{Logger: g.logger(), Verbose: g.cfg.Output.Verbose}
}

func (g *globals) storeOptions() (registry.Options, error) {
	quota, err := g.cfg.QuotaBytes()
	if err != nil {
		return registry.Options{}, err
	}
	return registry.Options{
		ArchiveDir:   g.cfg.ArchivePath(),
		RegistryPath: g.cfg.RegistryPath(),
		QuotaBytes:   quota,
		Logger:       g.logger(),
		Verbose:      g.cfg.Output.Verbose,
		Parse:        g.decoder().ParseFile,
	}, nil
}

// openStore loads the registry and syncs it with the archive directory.
func (g *globals) openStore(ctx context.Context) (*registry.Store, error) {
	opts, err := g.storeOptions()
	if err != nil {
		return nil, err
	}
	return registry.Open(ctx, opts)
}

// loadStore loads the registry without touching the archive. A corrupt
// registry has already been logged and leaves the store empty.
func (g *globals) loadStore() (*registry.Store, error) {
	opts, err := g.storeOptions()
	if err != nil {
		return nil, err
	}
	store := registry.New(opts)
	_ = store.Load()
	return store, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
