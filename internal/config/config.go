package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
}

type StorageConfig struct {
	// Dir is the base directory; relative ArchiveDir and RegistryFile
	// values are resolved against it.
	Dir          string `yaml:"dir"`
	ArchiveDir   string `yaml:"archive_dir"`
	RegistryFile string `yaml:"registry_file"`
	// Quota is a byte size such as "100GB" or "512MiB". Empty, "0" or
	// "unlimited" disables pruning.
	Quota string `yaml:"quota"`
}

type OutputConfig struct {
	Verbose int `yaml:"verbose"`
}

func DefaultConfig() *Config {
	dir := ".capvault"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".capvault")
	}
	return &Config{
		Storage: StorageConfig{
			Dir:          dir,
			ArchiveDir:   "pcaps",
			RegistryFile: "network_history.json",
			Quota:        "100GB",
		},
		Output: OutputConfig{
			Verbose: 1,
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDefaultFile overlays <dir>/config.yaml when it exists.
func LoadDefaultFile(cfg *Config) error {
	err := LoadFile(cfg, filepath.Join(cfg.Storage.Dir, "config.yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ArchivePath is the resolved archive directory.
func (c *Config) ArchivePath() string {
	return c.resolve(c.Storage.ArchiveDir)
}

// RegistryPath is the resolved registry file.
func (c *Config) RegistryPath() string {
	return c.resolve(c.Storage.RegistryFile)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.Dir, p)
}

// QuotaBytes parses Storage.Quota. Zero means no quota.
func (c *Config) QuotaBytes() (int64, error) {
	q := strings.TrimSpace(c.Storage.Quota)
	switch strings.ToLower(q) {
	case "", "0", "unlimited", "none":
		return 0, nil
	}
	n, err := humanize.ParseBytes(q)
	if err != nil {
		return 0, fmt.Errorf("invalid quota %q: %w", c.Storage.Quota, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("invalid quota %q: too large", c.Storage.Quota)
	}
	return int64(n), nil
}
