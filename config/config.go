package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/brettbedarf/simfs/internal/util"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultNumBlocks is the number of blocks on the simulated disk.
	// The reference demo tree needs 25.
	DefaultNumBlocks = 64

	// DefaultTablePath is where the block allocation table is stored
	DefaultTablePath = "block_allocation_table"

	// DefaultMFTPath is where the master file table is stored
	DefaultMFTPath = "master_file_table"

	DefaultLogLvl = util.InfoLevel
)

// CLI verbosity values accepted by ConfigOverride.LogLvl
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Config contains runtime configuration values for the simulated file system.
type Config struct {
	NumBlocks    int           // Number of blocks in the allocation table (Default 64)
	TablePath    string        // Block allocation table file (Default "block_allocation_table")
	MFTPath      string        // Master file table file (Default "master_file_table")
	LogLvl       util.LogLevel // Internal log level (Default info)
	MountOptions MountOptions  // Used by the mount command
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
//
// LogLvl is a CLI style verbosity between 1 (error) and 5 (trace); it is
// clamped and converted to a [util.LogLevel] on Merge.
type ConfigOverride struct {
	NumBlocks *int    `yaml:"num_blocks,omitempty" json:"num_blocks,omitempty"`
	TablePath *string `yaml:"table_path,omitempty" json:"table_path,omitempty"`
	MFTPath   *string `yaml:"mft_path,omitempty" json:"mft_path,omitempty"`
	LogLvl    *int    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	FuseDebug *bool   `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		NumBlocks:    DefaultNumBlocks,
		TablePath:    DefaultTablePath,
		MFTPath:      DefaultMFTPath,
		LogLvl:       DefaultLogLvl,
		MountOptions: NewDefaultMountOptions(),
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.NumBlocks != nil {
		c.NumBlocks = *override.NumBlocks
	}
	if override.TablePath != nil {
		c.TablePath = *override.TablePath
	}
	if override.MFTPath != nil {
		c.MFTPath = *override.MFTPath
	}
	if override.LogLvl != nil {
		c.LogLvl = VerbosityToLevel(*override.LogLvl)
	}
	if override.FuseDebug != nil {
		c.MountOptions.Debug = *override.FuseDebug
	}
}

// Validate reports settings the file system cannot run with
func (c *Config) Validate() error {
	if c.NumBlocks <= 0 {
		return fmt.Errorf("num_blocks must be positive, got %d", c.NumBlocks)
	}
	if c.TablePath == "" {
		return fmt.Errorf("table_path must not be empty")
	}
	if c.MFTPath == "" {
		return fmt.Errorf("mft_path must not be empty")
	}
	return nil
}

// VerbosityToLevel maps a verbosity between 1 (error) and 5 (trace) to a
// [util.LogLevel]. Out of range values are clamped.
func VerbosityToLevel(verbose int) util.LogLevel {
	verbose = min(max(verbose, ErrorVerbose), TraceVerbose)
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return logLvls[verbose-1]
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
