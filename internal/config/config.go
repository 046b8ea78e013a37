// Package config loads the optional TOML configuration file that
// customizes the driver's assemble/link step. Nothing in the compiler
// core (lexer, parser, codegen) reads from this package; it exists purely
// for the cmd/subc front end, grounded on the
// GetConfigPath/Load/LoadFrom shape of a platform-specific config loader
// elsewhere in this codebase's lineage.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config holds driver-level settings that aren't worth a command-line flag
// apiece.
type Config struct {
	Build struct {
		// Assembler is the command invoked to turn the generated
		// assembly into a binary ("gcc" by default, since it's
		// available almost everywhere and accepts assembler input on
		// stdin via "-x assembler -").
		Assembler string `toml:"assembler"`

		// AssemblerFlags are passed to Assembler before the implicit
		// "-x assembler -" and "-o <output>" arguments.
		AssemblerFlags []string `toml:"assembler_flags"`
	} `toml:"build"`

	Debug struct {
		// Enabled turns on debug-mode code generation (the
		// block-nesting assertion) by default, without needing
		// -debug on every invocation.
		Enabled bool `toml:"enabled"`
	} `toml:"debug"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Build.Assembler = "gcc"
	cfg.Build.AssemblerFlags = []string{"-static"}
	cfg.Debug.Enabled = false
	return cfg
}

// GetConfigPath returns the platform-specific path for subc's config file.
func GetConfigPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "subc")

	default:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "subc.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "subc")
	}

	return filepath.Join(configDir, "config.toml")
}

// Load reads the config file at the default platform path, falling back to
// DefaultConfig if it doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads the config file at path, falling back to DefaultConfig if
// it doesn't exist.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}
