// Package config loads pvgen's JSON configuration, adapted directly from
// the teacher's internal/config/config.go: the same DefaultConfig/Load/
// LoadFile/Save shape and search-path convention, carrying the core's
// configurable knobs instead of VHDL linting rules.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration for pvgen.
type Config struct {
	// MaxRecordNameLength caps the emitted PV name length (§4.F.7).
	MaxRecordNameLength int `json:"maxRecordNameLength,omitempty"`

	// ArchiveThreshold is the array element count above which archiving is
	// suppressed for that record (§4.F.5).
	ArchiveThreshold int `json:"archiveThreshold,omitempty"`

	// DefaultPrecision is the PREC default for float scalars (§4.F.2).
	DefaultPrecision int `json:"defaultPrecision,omitempty"`

	// DefaultMacroCharacter is saved and loaded with the configuration but
	// is not read by the pipeline: absent an explicit macro_character:
	// pragma, the merger always uses '@' (§3).
	DefaultMacroCharacter string `json:"defaultMacroCharacter,omitempty"`

	// PortName is the asyn port name used to build INP/OUT links (§4.F.2).
	PortName string `json:"portName,omitempty"`

	// AllowErrors logs non-fatal §7 diagnostics as warnings and keeps records
	// that fail grammar linting; without it such records are dropped. The
	// diagnostics are collected into the run's report either way.
	AllowErrors bool `json:"allowErrors,omitempty"`

	// PragmaName is saved and loaded with the configuration (default
	// "pytmc") but is not read by the resolver, which always extracts the
	// <Properties><Property> named "pytmc" or "plcAttribute_pytmc".
	PragmaName string `json:"pragmaName,omitempty"`

	// GrammarFile optionally overrides the embedded CUE record-definition
	// schema used by internal/grammar.
	GrammarFile string `json:"grammarFile,omitempty"`
}

// DefaultConfig returns pvgen's built-in defaults, matching spec.md §4.F/§6.
func DefaultConfig() *Config {
	return &Config{
		MaxRecordNameLength:   60,
		ArchiveThreshold:      1000,
		DefaultPrecision:      3,
		DefaultMacroCharacter: "@",
		PortName:              "PLC",
		AllowErrors:           false,
		PragmaName:            "pytmc",
	}
}

// Load finds and loads pvgen's configuration file.
//
// Search order:
//  1. ./pvgen.json (current working directory)
//  2. ./.pvgen.json (current working directory)
//  3. <rootPath>/pvgen.json and <rootPath>/.pvgen.json (only when rootPath
//     is a directory other than cwd)
//  4. ~/.config/pvgen/config.json
//
// Returns DefaultConfig if no config file is found.
func Load(rootPath string) (*Config, error) {
	cwd, _ := os.Getwd()

	searchPaths := []string{
		filepath.Join(cwd, "pvgen.json"),
		filepath.Join(cwd, ".pvgen.json"),
	}

	if info, err := os.Stat(rootPath); err == nil && info.IsDir() {
		absRoot, _ := filepath.Abs(rootPath)
		if absRoot != cwd {
			searchPaths = append(searchPaths,
				filepath.Join(rootPath, "pvgen.json"),
				filepath.Join(rootPath, ".pvgen.json"),
			)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "pvgen", "config.json"))
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	return DefaultConfig(), nil
}

// LoadFile loads configuration from a specific file, applying defaults for
// any field the file leaves unset.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// applyDefaults fills in zero-valued fields a partial JSON document left
// unset (distinguishing "unset" from "explicitly zero" is not needed here:
// every knob's valid range excludes zero).
func (c *Config) applyDefaults() {
	if c.MaxRecordNameLength == 0 {
		c.MaxRecordNameLength = 60
	}
	if c.ArchiveThreshold == 0 {
		c.ArchiveThreshold = 1000
	}
	if c.DefaultPrecision == 0 {
		c.DefaultPrecision = 3
	}
	if c.DefaultMacroCharacter == "" {
		c.DefaultMacroCharacter = "@"
	}
	if c.PortName == "" {
		c.PortName = "PLC"
	}
	if c.PragmaName == "" {
		c.PragmaName = "pytmc"
	}
}

// Save writes the configuration to a file as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
