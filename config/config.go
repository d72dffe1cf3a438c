// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and validates the Noosphere configuration file.
//
// The file is a plain list of "key = value" lines stored at
// {globaldir}/config. Blank lines and lines starting with '#' are ignored,
// unknown keys are ignored so older binaries can read newer files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Body chunk size bounds in bytes. MaxChunkSize keeps an encoded chunk
// block within what a gateway fetch accepts.
const (
	DefaultChunkSize = 1 << 20
	MaxChunkSize     = 2 << 20
)

// Config holds the engine configuration.
type Config struct {
	GlobalDir  string   // durable root: key material and this config file
	SphereDir  string   // working root: blocks, sphere index, lock files
	Gateways   []string // gateway base URLs used to fetch missing blocks
	NameServer string   // DNSSEC upstream for published sphere lookups ("" = system resolver)
	LogLevel   string   // debug, info, warn, error
	LogFile    string   // "" disables logging
	ChunkSize  int      // maximum bytes per body chunk
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".noosphere")
	return Config{
		GlobalDir: root,
		SphereDir: filepath.Join(root, "spheres"),
		LogLevel:  "info",
		ChunkSize: DefaultChunkSize,
	}
}

// ConfigPath returns the config file location for a global storage root.
func ConfigPath(globalDir string) string {
	return filepath.Join(filepath.Clean(globalDir), "config")
}

// LoadConfig reads the config file at path on top of DefaultConfig.
// Returns ErrConfigNotFound if the file does not exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, ErrConfigNotFound
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d", err, lineNo)
		}

		switch key {
		case "globaldir":
			cfg.GlobalDir = value
		case "spheredir":
			cfg.SphereDir = value
		case "gateway":
			cfg.Gateways = splitList(value)
		case "nameserver":
			cfg.NameServer = value
		case "loglevel":
			cfg.LogLevel = value
		case "logfile":
			cfg.LogFile = value
		case "chunksize":
			n, err := strconv.Atoi(value)
			if err != nil {
				return cfg, fmt.Errorf("%w: line %d: chunksize %q", ErrInvalidConfigLine, lineNo, value)
			}
			cfg.ChunkSize = n
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Noosphere Configuration\n\n")
	fmt.Fprintf(&b, "globaldir = %s\n", cfg.GlobalDir)
	fmt.Fprintf(&b, "spheredir = %s\n", cfg.SphereDir)
	fmt.Fprintf(&b, "gateway = %s\n", strings.Join(cfg.Gateways, ","))
	fmt.Fprintf(&b, "nameserver = %s\n", cfg.NameServer)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	fmt.Fprintf(&b, "chunksize = %d\n", cfg.ChunkSize)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// parseKeyValue splits a line on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
