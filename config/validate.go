// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.GlobalDir == "" {
		return ErrEmptyGlobalDir
	}
	if cfg.SphereDir == "" {
		return ErrEmptySphereDir
	}

	for _, gw := range cfg.Gateways {
		if err := validateGateway(gw); err != nil {
			return fmt.Errorf("%w: %q: %w", ErrInvalidGateway, gw, err)
		}
	}

	if cfg.NameServer != "" {
		if err := validateAddr(cfg.NameServer); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidNameServer, err)
		}
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}

// validateGateway checks that gw is an absolute http(s) URL.
func validateGateway(gw string) error {
	u, err := url.Parse(gw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
