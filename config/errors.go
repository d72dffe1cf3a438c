// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrEmptyGlobalDir indicates the global storage path is empty.
	ErrEmptyGlobalDir = errors.New("config: global storage directory must not be empty")

	// ErrEmptySphereDir indicates the sphere storage path is empty.
	ErrEmptySphereDir = errors.New("config: sphere storage directory must not be empty")

	// ErrInvalidGateway indicates a gateway URL is malformed.
	ErrInvalidGateway = errors.New("config: invalid gateway URL")

	// ErrInvalidNameServer indicates the name server address is malformed.
	ErrInvalidNameServer = errors.New("config: invalid name server address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrInvalidChunkSize indicates the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("config: chunk size out of range")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")
)
