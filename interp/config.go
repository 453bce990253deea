// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"errors"
	"fmt"
	"os"

	"github.com/dop251/goja_nodejs/require"
)

const (
	// DefaultMaxStackSize is the default stack budget, in bytes.
	DefaultMaxStackSize = 512 * 1024

	// DefaultGCThreshold is the default garbage collection trigger, in bytes.
	DefaultGCThreshold = 256 * 1024 * 1024

	// StackFrameSize is the number of stack bytes accounted to each guest
	// call frame, when converting [Config.MaxStackSize] to a call depth.
	StackFrameSize = 256
)

// Config is the resource configuration of a [Handle]. It is consumed once,
// by [New].
type Config struct {
	// Builtins are native modules, available to require by name, in addition
	// to the util and url modules.
	Builtins map[string]require.ModuleLoader

	// SearchPaths are the global folders modules are resolved from, after
	// the builtins. Each must be an existing directory.
	SearchPaths []string

	// GCThreshold is applied as the soft memory limit of the process (see
	// [runtime/debug.SetMemoryLimit]). Zero leaves the limit unchanged.
	GCThreshold int64

	// MaxStackSize bounds the guest call stack, in bytes. Zero means no
	// limit beyond the interpreter default.
	MaxStackSize int

	// DisableFileLoader stops require from reading module sources from the
	// filesystem, leaving only the builtins.
	DisableFileLoader bool
}

// ConfigError reports an invalid [Config] field.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("interp: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// DefaultConfig returns the configuration used when none is given: a
// 512 KiB stack, a 256 MiB GC threshold, and modules resolved from the
// working directory.
func DefaultConfig() Config {
	return Config{
		MaxStackSize: DefaultMaxStackSize,
		GCThreshold:  DefaultGCThreshold,
		SearchPaths:  []string{"."},
	}
}

// Validate checks the configuration, returning a *ConfigError for the first
// invalid field.
func (c Config) Validate() error {
	if c.MaxStackSize < 0 {
		return &ConfigError{Field: "MaxStackSize", Err: fmt.Errorf("negative size %d", c.MaxStackSize)}
	}
	if c.MaxStackSize != 0 && c.MaxStackSize < StackFrameSize {
		return &ConfigError{Field: "MaxStackSize", Err: fmt.Errorf("%d bytes is less than one frame (%d bytes)", c.MaxStackSize, StackFrameSize)}
	}
	if c.GCThreshold < 0 {
		return &ConfigError{Field: "GCThreshold", Err: fmt.Errorf("negative threshold %d", c.GCThreshold)}
	}
	for _, path := range c.SearchPaths {
		if path == "" {
			return &ConfigError{Field: "SearchPaths", Err: errors.New("empty path")}
		}
		info, err := os.Stat(path)
		if err != nil {
			return &ConfigError{Field: "SearchPaths", Err: err}
		}
		if !info.IsDir() {
			return &ConfigError{Field: "SearchPaths", Err: fmt.Errorf("%s is not a directory", path)}
		}
	}
	for name, loader := range c.Builtins {
		if name == "" {
			return &ConfigError{Field: "Builtins", Err: errors.New("empty module name")}
		}
		if loader == nil {
			return &ConfigError{Field: "Builtins", Err: fmt.Errorf("nil loader for module %q", name)}
		}
	}
	return nil
}

// maxCallDepth converts the stack budget to a call depth.
func (c Config) maxCallDepth() int {
	return c.MaxStackSize / StackFrameSize
}
