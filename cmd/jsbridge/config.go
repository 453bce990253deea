// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joeycumines/go-jsbridge/driver"
	"github.com/joeycumines/go-jsbridge/interp"
	"github.com/joeycumines/logiface"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "JSBRIDGE_"

// fileConfig is the process configuration, as read from TOML.
type fileConfig struct {
	SearchPaths       []string `toml:"search-paths"`
	MaxStackSize      int      `toml:"max-stack-size"`
	GCThreshold       int64    `toml:"gc-threshold"`
	DisableFileLoader bool     `toml:"disable-file-loader"`
	Module            bool     `toml:"module"`
	Strict            bool     `toml:"strict"`
	ShutdownTimeout   string   `toml:"shutdown-timeout"`
	LogLevel          string   `toml:"log-level"`
}

func defaultFileConfig() fileConfig {
	defaults := interp.DefaultConfig()
	return fileConfig{
		SearchPaths:     defaults.SearchPaths,
		MaxStackSize:    defaults.MaxStackSize,
		GCThreshold:     defaults.GCThreshold,
		ShutdownTimeout: driver.DefaultShutdownTimeout.String(),
		LogLevel:        logiface.LevelWarning.String(),
	}
}

// loadConfig reads path over the defaults. Relative search paths given in
// the file are resolved against its directory. An empty path gives the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("cannot load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	if !md.IsDefined("search-paths") {
		return cfg, nil
	}
	dir := filepath.Dir(path)
	for i, p := range cfg.SearchPaths {
		if !filepath.IsAbs(p) {
			cfg.SearchPaths[i] = filepath.Join(dir, p)
		}
	}
	return cfg, nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// envLookup returns a lookup of the process environment, falling back to
// envFile. An empty envFile means .env, if it exists.
func envLookup(envFile string) (lookupFunc, error) {
	path := envFile
	if path == "" {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if envFile == "" && os.IsNotExist(err) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// applyEnv overrides cfg with JSBRIDGE_* variables.
func (cfg *fileConfig) applyEnv(lookup lookupFunc) error {
	for _, override := range []struct {
		key   string
		apply func(string) error
	}{
		{"SEARCH_PATHS", func(v string) error {
			cfg.SearchPaths = filepath.SplitList(v)
			return nil
		}},
		{"MAX_STACK_SIZE", func(v string) (err error) {
			cfg.MaxStackSize, err = cast.ToIntE(v)
			return
		}},
		{"GC_THRESHOLD", func(v string) (err error) {
			cfg.GCThreshold, err = cast.ToInt64E(v)
			return
		}},
		{"DISABLE_FILE_LOADER", func(v string) (err error) {
			cfg.DisableFileLoader, err = cast.ToBoolE(v)
			return
		}},
		{"MODULE", func(v string) (err error) {
			cfg.Module, err = cast.ToBoolE(v)
			return
		}},
		{"STRICT", func(v string) (err error) {
			cfg.Strict, err = cast.ToBoolE(v)
			return
		}},
		{"SHUTDOWN_TIMEOUT", func(v string) error {
			cfg.ShutdownTimeout = v
			return nil
		}},
		{"LOG_LEVEL", func(v string) error {
			cfg.LogLevel = v
			return nil
		}},
	} {
		key := envPrefix + override.key
		value, ok := lookup(key)
		if !ok {
			continue
		}
		if err := override.apply(strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (cfg fileConfig) driverConfig() (driver.Config, error) {
	timeout, err := cast.ToDurationE(cfg.ShutdownTimeout)
	if err != nil {
		return driver.Config{}, fmt.Errorf("invalid shutdown-timeout: %w", err)
	}
	return driver.Config{
		Interp: interp.Config{
			SearchPaths:       cfg.SearchPaths,
			MaxStackSize:      cfg.MaxStackSize,
			GCThreshold:       cfg.GCThreshold,
			DisableFileLoader: cfg.DisableFileLoader,
		},
		Eval: interp.EvalOptions{
			Module: cfg.Module,
			Strict: cfg.Strict,
		},
		ShutdownTimeout: timeout,
	}, nil
}

// parseLevel accepts the short level keywords, plus error and warn.
func parseLevel(s string) (logiface.Level, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "error":
		return logiface.LevelError, nil
	case "warn":
		return logiface.LevelWarning, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == s {
			return level, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("unknown log level %q", s)
}
