// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package interp

import (
	"github.com/dop251/goja_nodejs/require"
	"github.com/dop251/goja_nodejs/url"
	"github.com/dop251/goja_nodejs/util"
)

// newRegistry builds the resolver and loader chain: builtin modules first,
// then source files found under the search paths.
func newRegistry(cfg Config) *require.Registry {
	loader := require.DefaultSourceLoader
	if cfg.DisableFileLoader {
		loader = noSourceLoader
	}

	registry := require.NewRegistry(
		require.WithGlobalFolders(cfg.SearchPaths...),
		require.WithLoader(loader),
	)

	registry.RegisterNativeModule(util.ModuleName, util.Require)
	registry.RegisterNativeModule(url.ModuleName, url.Require)
	for name, loader := range cfg.Builtins {
		registry.RegisterNativeModule(name, loader)
	}

	return registry
}

func noSourceLoader(string) ([]byte, error) {
	return nil, require.ModuleFileDoesNotExistError
}
