// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads process configuration and manages runtime settings.
//
// # Process configuration
//
// Config is read from a TOML file over built-in defaults, then environment
// overrides are applied:
//   - Environment variables (AIDEV_*)
//   - ~/.aidev/config.toml (or $AIDEV_CONFIG)
//   - Built-in defaults
//
// # Runtime settings
//
// Provider choice, API keys, endpoints, sampling parameters and the system
// prompt are stored as flat keys in the key-value store so they can change
// while the server runs. SettingsStore reads them with the [provider]
// section of Config as the fallback.
//
// # Usage
//
//	cfg, err := config.LoadFromPath(path)
//	if err != nil {
//	    return err
//	}
//	settings := config.NewSettingsStore(kv, cfg.DefaultSettings())
package config
