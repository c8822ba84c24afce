// Package config loads, normalizes, and validates yatrisync configuration.
//
// Configuration lives in a TOML file (default ~/.config/yatrisync/config.toml)
// and is layered over Default(). Load expands paths, applies environment
// overrides such as YATRISYNC_API_TOKEN and YATRISYNC_API_URL, and rejects
// values the daemon could not run with.
package config
