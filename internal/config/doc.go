// Package config loads, normalizes, and validates allsky configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ALLSKY_NTFY_TOPIC. Paths that are left empty derive from data_dir, so a
// minimal file only needs to name the site coordinates and the capture command.
//
// The config_level key pins a file to the release that wrote it; the daemon
// refuses to start when it differs from Level. Watcher reports edits to the
// loaded file so the supervisor can perform a cold restart of its workers.
package config
