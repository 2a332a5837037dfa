// Package config loads, validates, and watches the TOML configuration that
// drives the picdrop daemon and CLI.
package config
