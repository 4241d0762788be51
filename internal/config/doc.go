// Package config provides configuration structures and utilities for streamscout.
// It defines the run options for channel discovery, stream resolution,
// browser egress and playlist output, plus per-site listing profiles loaded
// from a YAML file.
package config
