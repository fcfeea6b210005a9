// Package config loads and validates tool settings: DSM package paths,
// service identifiers and artifact download locations. Settings are read
// from an optional YAML file layered over compiled defaults.
package config
