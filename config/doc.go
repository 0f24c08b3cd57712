// Package config loads engine configuration in layers: built-in
// defaults, an optional YAML file, then environment variables prefixed
// with WEFT. Every section has a DefaultXConfig constructor so embedders
// can assemble configuration programmatically.
package config
