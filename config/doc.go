// Package config loads the hub configuration.
//
// Precedence is defaults, then the YAML file, then AGENTHUB_* environment
// variables. A missing config file is not an error; the defaults describe a
// working single-node hub.
package config
