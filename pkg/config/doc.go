// Package config defines the Ganymede configuration structure and the
// loading pipeline: YAML file, defaults, environment overrides, then
// validation.
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD
// (e.g. GANYMEDE_SERVER_LISTEN_ADDRESS) and always take precedence over
// file-based configuration.
package config
