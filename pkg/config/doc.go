// Package config provides configuration loading, validation, and access
// for the Sentinel decision engine.
//
// Configuration is read from a YAML file, merged with defaults, overridden
// by SENTINEL_* environment variables, and validated before use. A process
// singleton is available via Initialize/GetConfig for components that are
// constructed far from the entry point.
package config
