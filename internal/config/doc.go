// Package config loads, normalizes, and validates trafficlens configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY (optionally sourced from a .env file). The Config type
// centralizes every knob the server and CLI need so directories, sampler
// settings, and the model credential are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
