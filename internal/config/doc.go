// Package config loads, normalizes, and validates garagewatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a .env file from the working directory,
// and honours the environment variables the collector scripts always used
// (DISCORD_TOKEN, MINIO_ENDPOINT, NUM_DOWNLOAD_THREADS, ...). Environment
// values only fill fields the TOML file leaves empty.
//
// Always obtain settings through this package so the collectors receive
// sanitized paths, bounded worker counts, and clear validation errors before
// any network or storage work begins.
package config
