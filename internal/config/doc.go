// Package config loads and validates tokend's configuration.
//
// Configuration comes from a single config.yaml in the config directory,
// layered on top of built-in defaults. Secrets (the Postgres DSN, the
// Redis password, per-provider OAuth client secrets) may be supplied via
// TOKEND_* environment variables so they never have to live in the file.
package config
