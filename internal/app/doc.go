// Package app bootstraps tokend: it loads configuration, wires storage,
// rate limiting, provider adapters, the token manager and the flow
// controller together, and runs the HTTP server until shutdown.
package app
