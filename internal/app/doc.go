// Package app wires keygate together: configuration, logging, telemetry,
// storage, services, the HTTP router, and the server lifecycle with
// graceful shutdown.
package app
