// Package httpserver wraps net/http.Server with address validation,
// configurable timeouts and graceful shutdown.
package httpserver
