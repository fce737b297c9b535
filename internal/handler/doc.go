// Package handler implements the host handler chain for filter proxies.
// It matches proxies to request paths, links them in declaration order in
// front of a terminal handler, and turns proxy errors into HTTP responses.
package handler
