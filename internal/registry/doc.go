// Package registry provides scoped component containers and the lookup that
// finds the container applying to an HTTP request.
//
// Containers nest: a request container falls back to its session container,
// which falls back to the application container. Components are found by
// key or by type; type names used in configuration are mapped to Go types
// through Types.
package registry
