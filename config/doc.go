// Package config loads the proxy configuration from a YAML file and
// environment variables. It covers the HTTP server, logging, metrics, the
// session cookie and the list of filter proxies with their init parameters.
package config
