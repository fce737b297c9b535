// Package filters contains delegate filters served through filter proxies.
package filters
