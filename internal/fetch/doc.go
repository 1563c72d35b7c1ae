// Package fetch wraps HTTP access to the hosting backend's status
// endpoint: a pooled client with per-request timeouts, a bounded body
// reader, and envelope decoding.
//
// Poll scheduling, change detection, and fallback behavior live in the
// root blockwatch package.
package fetch
