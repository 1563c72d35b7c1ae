// Package server implements the mock hosting backend: the status
// endpoint the poller consumes, a small deployments API, and a
// Server-Sent Events stream of store changes.
//
// Everything it serves is fabricated; blocks rotate on a randomized
// schedule and CIDs come from the synth package. That is the point: it
// stands in for the backend the demo never had.
package server
