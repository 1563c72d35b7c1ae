// Package synth generates plausible-looking random block hosting data:
// block identifiers, content hashes, CID strings, and whole block status
// records.
//
// It backs two consumers that previously duplicated this logic: the
// poller's fallback path (fabricating a snapshot when the backend is
// unreachable) and the mock backend server (fabricating the backend
// itself).
package synth
