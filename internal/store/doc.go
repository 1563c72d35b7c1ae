// Package store keeps deployment records: an in-memory map with
// channel-based pub/sub, optionally persisted as a flat JSON array in a
// single file.
//
// The file format deliberately mirrors how the original demo stored its
// records (one flat array under a fixed key), so exported data remains
// trivially inspectable.
package store
