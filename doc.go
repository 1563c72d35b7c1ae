// Package blockwatch provides a lightweight, embeddable status poller
// for block-hosted deployments.
//
// A [Poller] periodically fetches a deployment's block status over HTTP,
// detects changes in the tracked block identifier, and fans each new
// [Snapshot] out to registered observers. When the backend is
// unreachable it can synthesize a plausible-looking snapshot locally so
// consumers always have something to display; synthesized data is marked
// via [Snapshot.Synthetic] and reported at Warn level so outages are
// never silently masked.
//
// # Quick Start
//
// Create a poller, subscribe, and start it:
//
//	p, _ := blockwatch.New(
//	    blockwatch.WithEndpoint("https://api.example.com/api/status"),
//	    blockwatch.WithInterval(10 * time.Second),
//	)
//
//	unsubscribe := p.Subscribe(func(snap blockwatch.Snapshot) {
//	    slog.Info("block changed", "block_id", snap.BlockID, "height", snap.Height)
//	})
//	defer unsubscribe()
//
//	p.Start(ctx)
//	defer p.Stop()
//
// # Configuration
//
// Pollers are configured with the functional options pattern:
//
//	p, err := blockwatch.New(
//	    blockwatch.WithEndpoint("https://api.example.com/api/status"),
//	    blockwatch.WithTimeout(5 * time.Second),
//	    blockwatch.WithHeaders("Authorization", "Bearer token"),
//	    blockwatch.WithFallback(false),
//	)
//
// # Change Semantics
//
// Observers fire exactly when the fetched block identifier differs from
// the last one seen; consecutive polls returning the same identifier
// produce no notification. Observers run synchronously in subscription
// order, each isolated by panic recovery, on the poll cycle that
// detected the change.
//
// # Architecture
//
// Internal packages (not part of the public API):
//
//   - internal/fetch: HTTP client and status envelope decoding
//   - internal/synth: random block/hash/CID generation for fallback
//     snapshots and the mock backend
//   - internal/store: deployment record storage with pub/sub
//   - internal/server: the mock hosting backend served by the CLI
//
// The config package and cmd/blockwatch provide a YAML-configured
// standalone binary as an alternative to the programmatic SDK approach.
package blockwatch
