package config

import (
	"sort"

	"github.com/blockhost/blockwatch"
)

// BuildOptions converts parsed configuration into SDK Option values.
//
// The returned options are ready to be passed to blockwatch.New.
func BuildOptions(cfg *Config) []blockwatch.Option {
	opts := []blockwatch.Option{
		blockwatch.WithEndpoint(cfg.Endpoint),
		blockwatch.WithInterval(cfg.PollInterval.Duration()),
		blockwatch.WithTimeout(cfg.Timeout.Duration()),
		blockwatch.WithFallback(cfg.FallbackEnabled()),
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, blockwatch.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
