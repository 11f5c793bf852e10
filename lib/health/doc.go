// Package health tracks per-node failures and latencies of a request executor.
//
// Tracker keeps one entry per failing node in a concurrent map. Each entry owns an
// exponential backoff without jitter: after N consecutive failures the node is not
// eligible again before initial*multiplier^(N-1) (capped at the maximum interval)
// has passed. A success removes the entry completely.
//
// Latencies keeps an exponentially decaying sample of response times per node, which
// the selector uses to order reads by the fastest node.
package health
