// Package config loads the JSON configuration of the escrow tooling: which
// ledger to talk to, where registries live, how allocation jobs are queued,
// and how logs and metrics are emitted.
package config
