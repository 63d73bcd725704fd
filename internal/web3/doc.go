// Package web3 defines the ledger boundary used by deployers and agents: a
// narrow call/send/deploy/advance-time interface, value-typed contract
// bindings, and the YAML chain definitions used to construct concrete
// ledgers. Implementations live in the ethereum (go-ethereum JSON-RPC and
// simulated backend) and simulated (in-process native contract host)
// subpackages.
package web3
