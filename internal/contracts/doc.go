// Package contracts carries the ABIs and protocol constants of the staking
// contracts and loads compiled bytecode for deployments on real chains.
package contracts
