package web3

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for CLI reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	BlockTime   time.Time
	Notes       string
}

// Contract binds an ABI to an on-chain address. Two contracts are the same
// logical entity when both address and ABI match; Name is informational.
type Contract struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
	ABI     string         `json:"abi"`
}

// NewContract normalises the ABI JSON so that structurally identical ABIs
// compare equal regardless of formatting.
func NewContract(name string, address common.Address, abiJSON string) Contract {
	return Contract{Name: name, Address: address, ABI: CompactABI(abiJSON)}
}

// Equal reports whether c and other resolve to the same address and ABI.
func (c Contract) Equal(other Contract) bool {
	return c.Address == other.Address && CompactABI(c.ABI) == CompactABI(other.ABI)
}

// At returns a copy of the contract bound to a different address.
func (c Contract) At(address common.Address) Contract {
	c.Address = address
	return c
}

// CompactABI strips insignificant whitespace from an ABI document.
func CompactABI(abiJSON string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(abiJSON)); err != nil {
		return abiJSON
	}
	return buf.String()
}

// Artifact is a deployable contract: its ABI plus creation bytecode. The
// simulated ledger resolves artifacts by Name and ignores Bytecode.
type Artifact struct {
	Name     string
	ABI      string
	Bytecode []byte
}

// Contract returns the artifact's ABI bound to address.
func (a Artifact) Contract(address common.Address) Contract {
	return NewContract(a.Name, address, a.ABI)
}

// TxOpts carries the sender and attached ether for a state-changing call.
type TxOpts struct {
	From  common.Address
	Value *big.Int
}

// From is shorthand for TxOpts{From: addr}.
func From(addr common.Address) TxOpts {
	return TxOpts{From: addr}
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Receipt         *types.Receipt
}

// TxHash returns the hash of the creation transaction.
func (d DeploymentResult) TxHash() common.Hash {
	if d.Receipt == nil {
		return common.Hash{}
	}
	return d.Receipt.TxHash
}

// Ledger is the narrow surface every chain implementation provides. Each
// method blocks until the ledger has confirmed the operation; failures are
// returned as-is and never retried.
type Ledger interface {
	Call(ctx context.Context, contract Contract, method string, args ...any) ([]any, error)
	Send(ctx context.Context, opts TxOpts, contract Contract, method string, args ...any) (*types.Receipt, error)
	Deploy(ctx context.Context, opts TxOpts, artifact Artifact, args ...any) (DeploymentResult, error)
	AdvanceTime(ctx context.Context, periods int) error
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	Now(ctx context.Context) (time.Time, error)
	Accounts() []common.Address
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	Close()
}
