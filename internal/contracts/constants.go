package contracts

import "math/big"

// Contract names as used by artifacts and the contract registry.
const (
	NuCypherToken           = "NuCypherToken"
	MinerEscrow             = "MinerEscrow"
	PolicyManager           = "PolicyManager"
	Dispatcher              = "Dispatcher"
	UserEscrow              = "UserEscrow"
	UserEscrowProxy         = "UserEscrowProxy"
	UserEscrowLibraryLinker = "UserEscrowLibraryLinker"
)

const (
	// HoursPerPeriod is the length of one staking period.
	HoursPerPeriod = 24
	// MinLockedPeriods is the shortest stake a miner may lock.
	MinLockedPeriods = 30
	// MaxMintingPeriods bounds how far ahead a stake may be locked.
	MaxMintingPeriods = 365
	// DispatcherSecretLength is the size in bytes of upgrade secrets.
	DispatcherSecretLength = 32
	// MiningCoefficient scales the per period share of the reward reserve.
	MiningCoefficient = 20_000_000
	// TokenName and TokenSymbol identify the ERC20 token.
	TokenName   = "NuCypher"
	TokenSymbol = "NU"
	// TokenDecimals is the number of decimals of one token.
	TokenDecimals = 18
)

var m = big.NewInt(1e18)

// M returns the number of base units in one token.
func M() *big.Int { return new(big.Int).Set(m) }

// Tokens converts a whole token amount into base units.
func Tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), m)
}

// MinAllowedLocked is the smallest amount a single stake may lock.
func MinAllowedLocked() *big.Int { return Tokens(15_000) }

// MaxAllowedLocked is the largest amount a miner may have locked at once.
func MaxAllowedLocked() *big.Int { return Tokens(4_000_000) }

// TokenSupply is the total number of base units minted on token deployment.
func TokenSupply() *big.Int { return Tokens(1_000_000_000) }

// RewardReserve is the share of the supply moved into the miner escrow to
// pay mining rewards.
func RewardReserve() *big.Int {
	return new(big.Int).Rsh(TokenSupply(), 1)
}
