// Package native 以 Go 程序实现质押合约，供模拟账本执行。
// 每个程序都使用 contracts 包内嵌的 ABI，Agent 与部署器的调用方式与真实链上一致。
package native

import (
	"math/big"
	"sort"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenABI      = web3.MustParseABI(contracts.MustABI(contracts.NuCypherToken))
	escrowABI     = web3.MustParseABI(contracts.MustABI(contracts.MinerEscrow))
	policyABI     = web3.MustParseABI(contracts.MustABI(contracts.PolicyManager))
	dispatcherABI = web3.MustParseABI(contracts.MustABI(contracts.Dispatcher))
	linkerABI     = web3.MustParseABI(contracts.MustABI(contracts.UserEscrowLibraryLinker))
	userEscrowABI = web3.MustParseABI(contracts.MustABI(contracts.UserEscrow))
	libraryABI    = web3.MustParseABI(contracts.MustABI(contracts.UserEscrowProxy))
)

// Factories 按合约名称返回所有原生程序的构造函数。
func Factories() map[string]simulated.Factory {
	return map[string]simulated.Factory{
		contracts.NuCypherToken:           newToken,
		contracts.MinerEscrow:             newMinerEscrow,
		contracts.PolicyManager:           newPolicyManager,
		contracts.Dispatcher:              newDispatcher,
		contracts.UserEscrowLibraryLinker: newLinker,
		contracts.UserEscrow:              newUserEscrow,
		contracts.UserEscrowProxy:         newUserEscrowLibrary,
	}
}

// NewHost 返回注册了全部原生程序并预设周期长度的模拟账本。
func NewHost(opts ...simulated.Option) *simulated.Host {
	base := []simulated.Option{
		simulated.WithFactories(Factories()),
		simulated.WithHoursPerPeriod(contracts.HoursPerPeriod),
	}
	return simulated.NewHost(append(base, opts...)...)
}

// arguments 提供对 ABI 解码结果的类型化访问。Host 在 Invoke 前已按方法 ABI 解码，
// 类型不匹配只可能是编程错误，此时 panic 并由 Host 转换为回滚。
type arguments []any

func (a arguments) address(i int) common.Address { return a[i].(common.Address) }

func (a arguments) uint256(i int) *big.Int { return new(big.Int).Set(a[i].(*big.Int)) }

func (a arguments) uint16(i int) uint16 { return a[i].(uint16) }

func (a arguments) uint32(i int) uint32 { return a[i].(uint32) }

func (a arguments) bytes(i int) []byte { return a[i].([]byte) }

func (a arguments) bytes16(i int) [16]byte { return a[i].([16]byte) }

func (a arguments) bytes32(i int) [32]byte { return a[i].([32]byte) }

func (a arguments) addresses(i int) []common.Address { return a[i].([]common.Address) }

func cloneBig(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func cloneBalances(in map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(in))
	for k, v := range in {
		out[k] = cloneBig(v)
	}
	return out
}

func sortedPeriods[V any](m map[uint16]V) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// hasCode 判断 addr 是否部署了程序。
func hasCode(f *simulated.Frame, addr common.Address) bool {
	_, ok := f.CodeAt(addr)
	return ok
}

func onlyOwner(f *simulated.Frame, owner common.Address) error {
	return simulated.Require(f.Sender == owner, "caller is not the owner")
}

func single(v any) []any { return []any{v} }

// callToken 执行一次必须返回 true 的 ERC20 调用。
func callToken(f *simulated.Frame, token common.Address, method string, args ...any) error {
	out, err := f.Call(token, tokenABI, method, args...)
	if err != nil {
		return err
	}
	ok, _ := out[0].(bool)
	return simulated.Require(ok, "token %s returned false", method)
}

func tokenBalance(f *simulated.Frame, token, owner common.Address) (*big.Int, error) {
	out, err := f.Call(token, tokenABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}
