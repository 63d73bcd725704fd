package simulated

import (
	"math/big"
	"time"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const maxCallDepth = 64

// Frame 是一次原生调用的执行上下文。
type Frame struct {
	host   *Host
	Sender common.Address
	Self   common.Address
	Value  *big.Int
	depth  int
}

// Now 返回当前执行区块的时间戳。
func (f *Frame) Now() time.Time {
	return f.host.clock
}

// Balance 返回 addr 的 ETH 余额。
func (f *Frame) Balance(addr common.Address) *big.Int {
	if acct, ok := f.host.accounts[addr]; ok {
		return new(big.Int).Set(acct.balance)
	}
	return new(big.Int)
}

// Transfer 从当前合约向 addr 转出 ETH。
func (f *Frame) Transfer(to common.Address, amount *big.Int) error {
	return f.host.transfer(f.Self, to, amount)
}

// Call 以当前合约为发送方调用另一个合约。被调用方通过 iface 编码，
// 当被调用方是代理合约时 iface 可以不同于其自身 ABI。
func (f *Frame) Call(to common.Address, iface abi.ABI, method string, args ...any) ([]any, error) {
	return f.CallValue(to, nil, iface, method, args...)
}

// CallValue 与 Call 相同，但附带 ETH。
func (f *Frame) CallValue(to common.Address, value *big.Int, iface abi.ABI, method string, args ...any) ([]any, error) {
	if f.depth >= maxCallDepth {
		return nil, web3.Revert("max call depth exceeded")
	}
	input, err := iface.Pack(method, args...)
	if err != nil {
		return nil, web3.Revert("encode %s: %v", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() > 0 {
		if err := f.host.transfer(f.Self, to, value); err != nil {
			return nil, err
		}
	}
	child := &Frame{host: f.host, Sender: f.Self, Self: to, Value: value, depth: f.depth + 1}
	out, err := f.host.execute(child, to, input)
	if err != nil {
		return nil, err
	}
	results, err := iface.Unpack(method, out)
	if err != nil {
		return nil, web3.Revert("decode %s: %v", method, err)
	}
	return results, nil
}

// Delegate 在 state 上运行 target 处的代码，发送方、金额与地址保持不变。
func (f *Frame) Delegate(target common.Address, state State, input []byte) ([]byte, error) {
	if f.depth >= maxCallDepth {
		return nil, web3.Revert("max call depth exceeded")
	}
	acct, ok := f.host.accounts[target]
	if !ok || acct.code == nil {
		return nil, web3.Revert("delegate target %s has no code", target.Hex())
	}
	child := &Frame{host: f.host, Sender: f.Sender, Self: f.Self, Value: f.Value, depth: f.depth + 1}
	return f.host.run(child, acct.code, state, input)
}

// CodeAt 返回部署在 addr 的程序。
func (f *Frame) CodeAt(addr common.Address) (Code, bool) {
	acct, ok := f.host.accounts[addr]
	if !ok || acct.code == nil {
		return nil, false
	}
	return acct.code, true
}

// Require 在 cond 不成立时以 reason 回滚。
func Require(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return web3.Revert(format, args...)
}

// UnknownMethod 用于 ABI 已声明但 Invoke 未处理的方法。
func UnknownMethod(contract, method string) error {
	return web3.Revert("%s: unknown method %s", contract, method)
}
