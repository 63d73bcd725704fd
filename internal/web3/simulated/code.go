package simulated

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// State 是原生合约的可变存储。Clone 必须返回深拷贝，Host 在交易前为每个账户
// 保存快照，交易回滚时恢复这些副本。
type State interface {
	Clone() State
}

// Code 是原生合约的不可变程序。Invoke 显式接收要操作的存储，代理合约据此
// 在自己的存储上运行目标合约的代码。
type Code interface {
	ABI() abi.ABI
	Invoke(f *Frame, state State, method string, args []any) ([]any, error)
}

// Fallback 由能接收自身 ABI 之外的选择器的程序实现。
type Fallback interface {
	Fallback(f *Frame, state State, input []byte) ([]byte, error)
}

// StateVerifier 由能在代理升级时接管已有存储的程序实现。
type StateVerifier interface {
	VerifyState(state State) error
}

// Initializer 由能为委托给自己的代理提供初始存储的程序实现。
type Initializer interface {
	InitialState(f *Frame) State
}

// Factory 根据解码后的构造参数创建程序及其初始存储。
type Factory func(f *Frame, args []any) (Code, State, error)
