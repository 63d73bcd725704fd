package native

import (
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// dispatcher 把无法识别的调用转发给目标程序，目标程序操作 dispatcher 自己的存储。
// 升级需要提供当前密钥哈希的原像。
type dispatcher struct{}

type dispatcherState struct {
	owner      common.Address
	target     common.Address
	previous   common.Address
	secretHash common.Hash
	inner      simulated.State
}

func newDispatcher(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	in := arguments(args)
	target := in.address(0)
	code, ok := f.CodeAt(target)
	if err := simulated.Require(ok, "target is not a contract"); err != nil {
		return nil, nil, err
	}
	initializer, ok := code.(simulated.Initializer)
	if err := simulated.Require(ok, "target cannot run behind a dispatcher"); err != nil {
		return nil, nil, err
	}
	return dispatcher{}, &dispatcherState{
		owner:      f.Sender,
		target:     target,
		secretHash: in.bytes32(1),
		inner:      initializer.InitialState(f),
	}, nil
}

func (s *dispatcherState) Clone() simulated.State {
	cloned := *s
	if s.inner != nil {
		cloned.inner = s.inner.Clone()
	}
	return &cloned
}

func (dispatcher) ABI() abi.ABI { return dispatcherABI }

func (dispatcher) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st := state.(*dispatcherState)
	in := arguments(args)
	switch method {
	case "owner":
		return single(st.owner), nil
	case "target":
		return single(st.target), nil
	case "previousTarget":
		return single(st.previous), nil
	case "upgrade":
		if err := st.authorize(f, in.bytes(1)); err != nil {
			return nil, err
		}
		target := in.address(0)
		if err := simulated.Require(target != st.target, "target is already active"); err != nil {
			return nil, err
		}
		if err := adopt(f, target, st.inner); err != nil {
			return nil, err
		}
		st.previous, st.target = st.target, target
		st.secretHash = in.bytes32(2)
		return nil, nil
	case "rollback":
		if err := st.authorize(f, in.bytes(0)); err != nil {
			return nil, err
		}
		if err := simulated.Require(st.previous != (common.Address{}), "no previous target"); err != nil {
			return nil, err
		}
		if err := adopt(f, st.previous, st.inner); err != nil {
			return nil, err
		}
		st.target, st.previous = st.previous, common.Address{}
		st.secretHash = in.bytes32(1)
		return nil, nil
	}
	return nil, simulated.UnknownMethod(contracts.Dispatcher, method)
}

func (dispatcher) Fallback(f *simulated.Frame, state simulated.State, input []byte) ([]byte, error) {
	st := state.(*dispatcherState)
	return f.Delegate(st.target, st.inner, input)
}

func (s *dispatcherState) authorize(f *simulated.Frame, secret []byte) error {
	if err := onlyOwner(f, s.owner); err != nil {
		return err
	}
	return simulated.Require(crypto.Keccak256Hash(secret) == s.secretHash, "secret does not match")
}

// adopt 检查 target 处的程序能否接管存储。
func adopt(f *simulated.Frame, target common.Address, storage simulated.State) error {
	code, ok := f.CodeAt(target)
	if err := simulated.Require(ok, "target is not a contract"); err != nil {
		return err
	}
	verifier, ok := code.(simulated.StateVerifier)
	if err := simulated.Require(ok, "target cannot verify storage"); err != nil {
		return err
	}
	return verifier.VerifyState(storage)
}
