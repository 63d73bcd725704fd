package native

import (
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// linker 让用户托管合约指向当前的质押库。
type linker struct{}

type linkerState struct {
	owner      common.Address
	target     common.Address
	secretHash common.Hash
}

func newLinker(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	in := arguments(args)
	if err := simulated.Require(hasCode(f, in.address(0)), "library is not a contract"); err != nil {
		return nil, nil, err
	}
	return linker{}, &linkerState{owner: f.Sender, target: in.address(0), secretHash: in.bytes32(1)}, nil
}

func (s *linkerState) Clone() simulated.State {
	cloned := *s
	return &cloned
}

func (linker) ABI() abi.ABI { return linkerABI }

func (linker) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st := state.(*linkerState)
	in := arguments(args)
	switch method {
	case "owner":
		return single(st.owner), nil
	case "target":
		return single(st.target), nil
	case "upgrade":
		if err := onlyOwner(f, st.owner); err != nil {
			return nil, err
		}
		if err := simulated.Require(crypto.Keccak256Hash(in.bytes(1)) == st.secretHash, "secret does not match"); err != nil {
			return nil, err
		}
		if err := simulated.Require(hasCode(f, in.address(0)), "library is not a contract"); err != nil {
			return nil, err
		}
		st.target = in.address(0)
		st.secretHash = in.bytes32(2)
		return nil, nil
	}
	return nil, simulated.UnknownMethod(contracts.UserEscrowLibraryLinker, method)
}

// userEscrow 持有单个受益人的分配。无法识别的调用由 linker 当前指向的库合约
// 在托管合约自己的存储上执行。
type userEscrow struct {
	linker common.Address
	token  common.Address
}

type userEscrowState struct {
	owner       common.Address
	lockedValue *big.Int
	endLock     *big.Int
}

func newUserEscrow(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	in := arguments(args)
	code := &userEscrow{linker: in.address(0), token: in.address(1)}
	if err := simulated.Require(hasCode(f, code.linker) && hasCode(f, code.token), "linker and token must be contracts"); err != nil {
		return nil, nil, err
	}
	return code, &userEscrowState{owner: f.Sender, lockedValue: new(big.Int), endLock: new(big.Int)}, nil
}

func (s *userEscrowState) Clone() simulated.State {
	return &userEscrowState{owner: s.owner, lockedValue: cloneBig(s.lockedValue), endLock: cloneBig(s.endLock)}
}

func (e *userEscrow) ABI() abi.ABI { return userEscrowABI }

func (e *userEscrow) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st := state.(*userEscrowState)
	in := arguments(args)
	switch method {
	case "owner":
		return single(st.owner), nil
	case "token":
		return single(e.token), nil
	case "linker":
		return single(e.linker), nil
	case "lockedValue":
		return single(cloneBig(st.lockedValue)), nil
	case "endLockTimestamp":
		return single(cloneBig(st.endLock)), nil
	case "getLockedTokens":
		return single(st.locked(f)), nil
	case "initialDeposit":
		return nil, e.initialDeposit(f, st, in.uint256(0), in.uint256(1))
	case "transferOwnership":
		if err := onlyOwner(f, st.owner); err != nil {
			return nil, err
		}
		if err := simulated.Require(in.address(0) != (common.Address{}), "new owner is the zero address"); err != nil {
			return nil, err
		}
		st.owner = in.address(0)
		return nil, nil
	case "withdrawTokens":
		return nil, e.withdrawTokens(f, st, in.uint256(0))
	case "withdrawETH":
		if err := onlyOwner(f, st.owner); err != nil {
			return nil, err
		}
		balance := f.Balance(f.Self)
		if err := simulated.Require(balance.Sign() > 0, "no ether to withdraw"); err != nil {
			return nil, err
		}
		return nil, f.Transfer(st.owner, balance)
	}
	return nil, simulated.UnknownMethod(contracts.UserEscrow, method)
}

func (e *userEscrow) Fallback(f *simulated.Frame, state simulated.State, input []byte) ([]byte, error) {
	out, err := f.Call(e.linker, linkerABI, "target")
	if err != nil {
		return nil, err
	}
	target := out[0].(common.Address)
	if err := simulated.Require(target != (common.Address{}), "linker has no library"); err != nil {
		return nil, err
	}
	return f.Delegate(target, state, input)
}

func (e *userEscrow) initialDeposit(f *simulated.Frame, st *userEscrowState, value, duration *big.Int) error {
	if err := onlyOwner(f, st.owner); err != nil {
		return err
	}
	if err := simulated.Require(st.lockedValue.Sign() == 0, "allocation is already deposited"); err != nil {
		return err
	}
	if err := simulated.Require(value.Sign() > 0 && duration.Sign() > 0, "deposit needs value and duration"); err != nil {
		return err
	}
	if err := callToken(f, e.token, "transferFrom", f.Sender, f.Self, value); err != nil {
		return err
	}
	st.lockedValue = value
	st.endLock = new(big.Int).Add(big.NewInt(f.Now().Unix()), duration)
	return nil
}

func (e *userEscrow) withdrawTokens(f *simulated.Frame, st *userEscrowState, value *big.Int) error {
	if err := onlyOwner(f, st.owner); err != nil {
		return err
	}
	balance, err := tokenBalance(f, e.token, f.Self)
	if err != nil {
		return err
	}
	if err := simulated.Require(value.Sign() > 0 && balance.Cmp(value) >= 0, "not enough tokens"); err != nil {
		return err
	}
	remaining := new(big.Int).Sub(balance, value)
	if err := simulated.Require(remaining.Cmp(st.locked(f)) >= 0, "tokens are still locked"); err != nil {
		return err
	}
	return callToken(f, e.token, "transfer", st.owner, value)
}

// locked 返回仍处于锁定的部分。
func (s *userEscrowState) locked(f *simulated.Frame) *big.Int {
	if s.endLock.Cmp(big.NewInt(f.Now().Unix())) <= 0 {
		return new(big.Int)
	}
	return cloneBig(s.lockedValue)
}

// userEscrowLibrary 代表受益人质押分配，只能由用户托管合约委托调用。
type userEscrowLibrary struct {
	token         common.Address
	escrow        common.Address
	policyManager common.Address
}

func newUserEscrowLibrary(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	in := arguments(args)
	code := &userEscrowLibrary{token: in.address(0), escrow: in.address(1), policyManager: in.address(2)}
	ok := hasCode(f, code.token) && hasCode(f, code.escrow) && hasCode(f, code.policyManager)
	if err := simulated.Require(ok, "token, escrow and policy manager must be contracts"); err != nil {
		return nil, nil, err
	}
	return code, nil, nil
}

func (l *userEscrowLibrary) ABI() abi.ABI { return libraryABI }

func (l *userEscrowLibrary) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st, ok := state.(*userEscrowState)
	if !ok {
		return nil, simulated.Require(false, "library must be called through a user escrow")
	}
	if err := onlyOwner(f, st.owner); err != nil {
		return nil, err
	}
	in := arguments(args)
	switch method {
	case "depositAsMiner":
		value := in.uint256(0)
		if err := callToken(f, l.token, "approve", l.escrow, value); err != nil {
			return nil, err
		}
		_, err := f.Call(l.escrow, escrowABI, "deposit", value, in.uint16(1))
		return nil, err
	case "withdrawAsMiner":
		_, err := f.Call(l.escrow, escrowABI, "withdraw", in.uint256(0))
		return nil, err
	case "confirmActivity":
		_, err := f.Call(l.escrow, escrowABI, "confirmActivity")
		return nil, err
	case "mint":
		_, err := f.Call(l.escrow, escrowABI, "mint")
		return nil, err
	case "withdrawPolicyReward":
		out, err := f.Call(l.policyManager, policyABI, "withdraw")
		if err != nil {
			return nil, err
		}
		return nil, f.Transfer(st.owner, out[0].(*big.Int))
	}
	return nil, simulated.UnknownMethod(contracts.UserEscrowProxy, method)
}
