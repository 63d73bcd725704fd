package native

import (
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// token 是普通的 ERC20，全部供应量铸造给部署者。
type token struct{}

type tokenState struct {
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func newToken(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	supply := arguments(args).uint256(0)
	if err := simulated.Require(supply.Sign() > 0, "total supply must be positive"); err != nil {
		return nil, nil, err
	}
	st := &tokenState{
		supply:     supply,
		balances:   map[common.Address]*big.Int{f.Sender: cloneBig(supply)},
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	return token{}, st, nil
}

func (s *tokenState) Clone() simulated.State {
	allowances := make(map[common.Address]map[common.Address]*big.Int, len(s.allowances))
	for owner, spenders := range s.allowances {
		allowances[owner] = cloneBalances(spenders)
	}
	return &tokenState{supply: cloneBig(s.supply), balances: cloneBalances(s.balances), allowances: allowances}
}

func (token) ABI() abi.ABI { return tokenABI }

func (token) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st := state.(*tokenState)
	in := arguments(args)
	switch method {
	case "name":
		return single(contracts.TokenName), nil
	case "symbol":
		return single(contracts.TokenSymbol), nil
	case "decimals":
		return single(uint8(contracts.TokenDecimals)), nil
	case "totalSupply":
		return single(cloneBig(st.supply)), nil
	case "balanceOf":
		return single(st.balanceOf(in.address(0))), nil
	case "allowance":
		return single(st.allowance(in.address(0), in.address(1))), nil
	case "transfer":
		if err := st.move(f.Sender, in.address(0), in.uint256(1)); err != nil {
			return nil, err
		}
		return single(true), nil
	case "approve":
		st.approve(f.Sender, in.address(0), in.uint256(1))
		return single(true), nil
	case "transferFrom":
		from, to, value := in.address(0), in.address(1), in.uint256(2)
		allowed := st.allowance(from, f.Sender)
		if err := simulated.Require(allowed.Cmp(value) >= 0, "transfer amount exceeds allowance"); err != nil {
			return nil, err
		}
		if err := st.move(from, to, value); err != nil {
			return nil, err
		}
		st.approve(from, f.Sender, allowed.Sub(allowed, value))
		return single(true), nil
	}
	return nil, simulated.UnknownMethod(contracts.NuCypherToken, method)
}

func (s *tokenState) balanceOf(owner common.Address) *big.Int {
	return cloneBig(s.balances[owner])
}

func (s *tokenState) allowance(owner, spender common.Address) *big.Int {
	return cloneBig(s.allowances[owner][spender])
}

func (s *tokenState) approve(owner, spender common.Address, value *big.Int) {
	if s.allowances[owner] == nil {
		s.allowances[owner] = make(map[common.Address]*big.Int)
	}
	s.allowances[owner][spender] = value
}

func (s *tokenState) move(from, to common.Address, value *big.Int) error {
	if err := simulated.Require(to != (common.Address{}), "transfer to the zero address"); err != nil {
		return err
	}
	balance := s.balanceOf(from)
	if err := simulated.Require(balance.Cmp(value) >= 0, "transfer amount exceeds balance"); err != nil {
		return err
	}
	s.balances[from] = balance.Sub(balance, value)
	s.balances[to] = new(big.Int).Add(s.balanceOf(to), value)
	return nil
}
