package agents

import (
	"context"
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// TokenAgent 封装 ERC20 代币合约。
type TokenAgent struct {
	Agent
}

// NewTokenAgent 绑定 token 地址上的代币合约。
func NewTokenAgent(ledger web3.Ledger, token common.Address) *TokenAgent {
	return &TokenAgent{Agent: newAgent(ledger, web3.NewContract(contracts.NuCypherToken, token, contracts.MustABI(contracts.NuCypherToken)))}
}

// GetBalance 查询 address 的代币余额。
func (a *TokenAgent) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	out, err := a.call(ctx, "balanceOf", address)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (a *TokenAgent) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := a.call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Transfer 从 from 向 to 转账，返回交易哈希。
func (a *TokenAgent) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) (common.Hash, error) {
	return a.send(ctx, web3.From(from), "transfer", to, amount)
}

func (a *TokenAgent) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) (common.Hash, error) {
	return a.send(ctx, web3.From(owner), "approve", spender, amount)
}
