package agents

import (
	"context"
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// MinerAgent 封装矿工托管合约，调用经由其 Dispatcher 地址。
type MinerAgent struct {
	Agent
	token *TokenAgent
}

// NewMinerAgent 绑定 escrow 地址上的矿工托管合约。
func NewMinerAgent(ledger web3.Ledger, escrow common.Address, token *TokenAgent) *MinerAgent {
	return &MinerAgent{
		Agent: newAgent(ledger, web3.NewContract(contracts.MinerEscrow, escrow, contracts.MustABI(contracts.MinerEscrow))),
		token: token,
	}
}

func (a *MinerAgent) Token() *TokenAgent { return a.token }

// GetLockedTokens 返回 miner 在 periods 个周期之后的锁定数量，0 表示当前周期。
func (a *MinerAgent) GetLockedTokens(ctx context.Context, miner common.Address, periods uint16) (*big.Int, error) {
	out, err := a.call(ctx, "getLockedTokens", miner, periods)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// OwnedTokens 返回托管合约为 miner 持有的全部代币，包括未锁定部分。
func (a *MinerAgent) OwnedTokens(ctx context.Context, miner common.Address) (*big.Int, error) {
	out, err := a.call(ctx, "getAllTokens", miner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// CurrentPeriod 返回链上当前周期序号。
func (a *MinerAgent) CurrentPeriod(ctx context.Context) (uint16, error) {
	out, err := a.call(ctx, "getCurrentPeriod")
	if err != nil {
		return 0, err
	}
	return out[0].(uint16), nil
}

// Miners 按存入顺序列出所有矿工。
func (a *MinerAgent) Miners(ctx context.Context) ([]common.Address, error) {
	out, err := a.call(ctx, "getMiners")
	if err != nil {
		return nil, err
	}
	return out[0].([]common.Address), nil
}

// Deposit 先授权托管合约使用 amount，再锁定 periods 个周期。
// 授权是单独的一笔交易，返回的是存入交易的哈希。
func (a *MinerAgent) Deposit(ctx context.Context, miner common.Address, amount *big.Int, periods uint16) (common.Hash, error) {
	if _, err := a.token.Approve(ctx, miner, a.ContractAddress(), amount); err != nil {
		return common.Hash{}, err
	}
	return a.send(ctx, web3.From(miner), "deposit", amount, periods)
}

// ConfirmActivity 确认 miner 下一周期的活跃状态。
func (a *MinerAgent) ConfirmActivity(ctx context.Context, miner common.Address) (common.Hash, error) {
	return a.send(ctx, web3.From(miner), "confirmActivity")
}

// Mint 为已结束的确认周期铸造奖励。
func (a *MinerAgent) Mint(ctx context.Context, miner common.Address) (common.Hash, error) {
	return a.send(ctx, web3.From(miner), "mint")
}

// Withdraw 提取未锁定的代币。
func (a *MinerAgent) Withdraw(ctx context.Context, miner common.Address, amount *big.Int) (common.Hash, error) {
	return a.send(ctx, web3.From(miner), "withdraw", amount)
}
