package agents

import (
	"context"
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// PolicyAgent 封装策略管理合约，调用经由其 Dispatcher 地址。
type PolicyAgent struct {
	Agent
	miner *MinerAgent
}

// NewPolicyAgent 绑定 policyManager 地址上的策略管理合约。
func NewPolicyAgent(ledger web3.Ledger, policyManager common.Address, miner *MinerAgent) *PolicyAgent {
	return &PolicyAgent{
		Agent: newAgent(ledger, web3.NewContract(contracts.PolicyManager, policyManager, contracts.MustABI(contracts.PolicyManager))),
		miner: miner,
	}
}

func (a *PolicyAgent) Miner() *MinerAgent { return a.miner }

// CreatePolicy 支付 value，由 nodes 在 periods 个周期内提供策略服务。
// initialReward 是每个节点在当前周期应得的费用。
func (a *PolicyAgent) CreatePolicy(ctx context.Context, author common.Address, policyID [16]byte, value *big.Int, periods uint16, initialReward *big.Int, nodes []common.Address) (common.Hash, error) {
	if initialReward == nil {
		initialReward = new(big.Int)
	}
	return a.send(ctx, web3.TxOpts{From: author, Value: value}, "createPolicy", policyID, periods, initialReward, nodes)
}

// RevokePolicy 撤销策略并退回剩余费用。
func (a *PolicyAgent) RevokePolicy(ctx context.Context, author common.Address, policyID [16]byte) (common.Hash, error) {
	return a.send(ctx, web3.From(author), "revokePolicy", policyID)
}

// GetReward 返回 node 已入账但尚未领取的费用。
func (a *PolicyAgent) GetReward(ctx context.Context, node common.Address) (*big.Int, error) {
	out, err := a.call(ctx, "nodeReward", node)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// CollectReward 领取 node 的费用。
func (a *PolicyAgent) CollectReward(ctx context.Context, node common.Address) (common.Hash, error) {
	return a.send(ctx, web3.From(node), "withdraw")
}
