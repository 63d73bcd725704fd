package deployers

import (
	"context"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// PolicyManagerDeployer 在 Dispatcher 之后发布策略管理合约并把它登记到矿工托管合约。
type PolicyManagerDeployer struct {
	dispatched
	escrow web3.Contract
}

// NewPolicyManagerDeployer 创建依赖 escrow 的策略管理合约部署器。
func NewPolicyManagerDeployer(ledger web3.Ledger, from common.Address, escrow web3.Contract, secret []byte, opts ...Option) *PolicyManagerDeployer {
	return &PolicyManagerDeployer{
		dispatched: dispatched{
			deployment: newDeployment(contracts.PolicyManager, ledger, from, opts),
			secret:     append([]byte(nil), secret...),
		},
		escrow: escrow,
	}
}

func (d *PolicyManagerDeployer) Arm(ctx context.Context) error {
	return d.arm(ctx, requireSecret(d.name, d.secret), d.requireContract(d.escrow, "getCurrentPeriod"))
}

// Deploy 发布策略管理合约并调用 setPolicyManager，返回 Dispatcher 的创建哈希。
func (d *PolicyManagerDeployer) Deploy(ctx context.Context) (common.Hash, error) {
	if err := d.begin(); err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.publishDispatched(ctx, d.escrow.Address)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := d.transact(ctx, d.escrow, "setPolicyManager", d.dispatcher.Address); err != nil {
		return common.Hash{}, err
	}
	d.deployed = true
	if err := d.enroll(ctx, d.Contract(), d.library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

func (d *PolicyManagerDeployer) Upgrade(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	return d.upgrade(ctx, secret, newSecret, d.escrow.Address)
}

func (d *PolicyManagerDeployer) Rollback(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	return d.rollback(ctx, secret, newSecret)
}
