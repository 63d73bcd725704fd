package deployers

import (
	"context"
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// MinerEscrowDeployer 在 Dispatcher 之后发布矿工托管合约，并用部署账户的代币注入奖励储备。
type MinerEscrowDeployer struct {
	dispatched
	token web3.Contract
}

// NewMinerEscrowDeployer 创建质押 token 的部署器。secret 保护后续升级，长度必须为 DispatcherSecretLength 字节。
func NewMinerEscrowDeployer(ledger web3.Ledger, from common.Address, token web3.Contract, secret []byte, opts ...Option) *MinerEscrowDeployer {
	return &MinerEscrowDeployer{
		dispatched: dispatched{
			deployment: newDeployment(contracts.MinerEscrow, ledger, from, opts),
			secret:     append([]byte(nil), secret...),
		},
		token: token,
	}
}

// Arm 检查升级密钥与代币合约。
func (d *MinerEscrowDeployer) Arm(ctx context.Context) error {
	return d.arm(ctx, requireSecret(d.name, d.secret), d.requireContract(d.token, "totalSupply"))
}

// Deploy 发布库合约与 Dispatcher，转入 RewardReserve 个代币并完成初始化，返回 Dispatcher 的创建哈希。
func (d *MinerEscrowDeployer) Deploy(ctx context.Context) (common.Hash, error) {
	if err := d.begin(); err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.publishDispatched(ctx, d.constructorArgs()...)
	if err != nil {
		return common.Hash{}, err
	}
	escrow := d.Contract()
	if _, err := d.transact(ctx, d.token, "transfer", escrow.Address, contracts.RewardReserve()); err != nil {
		return common.Hash{}, err
	}
	if _, err := d.transact(ctx, escrow, "initialize", contracts.RewardReserve()); err != nil {
		return common.Hash{}, err
	}
	d.deployed = true
	if err := d.enroll(ctx, escrow, d.library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// Upgrade 换上新部署的托管库合约。
func (d *MinerEscrowDeployer) Upgrade(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	return d.upgrade(ctx, secret, newSecret, d.constructorArgs()...)
}

// Rollback 恢复上一次升级之前的库合约。
func (d *MinerEscrowDeployer) Rollback(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	return d.rollback(ctx, secret, newSecret)
}

func (d *MinerEscrowDeployer) constructorArgs() []any {
	return []any{
		d.token.Address,
		uint32(contracts.HoursPerPeriod),
		uint16(contracts.MinLockedPeriods),
		contracts.MinAllowedLocked(),
		contracts.MaxAllowedLocked(),
		big.NewInt(contracts.MiningCoefficient),
	}
}
