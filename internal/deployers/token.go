package deployers

import (
	"context"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// TokenDeployer 发布 ERC20 代币，全部供应量记入部署账户。
type TokenDeployer struct {
	deployment
	contract web3.Contract
}

// NewTokenDeployer 创建代币部署器。
func NewTokenDeployer(ledger web3.Ledger, from common.Address, opts ...Option) *TokenDeployer {
	return &TokenDeployer{deployment: newDeployment(contracts.NuCypherToken, ledger, from, opts)}
}

func (d *TokenDeployer) Arm(ctx context.Context) error {
	return d.arm(ctx)
}

func (d *TokenDeployer) Deploy(ctx context.Context) (common.Hash, error) {
	if err := d.begin(); err != nil {
		return common.Hash{}, err
	}
	contract, txHash, err := d.publish(ctx, contracts.NuCypherToken, contracts.TokenSupply())
	if err != nil {
		return common.Hash{}, err
	}
	d.contract = contract
	d.deployed = true
	if err := d.enroll(ctx, contract, common.Address{}); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// Contract 返回已部署的代币合约。
func (d *TokenDeployer) Contract() web3.Contract { return d.contract }
