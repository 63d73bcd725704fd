package deployers

import (
	"context"
	"fmt"

	"StakeEscrow-Chain/internal/contracts"
	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// UserEscrowProxyDeployer 发布用户托管合约使用的质押库以及指向它的 Linker。
type UserEscrowProxyDeployer struct {
	deployment
	secret        []byte
	token         web3.Contract
	escrow        web3.Contract
	policyManager web3.Contract
	library       web3.Contract
	linker        web3.Contract
}

// NewUserEscrowProxyDeployer 创建质押库部署器。
func NewUserEscrowProxyDeployer(ledger web3.Ledger, from common.Address, token, escrow, policyManager web3.Contract, secret []byte, opts ...Option) *UserEscrowProxyDeployer {
	return &UserEscrowProxyDeployer{
		deployment:    newDeployment(contracts.UserEscrowProxy, ledger, from, opts),
		secret:        append([]byte(nil), secret...),
		token:         token,
		escrow:        escrow,
		policyManager: policyManager,
	}
}

func (d *UserEscrowProxyDeployer) Arm(ctx context.Context) error {
	return d.arm(ctx,
		requireSecret(d.name, d.secret),
		d.requireContract(d.token, "totalSupply"),
		d.requireContract(d.escrow, "getCurrentPeriod"),
		d.requireContract(d.policyManager, "escrow"),
	)
}

// Deploy 发布库合约与 Linker，返回 Linker 的创建哈希。
func (d *UserEscrowProxyDeployer) Deploy(ctx context.Context) (common.Hash, error) {
	if err := d.begin(); err != nil {
		return common.Hash{}, err
	}
	library, _, err := d.publish(ctx, contracts.UserEscrowProxy, d.token.Address, d.escrow.Address, d.policyManager.Address)
	if err != nil {
		return common.Hash{}, err
	}
	linker, txHash, err := d.publish(ctx, contracts.UserEscrowLibraryLinker, library.Address, secretHash(d.secret))
	if err != nil {
		return common.Hash{}, err
	}
	d.library, d.linker = library, linker
	d.deployed = true

	if err := d.enroll(ctx, library, common.Address{}); err != nil {
		return txHash, err
	}
	if err := d.enroll(ctx, linker, library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// Upgrade 部署新的库合约并更新 Linker，所有用户托管合约随之切换。
func (d *UserEscrowProxyDeployer) Upgrade(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	if !d.deployed {
		return common.Hash{}, xerrors.New(xerrors.CodeSetupOrder, fmt.Sprintf("%s 尚未部署，无法升级", d.name))
	}
	if err := requireSecret(d.name, newSecret)(ctx); err != nil {
		return common.Hash{}, err
	}
	library, _, err := d.publish(ctx, contracts.UserEscrowProxy, d.token.Address, d.escrow.Address, d.policyManager.Address)
	if err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.transact(ctx, d.linker, "upgrade", library.Address, secret, secretHash(newSecret))
	if err != nil {
		return common.Hash{}, err
	}
	d.library = library
	d.secret = append([]byte(nil), newSecret...)
	if err := d.enroll(ctx, library, common.Address{}); err != nil {
		return txHash, err
	}
	if err := d.enroll(ctx, d.linker, library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// Contract 返回当前的质押库合约。
func (d *UserEscrowProxyDeployer) Contract() web3.Contract { return d.library }

// Linker 返回用户托管合约所引用的 Linker。
func (d *UserEscrowProxyDeployer) Linker() web3.Contract { return d.linker }
