package deployers

import (
	"context"
	"fmt"
	"log/slog"

	"StakeEscrow-Chain/internal/contracts"
	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrAlreadyDeployed 表示同一个部署器被第二次调用 Deploy。
var ErrAlreadyDeployed = xerrors.New(xerrors.CodeAlreadyDeployed, "合约已经部署")

// Option 定义部署器的可选配置。
type Option func(*options)

type options struct {
	contracts *registry.ContractRegistry
	artifacts map[string]web3.Artifact
}

// WithContractRegistry 将每个发布的合约登记到 reg。
func WithContractRegistry(reg *registry.ContractRegistry) Option {
	return func(o *options) {
		o.contracts = reg
	}
}

// WithArtifacts 提供编译产物并覆盖内嵌 ABI，执行字节码的账本需要它。
func WithArtifacts(artifacts map[string]web3.Artifact) Option {
	return func(o *options) {
		o.artifacts = artifacts
	}
}

// deployment 保存所有部署器共有的状态。
type deployment struct {
	name     string
	ledger   web3.Ledger
	from     common.Address
	opts     options
	armed    bool
	deployed bool
}

func newDeployment(name string, ledger web3.Ledger, from common.Address, opts []Option) deployment {
	d := deployment{name: name, ledger: ledger, from: from}
	for _, opt := range opts {
		if opt != nil {
			opt(&d.opts)
		}
	}
	return d
}

// Armed 表示 Arm 是否已成功。
func (d *deployment) Armed() bool { return d.armed }

// Deployed 表示 Deploy 是否已成功。
func (d *deployment) Deployed() bool { return d.deployed }

// Deployer 返回签署部署交易的账户。
func (d *deployment) Deployer() common.Address { return d.from }

func (d *deployment) arm(ctx context.Context, checks ...func(context.Context) error) error {
	if d.ledger == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 部署器缺少账本", d.name))
	}
	known := false
	for _, account := range d.ledger.Accounts() {
		if account == d.from {
			known = true
			break
		}
	}
	if !known {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("部署账户 %s 不受账本管理", d.from.Hex()),
			xerrors.WithMetadata("contract", d.name))
	}
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	d.armed = true
	return nil
}

func (d *deployment) begin() error {
	if !d.armed {
		return xerrors.New(xerrors.CodeNotArmed, fmt.Sprintf("%s 部署器尚未准备", d.name))
	}
	if d.deployed {
		return ErrAlreadyDeployed
	}
	return nil
}

func (d *deployment) artifact(name string) (web3.Artifact, error) {
	if artifact, ok := d.opts.artifacts[name]; ok {
		return artifact, nil
	}
	artifact, err := contracts.Artifact(name)
	if err != nil {
		return web3.Artifact{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "获取合约构件失败")
	}
	return artifact, nil
}

// publish 部署一个合约并返回绑定新地址的合约。
func (d *deployment) publish(ctx context.Context, name string, args ...any) (web3.Contract, common.Hash, error) {
	artifact, err := d.artifact(name)
	if err != nil {
		return web3.Contract{}, common.Hash{}, err
	}
	result, err := d.ledger.Deploy(ctx, web3.From(d.from), artifact, args...)
	if err != nil {
		return web3.Contract{}, common.Hash{}, xerrors.Wrap(xerrors.CodeDeploymentFailure, err,
			fmt.Sprintf("部署 %s 失败", name), xerrors.WithMetadata("contract", name))
	}
	contract := artifact.Contract(result.ContractAddress)
	logger.Audit().Info("合约部署成功",
		slog.String("contract", name),
		slog.String("address", result.ContractAddress.Hex()),
		slog.String("tx_hash", result.TxHash().Hex()),
		slog.String("deployer", d.from.Hex()))
	return contract, result.TxHash(), nil
}

// transact 以部署账户发送一笔初始化交易。
func (d *deployment) transact(ctx context.Context, contract web3.Contract, method string, args ...any) (common.Hash, error) {
	return d.transactAs(ctx, d.from, contract, method, args...)
}

func (d *deployment) transactAs(ctx context.Context, from common.Address, contract web3.Contract, method string, args ...any) (common.Hash, error) {
	receipt, err := d.ledger.Send(ctx, web3.From(from), contract, method, args...)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeDeploymentFailure, err,
			fmt.Sprintf("%s.%s 执行失败", contract.Name, method),
			xerrors.WithMetadata("contract", contract.Name), xerrors.WithMetadata("method", method))
	}
	logger.Audit().Info("部署交易已确认",
		slog.String("contract", contract.Name),
		slog.String("method", method),
		slog.String("tx_hash", receipt.TxHash.Hex()))
	return receipt.TxHash, nil
}

func (d *deployment) enroll(ctx context.Context, contract web3.Contract, target common.Address) error {
	if d.opts.contracts == nil {
		return nil
	}
	if _, err := d.opts.contracts.Enroll(ctx, contract, target); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("登记合约 %s 失败", contract.Name))
	}
	return nil
}

// requireContract 检查依赖合约已绑定且能响应调用。
func (d *deployment) requireContract(contract web3.Contract, method string) func(context.Context) error {
	return func(ctx context.Context) error {
		if contract.Address == (common.Address{}) {
			return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("%s 依赖的合约 %s 尚未部署", d.name, contract.Name))
		}
		if _, err := d.ledger.Call(ctx, contract, method); err != nil {
			return xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("%s 依赖的合约 %s 不可用", d.name, contract.Name))
		}
		return nil
	}
}

func requireSecret(name string, secret []byte) func(context.Context) error {
	return func(context.Context) error {
		if len(secret) != contracts.DispatcherSecretLength {
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("%s 升级口令长度必须为 %d 字节，实际为 %d", name, contracts.DispatcherSecretLength, len(secret)))
		}
		return nil
	}
}

func secretHash(secret []byte) common.Hash {
	return crypto.Keccak256Hash(secret)
}
