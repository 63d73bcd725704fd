package deployers

import (
	"context"
	"log/slog"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Network 保存用户托管合约所依赖的共享合约，MinerEscrow 与 PolicyManager 均为 Dispatcher 地址。
type Network struct {
	Token           web3.Contract
	MinerEscrow     web3.Contract
	PolicyManager   web3.Contract
	UserEscrowProxy web3.Contract
	Linker          web3.Contract
}

// Secrets 保存各可升级合约的升级密钥。
type Secrets struct {
	MinerEscrow     []byte
	PolicyManager   []byte
	UserEscrowProxy []byte
}

// DeployNetwork 按依赖顺序发布全部共享合约。
func DeployNetwork(ctx context.Context, ledger web3.Ledger, from common.Address, secrets Secrets, opts ...Option) (Network, error) {
	var network Network

	token := NewTokenDeployer(ledger, from, opts...)
	if err := armAndDeploy(ctx, token); err != nil {
		return network, err
	}
	network.Token = token.Contract()

	escrow := NewMinerEscrowDeployer(ledger, from, network.Token, secrets.MinerEscrow, opts...)
	if err := armAndDeploy(ctx, escrow); err != nil {
		return network, err
	}
	network.MinerEscrow = escrow.Contract()

	policy := NewPolicyManagerDeployer(ledger, from, network.MinerEscrow, secrets.PolicyManager, opts...)
	if err := armAndDeploy(ctx, policy); err != nil {
		return network, err
	}
	network.PolicyManager = policy.Contract()

	proxy := NewUserEscrowProxyDeployer(ledger, from, network.Token, network.MinerEscrow, network.PolicyManager, secrets.UserEscrowProxy, opts...)
	if err := armAndDeploy(ctx, proxy); err != nil {
		return network, err
	}
	network.UserEscrowProxy = proxy.Contract()
	network.Linker = proxy.Linker()

	logger.L().Info("合约网络部署完成",
		slog.String("token", network.Token.Address.Hex()),
		slog.String("miner_escrow", network.MinerEscrow.Address.Hex()),
		slog.String("policy_manager", network.PolicyManager.Address.Hex()),
		slog.String("linker", network.Linker.Address.Hex()))
	return network, nil
}

// LoadNetwork 根据合约注册表的最新记录重建 Network。
func LoadNetwork(ctx context.Context, reg *registry.ContractRegistry) (Network, error) {
	var network Network
	targets := []struct {
		name string
		dst  *web3.Contract
	}{
		{contracts.NuCypherToken, &network.Token},
		{contracts.MinerEscrow, &network.MinerEscrow},
		{contracts.PolicyManager, &network.PolicyManager},
		{contracts.UserEscrowProxy, &network.UserEscrowProxy},
		{contracts.UserEscrowLibraryLinker, &network.Linker},
	}
	for _, target := range targets {
		entry, err := reg.Latest(ctx, target.name)
		if err != nil {
			return Network{}, err
		}
		*target.dst = entry.Contract()
	}
	return network, nil
}

type armedDeployer interface {
	Arm(ctx context.Context) error
	Deploy(ctx context.Context) (common.Hash, error)
}

func armAndDeploy(ctx context.Context, d armedDeployer) error {
	if err := d.Arm(ctx); err != nil {
		return err
	}
	_, err := d.Deploy(ctx)
	return err
}
