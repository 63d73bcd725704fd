package allocation

import (
	"context"

	"StakeEscrow-Chain/internal/deployers"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Deliverer 完成一次分配并返回承载分配的合约地址。
type Deliverer interface {
	Deliver(ctx context.Context, req Request) (common.Address, error)
}

// EscrowDeliverer runs the user escrow setup sequence with a fresh deployer
// per request, since each deployer owns exactly one principal contract.
type EscrowDeliverer struct {
	ledger      web3.Ledger
	from        common.Address
	network     deployers.Network
	allocations *registry.AllocationRegistry
	opts        []deployers.Option
}

// NewEscrowDeliverer 构造基于 UserEscrowDeployer 的分配执行器。
func NewEscrowDeliverer(ledger web3.Ledger, from common.Address, network deployers.Network, allocations *registry.AllocationRegistry, opts ...deployers.Option) *EscrowDeliverer {
	return &EscrowDeliverer{
		ledger:      ledger,
		from:        from,
		network:     network,
		allocations: allocations,
		opts:        opts,
	}
}

// Deliver 部署、注资、转移所有权并登记受益人。失败时返回已部署的合约地址（如有）。
func (d *EscrowDeliverer) Deliver(ctx context.Context, req Request) (common.Address, error) {
	deployer := deployers.NewUserEscrowDeployer(d.ledger, d.from, d.network, d.allocations, d.opts...)
	agent, err := deployer.DeliverAllocation(ctx, req.Beneficiary, req.Amount, req.Duration)
	if err != nil {
		return deployer.PrincipalContract().Address, err
	}
	return agent.ContractAddress(), nil
}
