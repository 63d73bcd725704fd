package deployers

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"StakeEscrow-Chain/internal/agents"
	"StakeEscrow-Chain/internal/contracts"
	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

type setupStep int

const (
	stepNone setupStep = iota
	stepDeployed
	stepDeposited
	stepAssigned
	stepEnrolled
)

func (s setupStep) String() string {
	switch s {
	case stepNone:
		return "arm"
	case stepDeployed:
		return "deploy"
	case stepDeposited:
		return "initial_deposit"
	case stepAssigned:
		return "assign_beneficiary"
	case stepEnrolled:
		return "enroll_principal_contract"
	}
	return "unknown"
}

// UserEscrowDeployer 为单个受益人创建托管合约，并依次完成注资、转移所有权与登记。
// 每一步必须紧跟上一步执行，失败的步骤不会改变部署器所处的阶段。
type UserEscrowDeployer struct {
	deployment
	network     Network
	allocations *registry.AllocationRegistry
	principal   web3.Contract
	beneficiary common.Address
	step        setupStep
}

// NewUserEscrowDeployer 创建基于 network 的用户托管合约部署器。
func NewUserEscrowDeployer(ledger web3.Ledger, from common.Address, network Network, allocations *registry.AllocationRegistry, opts ...Option) *UserEscrowDeployer {
	return &UserEscrowDeployer{
		deployment:  newDeployment(contracts.UserEscrow, ledger, from, opts),
		network:     network,
		allocations: allocations,
	}
}

// Arm 检查分配注册表与共享合约是否可用。
func (d *UserEscrowDeployer) Arm(ctx context.Context) error {
	return d.arm(ctx,
		func(context.Context) error {
			if d.allocations == nil {
				return xerrors.New(xerrors.CodeInvalidArgument, "缺少分配注册表")
			}
			return nil
		},
		d.requireContract(d.network.Token, "totalSupply"),
		d.requireContract(d.network.Linker, "target"),
	)
}

// Deploy 发布一个由部署账户持有的空托管合约。
func (d *UserEscrowDeployer) Deploy(ctx context.Context) (common.Hash, error) {
	if err := d.begin(); err != nil {
		return common.Hash{}, err
	}
	principal, txHash, err := d.publish(ctx, contracts.UserEscrow, d.network.Linker.Address, d.network.Token.Address)
	if err != nil {
		return common.Hash{}, err
	}
	d.principal = principal
	d.deployed = true
	d.step = stepDeployed
	return txHash, nil
}

// InitialDeposit 从部署账户向托管合约转入 value 个代币并锁定 duration，返回存入交易的哈希。
func (d *UserEscrowDeployer) InitialDeposit(ctx context.Context, value *big.Int, duration time.Duration) (common.Hash, error) {
	if err := d.expect(stepDeployed, stepDeposited); err != nil {
		return common.Hash{}, err
	}
	if value == nil || value.Sign() <= 0 {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "初始存入金额必须为正数")
	}
	seconds := int64(duration / time.Second)
	if seconds <= 0 {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "锁定时长必须至少为一秒")
	}
	if _, err := d.transact(ctx, d.network.Token, "approve", d.principal.Address, value); err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.transact(ctx, d.principal, "initialDeposit", value, big.NewInt(seconds))
	if err != nil {
		return common.Hash{}, err
	}
	d.step = stepDeposited
	return txHash, nil
}

// AssignBeneficiary 将托管合约的所有权交给受益人。已登记的受益人会被拒绝，所有权仍归部署账户。
func (d *UserEscrowDeployer) AssignBeneficiary(ctx context.Context, beneficiary common.Address) (common.Hash, error) {
	if err := d.expect(stepDeposited, stepAssigned); err != nil {
		return common.Hash{}, err
	}
	if beneficiary == (common.Address{}) {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "受益人地址不能为空")
	}
	if err := d.allocations.RequireUnenrolled(ctx, beneficiary); err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.transact(ctx, d.principal, "transferOwnership", beneficiary)
	if err != nil {
		return common.Hash{}, err
	}
	d.beneficiary = beneficiary
	d.step = stepAssigned
	return txHash, nil
}

// EnrollPrincipalContract 将受益人的托管合约登记到分配注册表。
func (d *UserEscrowDeployer) EnrollPrincipalContract(ctx context.Context) error {
	if err := d.expect(stepAssigned, stepEnrolled); err != nil {
		return err
	}
	if err := d.allocations.Enroll(ctx, d.beneficiary, d.principal); err != nil {
		return err
	}
	d.step = stepEnrolled
	logger.Audit().Info("分配已登记",
		slog.String("beneficiary", d.beneficiary.Hex()),
		slog.String("principal", d.principal.Address.Hex()))
	return nil
}

// MakeAgent 返回绑定已登记托管合约的 Agent。
func (d *UserEscrowDeployer) MakeAgent() (*agents.UserEscrowAgent, error) {
	if d.step < stepEnrolled {
		return nil, xerrors.New(xerrors.CodeSetupOrder,
			fmt.Sprintf("make_agent 必须在 %s 之后执行", stepEnrolled))
	}
	return agents.NewUserEscrowAgent(d.ledger, d.network.Token, d.principal), nil
}

// DeliverAllocation 为单个受益人执行完整流程，已登记的受益人在部署前即被拒绝。
func (d *UserEscrowDeployer) DeliverAllocation(ctx context.Context, beneficiary common.Address, value *big.Int, duration time.Duration) (*agents.UserEscrowAgent, error) {
	if !d.armed {
		if err := d.Arm(ctx); err != nil {
			return nil, err
		}
	}
	if err := d.allocations.RequireUnenrolled(ctx, beneficiary); err != nil {
		return nil, err
	}
	if _, err := d.Deploy(ctx); err != nil {
		return nil, err
	}
	if _, err := d.InitialDeposit(ctx, value, duration); err != nil {
		return nil, err
	}
	if _, err := d.AssignBeneficiary(ctx, beneficiary); err != nil {
		return nil, err
	}
	if err := d.EnrollPrincipalContract(ctx); err != nil {
		return nil, err
	}
	return d.MakeAgent()
}

// PrincipalContract 返回已部署的用户托管合约。
func (d *UserEscrowDeployer) PrincipalContract() web3.Contract { return d.principal }

// Beneficiary 返回受益人，AssignBeneficiary 之前为零地址。
func (d *UserEscrowDeployer) Beneficiary() common.Address { return d.beneficiary }

func (d *UserEscrowDeployer) expect(current, next setupStep) error {
	if d.step == current {
		return nil
	}
	if d.step > current {
		return xerrors.New(xerrors.CodeSetupOrder, fmt.Sprintf("%s 已经执行过", next),
			xerrors.WithMetadata("step", next.String()))
	}
	return xerrors.New(xerrors.CodeSetupOrder, fmt.Sprintf("%s 必须在 %s 之后执行", next, current),
		xerrors.WithMetadata("step", next.String()))
}
