package agents

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"StakeEscrow-Chain/internal/contracts"
	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// UserEscrowAgent 代表某个托管合约的受益人操作。质押类操作使用代理 ABI
// 发往同一地址，由 Linker 当前指向的库合约执行。
type UserEscrowAgent struct {
	Agent
	proxy web3.Contract
	token *TokenAgent
}

// NewUserEscrowAgent 绑定 principal 合约，token 是分配所使用的 ERC20 代币。
func NewUserEscrowAgent(ledger web3.Ledger, token, principal web3.Contract) *UserEscrowAgent {
	if principal.ABI == "" {
		principal = web3.NewContract(contracts.UserEscrow, principal.Address, contracts.MustABI(contracts.UserEscrow))
	}
	if principal.Name == "" {
		principal.Name = contracts.UserEscrow
	}
	return &UserEscrowAgent{
		Agent: newAgent(ledger, principal),
		proxy: web3.NewContract(contracts.UserEscrowProxy, principal.Address, contracts.MustABI(contracts.UserEscrowProxy)),
		token: NewTokenAgent(ledger, token.Address),
	}
}

// LookupUserEscrowAgent 在分配注册表中查找受益人的托管合约，并校验受益人仍是其所有者。
func LookupUserEscrowAgent(ctx context.Context, ledger web3.Ledger, allocations *registry.AllocationRegistry, token web3.Contract, beneficiary common.Address) (*UserEscrowAgent, error) {
	principal, err := allocations.Search(ctx, beneficiary)
	if err != nil {
		return nil, err
	}
	agent := NewUserEscrowAgent(ledger, token, principal)
	owner, err := agent.Beneficiary(ctx)
	if err != nil {
		return nil, err
	}
	if owner != beneficiary {
		return nil, xerrors.New(xerrors.CodeConflict,
			fmt.Sprintf("合约 %s 的受益人是 %s 而不是 %s", principal.Address.Hex(), owner.Hex(), beneficiary.Hex()))
	}
	return agent, nil
}

// PrincipalContract 返回用户托管合约本身。
func (a *UserEscrowAgent) PrincipalContract() web3.Contract { return a.contract }

// ProxyContract 返回绑定质押库 ABI 的同一地址。
func (a *UserEscrowAgent) ProxyContract() web3.Contract { return a.proxy }

// Equal 比较托管合约与代理合约。
func (a *UserEscrowAgent) Equal(other *UserEscrowAgent) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Agent.Equal(other.Agent) && a.proxy.Equal(other.proxy)
}

// Allocation 返回托管合约当前持有的代币余额。
// 通过 DepositAsMiner 质押的代币在取回之前不计入其中。
func (a *UserEscrowAgent) Allocation(ctx context.Context) (*big.Int, error) {
	return a.token.GetBalance(ctx, a.ContractAddress())
}

// LockedTokens 返回仍处于时间锁内的部分。
func (a *UserEscrowAgent) LockedTokens(ctx context.Context) (*big.Int, error) {
	out, err := a.call(ctx, "getLockedTokens")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Beneficiary 返回托管合约当前的所有者。
func (a *UserEscrowAgent) Beneficiary(ctx context.Context) (common.Address, error) {
	out, err := a.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// EndTimestamp 返回锁定到期时间。
func (a *UserEscrowAgent) EndTimestamp(ctx context.Context) (time.Time, error) {
	out, err := a.call(ctx, "endLockTimestamp")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(out[0].(*big.Int).Int64(), 0).UTC(), nil
}

// DepositAsMiner 以托管合约的名义把 value 质押 periods 个周期。
func (a *UserEscrowAgent) DepositAsMiner(ctx context.Context, value *big.Int, periods uint16) (common.Hash, error) {
	return a.proxySend(ctx, "depositAsMiner", value, periods)
}

// WithdrawAsMiner 从矿工托管合约取回 value 到托管合约。
func (a *UserEscrowAgent) WithdrawAsMiner(ctx context.Context, value *big.Int) (common.Hash, error) {
	return a.proxySend(ctx, "withdrawAsMiner", value)
}

// ConfirmActivity 以矿工身份确认活跃。
func (a *UserEscrowAgent) ConfirmActivity(ctx context.Context) (common.Hash, error) {
	return a.proxySend(ctx, "confirmActivity")
}

// Mint 铸造已确认周期的奖励。
func (a *UserEscrowAgent) Mint(ctx context.Context) (common.Hash, error) {
	return a.proxySend(ctx, "mint")
}

// CollectPolicyReward 领取托管合约赚取的策略费用并转给受益人。
func (a *UserEscrowAgent) CollectPolicyReward(ctx context.Context) (common.Hash, error) {
	return a.proxySend(ctx, "withdrawPolicyReward")
}

// WithdrawTokens 向受益人转出 value 个代币，锁定部分不可转出。
func (a *UserEscrowAgent) WithdrawTokens(ctx context.Context, value *big.Int) (common.Hash, error) {
	beneficiary, err := a.Beneficiary(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return a.send(ctx, web3.From(beneficiary), "withdrawTokens", value)
}

// WithdrawETH 将合约的全部 ETH 余额转给受益人。
func (a *UserEscrowAgent) WithdrawETH(ctx context.Context) (common.Hash, error) {
	beneficiary, err := a.Beneficiary(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return a.send(ctx, web3.From(beneficiary), "withdrawETH")
}

func (a *UserEscrowAgent) proxySend(ctx context.Context, method string, args ...any) (common.Hash, error) {
	beneficiary, err := a.Beneficiary(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return sendTo(ctx, a.ledger, web3.From(beneficiary), a.proxy, method, args...)
}
