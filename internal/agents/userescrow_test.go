package agents_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"StakeEscrow-Chain/internal/agents"
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/contracts/native"
	"StakeEscrow-Chain/internal/deployers"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func testAllocation() *big.Int {
	return new(big.Int).Mul(contracts.MinAllowedLocked(), big.NewInt(10))
}

type scenario struct {
	ctx         context.Context
	host        *simulated.Host
	deployer    common.Address
	beneficiary common.Address
	author      common.Address
	network     deployers.Network
	allocations *registry.AllocationRegistry
	escrow      *deployers.UserEscrowDeployer
	token       *agents.TokenAgent
	miner       *agents.MinerAgent
	policy      *agents.PolicyAgent
	agent       *agents.UserEscrowAgent
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	ctx := context.Background()
	host := native.NewHost(simulated.WithStartTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(host.Close)
	accounts := host.Accounts()

	s := &scenario{
		ctx:         ctx,
		host:        host,
		deployer:    accounts[0],
		beneficiary: accounts[1],
		author:      accounts[2],
		allocations: registry.NewAllocationRegistry(registry.NewMemoryStore()),
	}
	secrets := deployers.Secrets{
		MinerEscrow:     bytes.Repeat([]byte{1}, contracts.DispatcherSecretLength),
		PolicyManager:   bytes.Repeat([]byte{2}, contracts.DispatcherSecretLength),
		UserEscrowProxy: bytes.Repeat([]byte{3}, contracts.DispatcherSecretLength),
	}
	network, err := deployers.DeployNetwork(ctx, host, s.deployer, secrets)
	require.NoError(t, err)
	s.network = network
	s.token = agents.NewTokenAgent(host, network.Token.Address)
	s.miner = agents.NewMinerAgent(host, network.MinerEscrow.Address, s.token)
	s.policy = agents.NewPolicyAgent(host, network.PolicyManager.Address, s.miner)

	s.escrow = deployers.NewUserEscrowDeployer(host, s.deployer, network, s.allocations)
	require.NoError(t, s.escrow.Arm(ctx))
	txHash, err := s.escrow.Deploy(ctx)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, txHash)

	duration := time.Duration(contracts.MinLockedPeriods*10*contracts.HoursPerPeriod) * time.Hour
	_, err = s.escrow.InitialDeposit(ctx, testAllocation(), duration)
	require.NoError(t, err)
	require.Equal(t, 0, s.lockedInPrincipal(t).Cmp(testAllocation()))

	_, err = s.escrow.AssignBeneficiary(ctx, s.beneficiary)
	require.NoError(t, err)
	require.NoError(t, s.escrow.EnrollPrincipalContract(ctx))
	require.Equal(t, 0, s.lockedInPrincipal(t).Cmp(testAllocation()))

	agent, err := s.escrow.MakeAgent()
	require.NoError(t, err)
	s.agent = agent

	direct, err := agents.LookupUserEscrowAgent(ctx, host, s.allocations, network.Token, s.beneficiary)
	require.NoError(t, err)
	require.True(t, direct.Equal(agent))
	require.Equal(t, agent.Contract().ABI, direct.Contract().ABI)
	require.Equal(t, agent.ContractAddress(), direct.ContractAddress())
	require.True(t, agent.PrincipalContract().Equal(s.escrow.PrincipalContract()))
	require.Equal(t, s.escrow.PrincipalContract().Address, direct.ContractAddress())
	return s
}

func (s *scenario) lockedInPrincipal(t *testing.T) *big.Int {
	t.Helper()
	out, err := s.host.Call(s.ctx, s.escrow.PrincipalContract(), "getLockedTokens")
	require.NoError(t, err)
	return out[0].(*big.Int)
}

func (s *scenario) tokenBalance(t *testing.T, addr common.Address) *big.Int {
	t.Helper()
	balance, err := s.token.GetBalance(s.ctx, addr)
	require.NoError(t, err)
	return balance
}

func (s *scenario) locked(t *testing.T, periods uint16) *big.Int {
	t.Helper()
	locked, err := s.miner.GetLockedTokens(s.ctx, s.agent.ContractAddress(), periods)
	require.NoError(t, err)
	return locked
}

func (s *scenario) allocation(t *testing.T) *big.Int {
	t.Helper()
	allocation, err := s.agent.Allocation(s.ctx)
	require.NoError(t, err)
	return allocation
}

func TestUserEscrowAgentLifecycle(t *testing.T) {
	s := newScenario(t)
	ctx := s.ctx
	zero := new(big.Int)
	minLocked := contracts.MinAllowedLocked()

	t.Run("represents beneficiary", func(t *testing.T) {
		require.Equal(t, contracts.UserEscrow, s.agent.RegistryContractName())
		require.False(t, s.agent.Agent.Equal(s.miner.Agent))
		require.NotEqual(t, s.miner.ContractAddress(), s.agent.ContractAddress())

		principal, proxy := s.agent.PrincipalContract(), s.agent.ProxyContract()
		require.Equal(t, principal.Address, proxy.Address)
		require.NotEqual(t, principal.ABI, proxy.ABI)
		require.True(t, principal.Equal(s.agent.Contract()))
	})

	t.Run("read beneficiary", func(t *testing.T) {
		beneficiary, err := s.agent.Beneficiary(ctx)
		require.NoError(t, err)
		require.Equal(t, s.beneficiary, beneficiary)
		require.True(t, common.IsHexAddress(beneficiary.Hex()))
	})

	t.Run("read allocation", func(t *testing.T) {
		require.Equal(t, 0, s.tokenBalance(t, s.agent.ContractAddress()).Cmp(testAllocation()))
		allocation := s.allocation(t)
		require.Positive(t, allocation.Sign())
		require.Equal(t, 0, allocation.Cmp(testAllocation()))
	})

	t.Run("read timestamp", func(t *testing.T) {
		end, err := s.agent.EndTimestamp(ctx)
		require.NoError(t, err)
		now, err := s.host.Now(ctx)
		require.NoError(t, err)
		require.True(t, end.After(now), "%s is not in the future", end)
	})

	t.Run("deposit and withdraw as miner", func(t *testing.T) {
		principal := s.agent.ContractAddress()
		require.Equal(t, 0, s.locked(t, 0).Cmp(zero))
		require.Equal(t, 0, s.locked(t, 1).Cmp(zero))
		require.Equal(t, 0, s.allocation(t).Cmp(testAllocation()))

		txHash, err := s.agent.DepositAsMiner(ctx, minLocked, contracts.MinLockedPeriods)
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, txHash)

		remaining := new(big.Int).Sub(testAllocation(), minLocked)
		require.Equal(t, 0, s.tokenBalance(t, principal).Cmp(remaining))
		require.Equal(t, 0, s.allocation(t).Cmp(remaining))
		require.Equal(t, 0, s.locked(t, 0).Cmp(zero))
		require.Equal(t, 0, s.locked(t, 1).Cmp(minLocked))
		require.Equal(t, 0, s.locked(t, contracts.MinLockedPeriods).Cmp(minLocked))
		require.Equal(t, 0, s.locked(t, contracts.MinLockedPeriods+1).Cmp(zero))

		require.NoError(t, s.host.AdvanceTime(ctx, 1))
		for i := 0; i < contracts.MinLockedPeriods-1; i++ {
			_, err := s.agent.ConfirmActivity(ctx)
			require.NoError(t, err)
			require.NoError(t, s.host.AdvanceTime(ctx, 1))
		}
		require.NoError(t, s.host.AdvanceTime(ctx, 1))
		_, err = s.agent.Mint(ctx)
		require.NoError(t, err)

		require.Equal(t, 0, s.locked(t, 0).Cmp(zero))
		require.Equal(t, 0, s.tokenBalance(t, principal).Cmp(remaining))
		txHash, err = s.agent.WithdrawAsMiner(ctx, minLocked)
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, txHash)
		require.Equal(t, 0, s.tokenBalance(t, principal).Cmp(testAllocation()))

		owned, err := s.miner.OwnedTokens(ctx, principal)
		require.NoError(t, err)
		require.Positive(t, owned.Sign())
		_, err = s.agent.WithdrawAsMiner(ctx, owned)
		require.NoError(t, err)
		require.Equal(t, 1, s.tokenBalance(t, principal).Cmp(testAllocation()))
	})

	t.Run("collect policy reward", func(t *testing.T) {
		_, err := s.agent.DepositAsMiner(ctx, minLocked, contracts.MinLockedPeriods)
		require.NoError(t, err)
		require.NoError(t, s.host.AdvanceTime(ctx, 1))

		ether := big.NewInt(1e18)
		_, err = s.policy.CreatePolicy(ctx, s.author, [16]byte{0xca, 0xfe}, ether, 2, zero, []common.Address{s.agent.ContractAddress()})
		require.NoError(t, err)

		_, err = s.agent.ConfirmActivity(ctx)
		require.NoError(t, err)
		require.NoError(t, s.host.AdvanceTime(ctx, 2))
		_, err = s.agent.ConfirmActivity(ctx)
		require.NoError(t, err)

		reward, err := s.policy.GetReward(ctx, s.agent.ContractAddress())
		require.NoError(t, err)
		require.Positive(t, reward.Sign())

		before, err := s.host.BalanceAt(ctx, s.beneficiary)
		require.NoError(t, err)
		txHash, err := s.agent.CollectPolicyReward(ctx)
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, txHash)
		after, err := s.host.BalanceAt(ctx, s.beneficiary)
		require.NoError(t, err)
		require.Equal(t, 1, after.Cmp(before))
		require.Equal(t, 0, new(big.Int).Sub(after, before).Cmp(reward))
	})

	t.Run("withdraw tokens", func(t *testing.T) {
		before := s.tokenBalance(t, s.beneficiary)

		_, err := s.agent.WithdrawTokens(ctx, s.allocation(t))
		require.True(t, errors.Is(err, web3.ErrReverted), "locked allocation must not be withdrawable: %v", err)
		var revert *web3.RevertError
		require.True(t, errors.As(err, &revert), "ledger errors are returned as-is: %T", err)

		end, err := s.agent.EndTimestamp(ctx)
		require.NoError(t, err)
		now, err := s.host.Now(ctx)
		require.NoError(t, err)
		period := time.Duration(contracts.HoursPerPeriod) * time.Hour
		require.NoError(t, s.host.AdvanceTime(ctx, int(end.Sub(now)/period)+1))

		_, err = s.agent.WithdrawTokens(ctx, s.allocation(t))
		require.NoError(t, err)
		require.Equal(t, 1, s.tokenBalance(t, s.beneficiary).Cmp(before))
		require.Equal(t, 0, s.allocation(t).Sign())
	})
}

func TestUserEscrowAgentRejectsStranger(t *testing.T) {
	s := newScenario(t)
	stranger := s.host.Accounts()[5]

	_, err := agents.LookupUserEscrowAgent(s.ctx, s.host, s.allocations, s.network.Token, stranger)
	require.Error(t, err)

	other := agents.NewUserEscrowAgent(s.host, s.network.Token, web3.NewContract(contracts.UserEscrow, s.network.Linker.Address, contracts.MustABI(contracts.UserEscrow)))
	require.False(t, other.Equal(s.agent))
	require.True(t, s.agent.Equal(agents.NewUserEscrowAgent(s.host, s.network.Token, s.agent.PrincipalContract())))
}
