package native

import (
	"context"
	stdErrors "errors"
	"math/big"
	"testing"
	"time"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type network struct {
	host     *simulated.Host
	owner    common.Address
	token    web3.Contract
	escrow   web3.Contract
	policy   web3.Contract
	secret   []byte
	escrowAt common.Address
}

func deploy(t *testing.T, ctx context.Context, host *simulated.Host, from common.Address, name string, args ...any) web3.Contract {
	t.Helper()
	artifact, err := contracts.Artifact(name)
	if err != nil {
		t.Fatalf("artifact %s: %v", name, err)
	}
	result, err := host.Deploy(ctx, web3.From(from), artifact, args...)
	if err != nil {
		t.Fatalf("deploy %s: %v", name, err)
	}
	return artifact.Contract(result.ContractAddress)
}

func behind(dispatcher web3.Contract, name string) web3.Contract {
	return web3.NewContract(name, dispatcher.Address, contracts.MustABI(name))
}

func newNetwork(t *testing.T) (*network, context.Context) {
	t.Helper()
	ctx := context.Background()
	host := NewHost(simulated.WithStartTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	t.Cleanup(host.Close)
	owner := host.Accounts()[0]
	secret := []byte("0123456789abcdef0123456789abcdef")

	token := deploy(t, ctx, host, owner, contracts.NuCypherToken, contracts.TokenSupply())
	library := deploy(t, ctx, host, owner, contracts.MinerEscrow,
		token.Address, uint32(contracts.HoursPerPeriod), uint16(contracts.MinLockedPeriods),
		contracts.MinAllowedLocked(), contracts.MaxAllowedLocked(), big.NewInt(contracts.MiningCoefficient))
	escrowDispatcher := deploy(t, ctx, host, owner, contracts.Dispatcher, library.Address, crypto.Keccak256Hash(secret))
	escrow := behind(escrowDispatcher, contracts.MinerEscrow)

	if _, err := host.Send(ctx, web3.From(owner), token, "transfer", escrow.Address, contracts.RewardReserve()); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}
	if _, err := host.Send(ctx, web3.From(owner), escrow, "initialize", contracts.RewardReserve()); err != nil {
		t.Fatalf("initialize escrow: %v", err)
	}

	policyLibrary := deploy(t, ctx, host, owner, contracts.PolicyManager, escrow.Address)
	policyDispatcher := deploy(t, ctx, host, owner, contracts.Dispatcher, policyLibrary.Address, crypto.Keccak256Hash(secret))
	policy := behind(policyDispatcher, contracts.PolicyManager)
	if _, err := host.Send(ctx, web3.From(owner), escrow, "setPolicyManager", policy.Address); err != nil {
		t.Fatalf("set policy manager: %v", err)
	}

	return &network{
		host:     host,
		owner:    owner,
		token:    token,
		escrow:   escrow,
		policy:   policy,
		secret:   secret,
		escrowAt: library.Address,
	}, ctx
}

func (n *network) balance(t *testing.T, ctx context.Context, addr common.Address) *big.Int {
	t.Helper()
	out, err := n.host.Call(ctx, n.token, "balanceOf", addr)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	return out[0].(*big.Int)
}

func (n *network) locked(t *testing.T, ctx context.Context, miner common.Address, periods uint16) *big.Int {
	t.Helper()
	out, err := n.host.Call(ctx, n.escrow, "getLockedTokens", miner, periods)
	if err != nil {
		t.Fatalf("getLockedTokens: %v", err)
	}
	return out[0].(*big.Int)
}

func (n *network) stake(t *testing.T, ctx context.Context, miner common.Address, value *big.Int, periods uint16) {
	t.Helper()
	if _, err := n.host.Send(ctx, web3.From(n.owner), n.token, "transfer", miner, value); err != nil {
		t.Fatalf("fund miner: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.token, "approve", n.escrow.Address, value); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "deposit", value, periods); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestTokenTransferAndAllowance(t *testing.T) {
	n, ctx := newNetwork(t)
	alice, bob := n.host.Accounts()[1], n.host.Accounts()[2]

	if _, err := n.host.Send(ctx, web3.From(n.owner), n.token, "transfer", alice, big.NewInt(100)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	_, err := n.host.Send(ctx, web3.From(bob), n.token, "transferFrom", alice, bob, big.NewInt(10))
	if !stdErrors.Is(err, web3.ErrReverted) {
		t.Fatalf("expected revert without allowance, got %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(alice), n.token, "approve", bob, big.NewInt(10)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(bob), n.token, "transferFrom", alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := n.balance(t, ctx, alice); got.Cmp(big.NewInt(90)) != 0 {
		t.Fatalf("unexpected alice balance %s", got)
	}
	if got := n.balance(t, ctx, bob); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected bob balance %s", got)
	}
}

func TestRevertedTransactionLeavesNoTrace(t *testing.T) {
	n, ctx := newNetwork(t)
	alice := n.host.Accounts()[1]
	before := n.balance(t, ctx, n.owner)

	_, err := n.host.Send(ctx, web3.From(alice), n.token, "transfer", n.owner, big.NewInt(1))
	var revert *web3.RevertError
	if !stdErrors.As(err, &revert) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if revert.Contract != contracts.NuCypherToken || revert.Method != "transfer" {
		t.Fatalf("unexpected revert location %+v", revert)
	}
	if got := n.balance(t, ctx, n.owner); got.Cmp(before) != 0 {
		t.Fatalf("balance changed after revert: %s != %s", got, before)
	}
}

func TestDepositLocksFollowingPeriods(t *testing.T) {
	n, ctx := newNetwork(t)
	miner := n.host.Accounts()[3]
	n.stake(t, ctx, miner, contracts.MinAllowedLocked(), contracts.MinLockedPeriods)

	cases := []struct {
		periods uint16
		want    *big.Int
	}{
		{0, new(big.Int)},
		{1, contracts.MinAllowedLocked()},
		{contracts.MinLockedPeriods, contracts.MinAllowedLocked()},
		{contracts.MinLockedPeriods + 1, new(big.Int)},
	}
	for _, tc := range cases {
		if got := n.locked(t, ctx, miner, tc.periods); got.Cmp(tc.want) != 0 {
			t.Fatalf("locked after %d periods = %s, want %s", tc.periods, got, tc.want)
		}
	}

	_, err := n.host.Send(ctx, web3.From(miner), n.escrow, "withdraw", big.NewInt(1))
	if !stdErrors.Is(err, web3.ErrReverted) {
		t.Fatalf("expected locked withdraw to revert, got %v", err)
	}
	if _, err := n.host.Call(ctx, n.escrow, "getLockedTokens", miner, uint16(0xffff)); !stdErrors.Is(err, web3.ErrReverted) {
		t.Fatalf("expected period past the uint16 range to revert, got %v", err)
	}
}

func TestMiningPaysRewardsAfterLockExpires(t *testing.T) {
	n, ctx := newNetwork(t)
	miner := n.host.Accounts()[3]
	stake := contracts.MinAllowedLocked()
	n.stake(t, ctx, miner, stake, contracts.MinLockedPeriods)

	if err := n.host.AdvanceTime(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	for i := 0; i < contracts.MinLockedPeriods-1; i++ {
		if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "confirmActivity"); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
		if err := n.host.AdvanceTime(ctx, 1); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if err := n.host.AdvanceTime(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "mint"); err != nil {
		t.Fatalf("mint: %v", err)
	}

	out, err := n.host.Call(ctx, n.escrow, "getAllTokens", miner)
	if err != nil {
		t.Fatalf("getAllTokens: %v", err)
	}
	owned := out[0].(*big.Int)
	if owned.Cmp(stake) <= 0 {
		t.Fatalf("expected rewards on top of stake, owned %s", owned)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "withdraw", owned); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := n.balance(t, ctx, miner); got.Cmp(owned) != 0 {
		t.Fatalf("unexpected miner balance %s", got)
	}
}

func TestDispatcherUpgradeRequiresSecret(t *testing.T) {
	n, ctx := newNetwork(t)
	replacement := deploy(t, ctx, n.host, n.owner, contracts.MinerEscrow,
		n.token.Address, uint32(contracts.HoursPerPeriod), uint16(contracts.MinLockedPeriods),
		contracts.MinAllowedLocked(), contracts.MaxAllowedLocked(), big.NewInt(contracts.MiningCoefficient))
	dispatcher := web3.NewContract(contracts.Dispatcher, n.escrow.Address, contracts.MustABI(contracts.Dispatcher))
	next := crypto.Keccak256Hash([]byte("next secret"))

	_, err := n.host.Send(ctx, web3.From(n.owner), dispatcher, "upgrade", replacement.Address, []byte("wrong"), next)
	if reason, ok := web3.RevertReason(err); !ok || reason != "secret does not match" {
		t.Fatalf("expected secret mismatch, got %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(n.owner), dispatcher, "upgrade", replacement.Address, n.secret, next); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	out, err := n.host.Call(ctx, dispatcher, "target")
	if err != nil || out[0].(common.Address) != replacement.Address {
		t.Fatalf("unexpected target %v %v", out, err)
	}
	out, err = n.host.Call(ctx, n.escrow, "reservedReward")
	if err != nil || out[0].(*big.Int).Cmp(contracts.RewardReserve()) != 0 {
		t.Fatalf("storage lost across upgrade: %v %v", out, err)
	}

	if _, err := n.host.Send(ctx, web3.From(n.owner), dispatcher, "rollback", []byte("next secret"), common.Hash{}); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	out, err = n.host.Call(ctx, dispatcher, "target")
	if err != nil || out[0].(common.Address) != n.escrowAt {
		t.Fatalf("unexpected target after rollback %v %v", out, err)
	}
}

func TestPolicyRewardFollowsMinedPeriods(t *testing.T) {
	n, ctx := newNetwork(t)
	miner, client := n.host.Accounts()[3], n.host.Accounts()[4]
	n.stake(t, ctx, miner, contracts.MinAllowedLocked(), contracts.MinLockedPeriods)
	if err := n.host.AdvanceTime(ctx, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	ether := big.NewInt(1e18)
	id := [16]byte{1}
	opts := web3.TxOpts{From: client, Value: ether}
	if _, err := n.host.Send(ctx, opts, n.policy, "createPolicy", id, uint16(2), new(big.Int), []common.Address{miner}); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "confirmActivity"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := n.host.AdvanceTime(ctx, 2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := n.host.Send(ctx, web3.From(miner), n.escrow, "confirmActivity"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	out, err := n.host.Call(ctx, n.policy, "nodeReward", miner)
	if err != nil {
		t.Fatalf("nodeReward: %v", err)
	}
	half := new(big.Int).Div(ether, big.NewInt(2))
	if out[0].(*big.Int).Cmp(half) != 0 {
		t.Fatalf("expected one period of reward, got %s", out[0])
	}

	before, _ := n.host.BalanceAt(ctx, miner)
	if _, err := n.host.Send(ctx, web3.From(miner), n.policy, "withdraw"); err != nil {
		t.Fatalf("withdraw reward: %v", err)
	}
	after, _ := n.host.BalanceAt(ctx, miner)
	if new(big.Int).Sub(after, before).Cmp(half) != 0 {
		t.Fatalf("unexpected ether gain %s", new(big.Int).Sub(after, before))
	}
}
