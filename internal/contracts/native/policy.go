package native

import (
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// policyManager 托管策略费用，并在矿工托管合约报告挖矿周期时按周期记入节点。
type policyManager struct {
	escrow common.Address
}

type policy struct {
	client    common.Address
	nodes     []common.Address
	rate      *big.Int
	first     *big.Int
	start     uint16
	last      uint16
	disabled  bool
	revokedAt uint16
}

type policyState struct {
	owner    common.Address
	policies map[[16]byte]*policy
	rewards  map[common.Address]*big.Int
}

func newPolicyManager(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	code := &policyManager{escrow: arguments(args).address(0)}
	if err := simulated.Require(hasCode(f, code.escrow), "escrow is not a contract"); err != nil {
		return nil, nil, err
	}
	return code, code.InitialState(f), nil
}

func (p *policyManager) InitialState(f *simulated.Frame) simulated.State {
	return &policyState{
		owner:    f.Sender,
		policies: make(map[[16]byte]*policy),
		rewards:  make(map[common.Address]*big.Int),
	}
}

func (p *policyManager) VerifyState(state simulated.State) error {
	_, ok := state.(*policyState)
	return simulated.Require(ok, "storage layout is not a policy manager")
}

func (s *policyState) Clone() simulated.State {
	policies := make(map[[16]byte]*policy, len(s.policies))
	for id, pol := range s.policies {
		cloned := *pol
		cloned.nodes = append([]common.Address(nil), pol.nodes...)
		cloned.rate = cloneBig(pol.rate)
		cloned.first = cloneBig(pol.first)
		policies[id] = &cloned
	}
	return &policyState{owner: s.owner, policies: policies, rewards: cloneBalances(s.rewards)}
}

func (p *policyManager) ABI() abi.ABI { return policyABI }

func (p *policyManager) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st, ok := state.(*policyState)
	if !ok {
		return nil, simulated.Require(false, "storage layout is not a policy manager")
	}
	in := arguments(args)
	switch method {
	case "owner":
		return single(st.owner), nil
	case "escrow":
		return single(p.escrow), nil
	case "nodeReward":
		return single(cloneBig(st.rewards[in.address(0)])), nil
	case "policies":
		pol, ok := st.policies[in.bytes16(0)]
		if !ok {
			return []any{common.Address{}, new(big.Int), new(big.Int), uint16(0), uint16(0), false}, nil
		}
		return []any{pol.client, cloneBig(pol.rate), cloneBig(pol.first), pol.start, pol.last, pol.disabled}, nil
	case "createPolicy":
		return nil, p.createPolicy(f, st, in.bytes16(0), in.uint16(1), in.uint256(2), in.addresses(3))
	case "revokePolicy":
		return nil, p.revokePolicy(f, st, in.bytes16(0))
	case "updateReward":
		return nil, p.updateReward(f, st, in.address(0), in.uint16(1))
	case "withdraw":
		reward := cloneBig(st.rewards[f.Sender])
		if err := simulated.Require(reward.Sign() > 0, "no reward to withdraw"); err != nil {
			return nil, err
		}
		delete(st.rewards, f.Sender)
		if err := f.Transfer(f.Sender, reward); err != nil {
			return nil, err
		}
		return single(reward), nil
	}
	return nil, simulated.UnknownMethod(contracts.PolicyManager, method)
}

func (p *policyManager) currentPeriod(f *simulated.Frame) (uint16, error) {
	out, err := f.Call(p.escrow, escrowABI, "getCurrentPeriod")
	if err != nil {
		return 0, err
	}
	return out[0].(uint16), nil
}

// createPolicy 将附带的金额平均分给 nodes。每个节点当前周期获得 firstReward，
// 之后每个周期获得相同的费率，且必须恰好整除。
func (p *policyManager) createPolicy(f *simulated.Frame, st *policyState, id [16]byte, periods uint16, firstReward *big.Int, nodes []common.Address) error {
	if err := simulated.Require(st.policies[id] == nil, "policy already exists"); err != nil {
		return err
	}
	if err := simulated.Require(periods > 0 && len(nodes) > 0 && f.Value.Sign() > 0, "policy needs periods, nodes and value"); err != nil {
		return err
	}
	perNode, rem := new(big.Int).DivMod(f.Value, big.NewInt(int64(len(nodes))), new(big.Int))
	if err := simulated.Require(rem.Sign() == 0 && perNode.Cmp(firstReward) > 0, "value does not split between nodes"); err != nil {
		return err
	}
	rate, rem := new(big.Int).DivMod(new(big.Int).Sub(perNode, firstReward), big.NewInt(int64(periods)), new(big.Int))
	if err := simulated.Require(rem.Sign() == 0 && rate.Sign() > 0, "value does not split between periods"); err != nil {
		return err
	}

	current, err := p.currentPeriod(f)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		out, err := f.Call(p.escrow, escrowABI, "getLockedTokens", node, periods)
		if err != nil {
			return err
		}
		if err := simulated.Require(out[0].(*big.Int).Sign() > 0, "node %s has no tokens locked for the policy", node.Hex()); err != nil {
			return err
		}
	}

	st.policies[id] = &policy{
		client: f.Sender,
		nodes:  append([]common.Address(nil), nodes...),
		rate:   rate,
		first:  firstReward,
		start:  current + 1,
		last:   current + periods,
	}
	return nil
}

// revokePolicy 停用策略并退回尚未开始的周期的费用。
func (p *policyManager) revokePolicy(f *simulated.Frame, st *policyState, id [16]byte) error {
	pol, ok := st.policies[id]
	if err := simulated.Require(ok && !pol.disabled, "policy is not active"); err != nil {
		return err
	}
	if err := simulated.Require(pol.client == f.Sender, "caller is not the policy client"); err != nil {
		return err
	}
	current, err := p.currentPeriod(f)
	if err != nil {
		return err
	}
	from := pol.start
	if current+1 > from {
		from = current + 1
	}
	refund := new(big.Int)
	if pol.last >= from {
		refund.Mul(pol.rate, big.NewInt(int64(pol.last-from+1)))
		refund.Mul(refund, big.NewInt(int64(len(pol.nodes))))
	}
	pol.disabled = true
	pol.revokedAt = current
	return f.Transfer(pol.client, refund)
}

func (p *policyManager) updateReward(f *simulated.Frame, st *policyState, node common.Address, period uint16) error {
	if err := simulated.Require(f.Sender == p.escrow, "caller is not the escrow"); err != nil {
		return err
	}
	earned := new(big.Int)
	for _, pol := range st.policies {
		if pol.disabled && period > pol.revokedAt {
			continue
		}
		if !pol.hasNode(node) {
			continue
		}
		switch {
		case period+1 == pol.start:
			earned.Add(earned, pol.first)
		case pol.start <= period && period <= pol.last:
			earned.Add(earned, pol.rate)
		}
	}
	if earned.Sign() == 0 {
		return nil
	}
	st.rewards[node] = new(big.Int).Add(cloneBig(st.rewards[node]), earned)
	return nil
}

func (pol *policy) hasNode(node common.Address) bool {
	for _, n := range pol.nodes {
		if n == node {
			return true
		}
	}
	return false
}
