package native

import (
	"math/big"

	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/web3/simulated"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// minerEscrow 按周期锁定矿工质押并从储备中发放挖矿奖励。构造参数保存在程序中且不可变，
// Dispatcher 切换程序时不会改动存储。
type minerEscrow struct {
	token            common.Address
	secondsPerPeriod int64
	minLockedPeriods uint16
	minAllowed       *big.Int
	maxAllowed       *big.Int
	coefficient      *big.Int
}

type stake struct {
	first uint16
	last  uint16
	value *big.Int
}

type minerInfo struct {
	owned  *big.Int
	stakes []stake
	// confirmed 记录矿工在每个周期锁定的数量。
	confirmed map[uint16]*big.Int
}

type escrowState struct {
	owner         common.Address
	policyManager common.Address
	initialized   bool
	reserve       *big.Int
	miners        map[common.Address]*minerInfo
	order         []common.Address
	// lockedPerPeriod 是每个周期所有矿工已确认质押的总量。
	lockedPerPeriod map[uint16]*big.Int
}

func newMinerEscrow(f *simulated.Frame, args []any) (simulated.Code, simulated.State, error) {
	in := arguments(args)
	code := &minerEscrow{
		token:            in.address(0),
		secondsPerPeriod: int64(in.uint32(1)) * 3600,
		minLockedPeriods: in.uint16(2),
		minAllowed:       in.uint256(3),
		maxAllowed:       in.uint256(4),
		coefficient:      in.uint256(5),
	}
	if err := simulated.Require(hasCode(f, code.token), "token is not a contract"); err != nil {
		return nil, nil, err
	}
	if err := simulated.Require(code.secondsPerPeriod > 0 && code.minLockedPeriods > 0, "invalid period settings"); err != nil {
		return nil, nil, err
	}
	if err := simulated.Require(code.minAllowed.Cmp(code.maxAllowed) <= 0, "min allowed exceeds max allowed"); err != nil {
		return nil, nil, err
	}
	if err := simulated.Require(code.coefficient.Sign() > 0, "mining coefficient must be positive"); err != nil {
		return nil, nil, err
	}
	return code, code.InitialState(f), nil
}

func (e *minerEscrow) InitialState(f *simulated.Frame) simulated.State {
	return &escrowState{
		owner:           f.Sender,
		reserve:         new(big.Int),
		miners:          make(map[common.Address]*minerInfo),
		lockedPerPeriod: make(map[uint16]*big.Int),
	}
}

func (e *minerEscrow) VerifyState(state simulated.State) error {
	_, ok := state.(*escrowState)
	return simulated.Require(ok, "storage layout is not a miner escrow")
}

func (s *escrowState) Clone() simulated.State {
	miners := make(map[common.Address]*minerInfo, len(s.miners))
	for addr, info := range s.miners {
		stakes := make([]stake, len(info.stakes))
		for i, st := range info.stakes {
			stakes[i] = stake{first: st.first, last: st.last, value: cloneBig(st.value)}
		}
		confirmed := make(map[uint16]*big.Int, len(info.confirmed))
		for p, v := range info.confirmed {
			confirmed[p] = cloneBig(v)
		}
		miners[addr] = &minerInfo{owned: cloneBig(info.owned), stakes: stakes, confirmed: confirmed}
	}
	locked := make(map[uint16]*big.Int, len(s.lockedPerPeriod))
	for p, v := range s.lockedPerPeriod {
		locked[p] = cloneBig(v)
	}
	return &escrowState{
		owner:           s.owner,
		policyManager:   s.policyManager,
		initialized:     s.initialized,
		reserve:         cloneBig(s.reserve),
		miners:          miners,
		order:           append([]common.Address(nil), s.order...),
		lockedPerPeriod: locked,
	}
}

func (e *minerEscrow) ABI() abi.ABI { return escrowABI }

func (e *minerEscrow) Invoke(f *simulated.Frame, state simulated.State, method string, args []any) ([]any, error) {
	st, ok := state.(*escrowState)
	if !ok {
		return nil, simulated.Require(false, "storage layout is not a miner escrow")
	}
	in := arguments(args)
	switch method {
	case "owner":
		return single(st.owner), nil
	case "token":
		return single(e.token), nil
	case "policyManager":
		return single(st.policyManager), nil
	case "reservedReward":
		return single(cloneBig(st.reserve)), nil
	case "getCurrentPeriod":
		return single(e.currentPeriod(f)), nil
	case "getMiners":
		return single(append([]common.Address(nil), st.order...)), nil
	case "getAllTokens":
		if info, ok := st.miners[in.address(0)]; ok {
			return single(cloneBig(info.owned)), nil
		}
		return single(new(big.Int)), nil
	case "getLockedTokens":
		period := uint32(e.currentPeriod(f)) + uint32(in.uint16(1))
		if err := simulated.Require(period <= 0xffff, "period is out of range"); err != nil {
			return nil, err
		}
		if info, ok := st.miners[in.address(0)]; ok {
			return single(info.lockedAt(uint16(period))), nil
		}
		return single(new(big.Int)), nil
	case "initialize":
		return nil, e.initialize(f, st, in.uint256(0))
	case "setPolicyManager":
		return nil, e.setPolicyManager(f, st, in.address(0))
	case "deposit":
		return nil, e.deposit(f, st, in.uint256(0), in.uint16(1))
	case "confirmActivity":
		return nil, e.confirmActivity(f, st)
	case "mint":
		info, err := st.miner(f.Sender)
		if err != nil {
			return nil, err
		}
		return nil, e.mint(f, st, f.Sender, info)
	case "withdraw":
		return nil, e.withdraw(f, st, in.uint256(0))
	}
	return nil, simulated.UnknownMethod(contracts.MinerEscrow, method)
}

func (e *minerEscrow) currentPeriod(f *simulated.Frame) uint16 {
	return uint16(f.Now().Unix() / e.secondsPerPeriod)
}

func (e *minerEscrow) initialize(f *simulated.Frame, st *escrowState, reserve *big.Int) error {
	if err := onlyOwner(f, st.owner); err != nil {
		return err
	}
	if err := simulated.Require(!st.initialized, "escrow is already initialized"); err != nil {
		return err
	}
	balance, err := tokenBalance(f, e.token, f.Self)
	if err != nil {
		return err
	}
	if err := simulated.Require(reserve.Sign() > 0 && balance.Cmp(reserve) >= 0, "escrow holds less than the reserved reward"); err != nil {
		return err
	}
	st.reserve = reserve
	st.initialized = true
	return nil
}

func (e *minerEscrow) setPolicyManager(f *simulated.Frame, st *escrowState, manager common.Address) error {
	if err := onlyOwner(f, st.owner); err != nil {
		return err
	}
	if err := simulated.Require(st.policyManager == (common.Address{}), "policy manager is already set"); err != nil {
		return err
	}
	if err := simulated.Require(hasCode(f, manager), "policy manager is not a contract"); err != nil {
		return err
	}
	st.policyManager = manager
	return nil
}

func (e *minerEscrow) deposit(f *simulated.Frame, st *escrowState, value *big.Int, periods uint16) error {
	if err := simulated.Require(st.initialized, "escrow is not initialized"); err != nil {
		return err
	}
	if err := simulated.Require(value.Cmp(e.minAllowed) >= 0, "deposit is below the minimum allowed"); err != nil {
		return err
	}
	if err := simulated.Require(periods >= e.minLockedPeriods, "lock is shorter than %d periods", e.minLockedPeriods); err != nil {
		return err
	}
	current := e.currentPeriod(f)
	next := current + 1
	if err := simulated.Require(uint32(current)+uint32(periods) <= 0xffff, "lock exceeds the period range"); err != nil {
		return err
	}

	info, known := st.miners[f.Sender]
	if !known {
		info = &minerInfo{owned: new(big.Int), confirmed: make(map[uint16]*big.Int)}
	}
	locked := new(big.Int).Add(info.lockedAt(next), value)
	if err := simulated.Require(locked.Cmp(e.maxAllowed) <= 0, "locked amount exceeds the maximum allowed"); err != nil {
		return err
	}
	if err := callToken(f, e.token, "transferFrom", f.Sender, f.Self, value); err != nil {
		return err
	}

	if !known {
		st.miners[f.Sender] = info
		st.order = append(st.order, f.Sender)
	}
	info.owned.Add(info.owned, value)
	info.stakes = append(info.stakes, stake{first: next, last: current + periods, value: value})
	st.confirm(info, next)
	return nil
}

func (e *minerEscrow) confirmActivity(f *simulated.Frame, st *escrowState) error {
	info, err := st.miner(f.Sender)
	if err != nil {
		return err
	}
	if err := e.mint(f, st, f.Sender, info); err != nil {
		return err
	}
	next := e.currentPeriod(f) + 1
	if err := simulated.Require(info.lockedAt(next).Sign() > 0, "no tokens locked for the next period"); err != nil {
		return err
	}
	st.confirm(info, next)
	return nil
}

// mint 为每个已结束的确认周期发放奖励，并逐一通知策略管理合约。
func (e *minerEscrow) mint(f *simulated.Frame, st *escrowState, miner common.Address, info *minerInfo) error {
	current := e.currentPeriod(f)
	for _, period := range sortedPeriods(info.confirmed) {
		if period >= current {
			break
		}
		reward := new(big.Int)
		if total := st.lockedPerPeriod[period]; total != nil && total.Sign() > 0 {
			reward.Mul(st.reserve, info.confirmed[period])
			reward.Div(reward, new(big.Int).Mul(total, e.coefficient))
		}
		if reward.Cmp(st.reserve) > 0 {
			reward.Set(st.reserve)
		}
		st.reserve.Sub(st.reserve, reward)
		info.owned.Add(info.owned, reward)
		delete(info.confirmed, period)

		if st.policyManager != (common.Address{}) {
			if _, err := f.Call(st.policyManager, policyABI, "updateReward", miner, period); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *minerEscrow) withdraw(f *simulated.Frame, st *escrowState, value *big.Int) error {
	info, err := st.miner(f.Sender)
	if err != nil {
		return err
	}
	current := e.currentPeriod(f)
	available := new(big.Int).Sub(info.owned, info.lockedFrom(current))
	if err := simulated.Require(value.Sign() > 0 && available.Cmp(value) >= 0, "not enough unlocked tokens"); err != nil {
		return err
	}
	info.owned.Sub(info.owned, value)
	info.prune(current)
	return callToken(f, e.token, "transfer", f.Sender, value)
}

func (s *escrowState) miner(addr common.Address) (*minerInfo, error) {
	info, ok := s.miners[addr]
	if !ok {
		return nil, simulated.Require(false, "%s is not a miner", addr.Hex())
	}
	return info, nil
}

// confirm 记录矿工在 period 的锁定数量并同步更新周期总量。
func (s *escrowState) confirm(info *minerInfo, period uint16) {
	amount := info.lockedAt(period)
	delta := new(big.Int).Set(amount)
	if previous, ok := info.confirmed[period]; ok {
		delta.Sub(delta, previous)
	}
	info.confirmed[period] = amount
	total := s.lockedPerPeriod[period]
	if total == nil {
		total = new(big.Int)
	}
	s.lockedPerPeriod[period] = total.Add(total, delta)
}

func (m *minerInfo) lockedAt(period uint16) *big.Int {
	sum := new(big.Int)
	for _, st := range m.stakes {
		if st.first <= period && period <= st.last {
			sum.Add(sum, st.value)
		}
	}
	return sum
}

// lockedFrom 汇总在 period 及之后仍处于锁定的质押。
func (m *minerInfo) lockedFrom(period uint16) *big.Int {
	sum := new(big.Int)
	for _, st := range m.stakes {
		if st.last >= period {
			sum.Add(sum, st.value)
		}
	}
	return sum
}

func (m *minerInfo) prune(period uint16) {
	kept := m.stakes[:0]
	for _, st := range m.stakes {
		if st.last >= period {
			kept = append(kept, st)
		}
	}
	m.stakes = kept
}
