package simulated

import (
	"context"
	"encoding/binary"
	stdErrors "errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type account struct {
	code    Code
	state   State
	balance *big.Int
	nonce   uint64
}

func (a *account) clone() *account {
	cloned := &account{code: a.code, balance: new(big.Int).Set(a.balance), nonce: a.nonce}
	if a.state != nil {
		cloned.state = a.state.Clone()
	}
	return cloned
}

// Host 是进程内账本，以标准 ABI 编码执行原生 Go 合约程序。交易串行且原子地执行。
type Host struct {
	mu             sync.Mutex
	factories      map[string]Factory
	accounts       map[common.Address]*account
	eoas           []common.Address
	chainID        *big.Int
	clock          time.Time
	block          uint64
	secondsPerTerm int64
	closed         bool
}

// Option 定义 Host 的可选配置。
type Option func(*hostConfig)

type hostConfig struct {
	factories      map[string]Factory
	accounts       int
	initialBalance *big.Int
	chainID        *big.Int
	start          time.Time
	hoursPerPeriod int64
}

// WithFactories 按产物名称注册原生程序。
func WithFactories(factories map[string]Factory) Option {
	return func(c *hostConfig) {
		for name, factory := range factories {
			c.factories[name] = factory
		}
	}
}

// WithAccounts 设置预置余额的外部账户数量。
func WithAccounts(n int) Option {
	return func(c *hostConfig) {
		if n > 0 {
			c.accounts = n
		}
	}
}

// WithInitialBalance 设置每个生成账户的 ETH 余额。
func WithInitialBalance(wei *big.Int) Option {
	return func(c *hostConfig) {
		if wei != nil {
			c.initialBalance = new(big.Int).Set(wei)
		}
	}
}

// WithChainID 覆盖链 ID。
func WithChainID(id *big.Int) Option {
	return func(c *hostConfig) {
		if id != nil {
			c.chainID = new(big.Int).Set(id)
		}
	}
}

// WithStartTime 设置创世区块的时间戳。
func WithStartTime(ts time.Time) Option {
	return func(c *hostConfig) {
		c.start = ts
	}
}

// WithHoursPerPeriod 设置 AdvanceTime 使用的质押周期长度。
func WithHoursPerPeriod(hours int64) Option {
	return func(c *hostConfig) {
		if hours > 0 {
			c.hoursPerPeriod = hours
		}
	}
}

// NewHost 创建 Host，账户按序号确定性生成并预置余额。
func NewHost(opts ...Option) *Host {
	ether := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	cfg := &hostConfig{
		factories:      make(map[string]Factory),
		accounts:       10,
		initialBalance: new(big.Int).Mul(big.NewInt(1_000_000), ether),
		chainID:        big.NewInt(1337),
		start:          time.Now().UTC().Truncate(time.Second),
		hoursPerPeriod: 24,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	h := &Host{
		factories:      cfg.factories,
		accounts:       make(map[common.Address]*account),
		chainID:        cfg.chainID,
		clock:          cfg.start,
		secondsPerTerm: cfg.hoursPerPeriod * 3600,
	}
	for i := 0; i < cfg.accounts; i++ {
		addr := deriveAccount(i)
		h.eoas = append(h.eoas, addr)
		h.accounts[addr] = &account{balance: new(big.Int).Set(cfg.initialBalance)}
	}
	return h
}

func deriveAccount(index int) common.Address {
	seed := make([]byte, 8)
	binary.BigEndian.PutUint64(seed, uint64(index))
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("stake-escrow-simulated"), seed))
	if err != nil {
		// keccak 输出几乎总是合法的私钥标量。
		panic(fmt.Sprintf("derive account %d: %v", index, err))
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Accounts 返回预置余额的外部账户。
func (h *Host) Accounts() []common.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]common.Address, len(h.eoas))
	copy(out, h.eoas)
	return out
}

// Call 执行只读调用，所有状态变更都会被丢弃。
func (h *Host) Call(ctx context.Context, contract web3.Contract, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := web3.ParseABI(contract.ABI)
	if err != nil {
		return nil, err
	}
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码调用参数失败: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureOpen(); err != nil {
		return nil, err
	}

	snapshot := h.snapshot()
	defer h.restore(snapshot)

	frame := &Frame{host: h, Self: contract.Address, Value: new(big.Int)}
	out, err := h.execute(frame, contract.Address, input)
	if err != nil {
		return nil, annotate(err, contract, method)
	}
	results, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("解码返回值失败: %w", err)
	}
	return results, nil
}

// Send 执行一笔交易并单独打包成一个区块。
func (h *Host) Send(ctx context.Context, opts web3.TxOpts, contract web3.Contract, method string, args ...any) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := web3.ParseABI(contract.ABI)
	if err != nil {
		return nil, err
	}
	input, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码交易参数失败: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureOpen(); err != nil {
		return nil, err
	}
	sender, err := h.sender(opts.From)
	if err != nil {
		return nil, err
	}

	value := new(big.Int)
	if opts.Value != nil {
		value.Set(opts.Value)
	}

	snapshot := h.snapshot()
	txHash := h.txHash(opts.From, sender.nonce, contract.Address, input)
	sender.nonce++

	if value.Sign() > 0 {
		if err := h.transfer(opts.From, contract.Address, value); err != nil {
			h.restore(snapshot)
			return nil, annotate(err, contract, method)
		}
	}
	frame := &Frame{host: h, Sender: opts.From, Self: contract.Address, Value: value}
	if _, err := h.execute(frame, contract.Address, input); err != nil {
		h.restore(snapshot)
		return nil, annotate(err, contract, method)
	}
	return h.mine(txHash, common.Address{}), nil
}

// Deploy 构造以 artifact.Name 注册的原生程序。
func (h *Host) Deploy(ctx context.Context, opts web3.TxOpts, artifact web3.Artifact, args ...any) (web3.DeploymentResult, error) {
	if err := ctx.Err(); err != nil {
		return web3.DeploymentResult{}, err
	}
	parsed, err := web3.ParseABI(artifact.ABI)
	if err != nil {
		return web3.DeploymentResult{}, err
	}
	encoded, err := parsed.Pack("", args...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("编码构造参数失败: %w", err)
	}
	decoded, err := parsed.Constructor.Inputs.Unpack(encoded)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解码构造参数失败: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureOpen(); err != nil {
		return web3.DeploymentResult{}, err
	}
	factory, ok := h.factories[artifact.Name]
	if !ok {
		return web3.DeploymentResult{}, fmt.Errorf("未注册的合约程序: %s", artifact.Name)
	}
	sender, err := h.sender(opts.From)
	if err != nil {
		return web3.DeploymentResult{}, err
	}

	snapshot := h.snapshot()
	address := crypto.CreateAddress(opts.From, sender.nonce)
	txHash := h.txHash(opts.From, sender.nonce, common.Address{}, append([]byte(artifact.Name), encoded...))
	sender.nonce++

	value := new(big.Int)
	if opts.Value != nil {
		value.Set(opts.Value)
	}
	h.accounts[address] = &account{balance: new(big.Int)}
	if value.Sign() > 0 {
		if err := h.transfer(opts.From, address, value); err != nil {
			h.restore(snapshot)
			return web3.DeploymentResult{}, err
		}
	}

	frame := &Frame{host: h, Sender: opts.From, Self: address, Value: value}
	code, state, err := safeConstruct(factory, frame, decoded)
	if err != nil {
		h.restore(snapshot)
		return web3.DeploymentResult{}, annotate(err, artifact.Contract(address), "constructor")
	}
	h.accounts[address].code = code
	h.accounts[address].state = state

	return web3.DeploymentResult{ContractAddress: address, Receipt: h.mine(txHash, address)}, nil
}

// AdvanceTime 将链上时钟前移若干个完整周期并打包一个空区块。
func (h *Host) AdvanceTime(ctx context.Context, periods int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if periods < 0 {
		return fmt.Errorf("时间只能向前推进: %d", periods)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.ensureOpen(); err != nil {
		return err
	}
	h.clock = h.clock.Add(time.Duration(int64(periods)*h.secondsPerTerm) * time.Second)
	h.block++
	return nil
}

// BalanceAt 返回 address 的 ETH 余额。
func (h *Host) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if acct, ok := h.accounts[address]; ok {
		return new(big.Int).Set(acct.balance), nil
	}
	return new(big.Int), nil
}

// Now 返回最新区块的时间戳。
func (h *Host) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock, nil
}

// FetchChainSnapshot 返回链 ID 与最新区块。
func (h *Host) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return web3.ChainSnapshot{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return web3.ChainSnapshot{
		ChainID:     "0x" + h.chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", h.block),
		BlockTime:   h.clock,
		Notes:       "simulated host",
	}, nil
}

// Close 将 Host 标记为不可用。
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *Host) ensureOpen() error {
	if h.closed {
		return stdErrors.New("模拟链已关闭")
	}
	return nil
}

func (h *Host) sender(addr common.Address) (*account, error) {
	acct, ok := h.accounts[addr]
	if !ok || acct.code != nil {
		return nil, fmt.Errorf("未知的发送账户: %s", addr.Hex())
	}
	return acct, nil
}

func (h *Host) execute(f *Frame, to common.Address, input []byte) ([]byte, error) {
	acct, ok := h.accounts[to]
	if !ok || acct.code == nil {
		if len(input) == 0 {
			return nil, nil
		}
		return nil, web3.Revert("call to non-contract %s", to.Hex())
	}
	return h.run(f, acct.code, acct.state, input)
}

func (h *Host) run(f *Frame, code Code, state State, input []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = web3.Revert("panic: %v", r)
		}
	}()

	if len(input) < 4 {
		if fb, ok := code.(Fallback); ok {
			return fb.Fallback(f, state, input)
		}
		if len(input) == 0 {
			return nil, nil
		}
		return nil, web3.Revert("calldata too short")
	}
	iface := code.ABI()
	method, lookupErr := iface.MethodById(input[:4])
	if lookupErr != nil {
		if fb, ok := code.(Fallback); ok {
			return fb.Fallback(f, state, input)
		}
		return nil, web3.Revert("unknown selector %x", input[:4])
	}
	if f.Value != nil && f.Value.Sign() > 0 && !method.IsPayable() {
		return nil, web3.Revert("%s is not payable", method.Name)
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, web3.Revert("malformed calldata for %s: %v", method.Name, err)
	}
	results, err := code.Invoke(f, state, method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(results...)
}

func (h *Host) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	src, ok := h.accounts[from]
	if !ok || src.balance.Cmp(amount) < 0 {
		return web3.Revert("insufficient funds for transfer")
	}
	dst, ok := h.accounts[to]
	if !ok {
		dst = &account{balance: new(big.Int)}
		h.accounts[to] = dst
	}
	src.balance.Sub(src.balance, amount)
	dst.balance.Add(dst.balance, amount)
	return nil
}

func (h *Host) snapshot() map[common.Address]*account {
	snap := make(map[common.Address]*account, len(h.accounts))
	for addr, acct := range h.accounts {
		snap[addr] = acct.clone()
	}
	return snap
}

func (h *Host) restore(snap map[common.Address]*account) {
	h.accounts = snap
}

func (h *Host) txHash(from common.Address, nonce uint64, to common.Address, input []byte) common.Hash {
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, nonce)
	return crypto.Keccak256Hash(h.chainID.Bytes(), from.Bytes(), nonceBytes, to.Bytes(), input)
}

func (h *Host) mine(txHash common.Hash, created common.Address) *types.Receipt {
	h.block++
	number := new(big.Int).SetUint64(h.block)
	return &types.Receipt{
		Type:            types.LegacyTxType,
		Status:          types.ReceiptStatusSuccessful,
		TxHash:          txHash,
		ContractAddress: created,
		BlockNumber:     number,
		BlockHash:       crypto.Keccak256Hash(h.chainID.Bytes(), number.Bytes()),
		Logs:            []*types.Log{},
	}
}

func safeConstruct(factory Factory, f *Frame, args []any) (code Code, state State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = web3.Revert("panic: %v", r)
		}
	}()
	return factory(f, args)
}

func annotate(err error, contract web3.Contract, method string) error {
	var revert *web3.RevertError
	if !stdErrors.As(err, &revert) || revert.Method != "" {
		return err
	}
	name := contract.Name
	if name == "" {
		name = contract.Address.Hex()
	}
	return &web3.RevertError{Contract: name, Method: method, Reason: revert.Reason}
}

var _ web3.Ledger = (*Host)(nil)
