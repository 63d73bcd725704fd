package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible ledger.
type Config struct {
	Name           string
	RPCURL         string
	ChainID        int64
	PrivateKeys    []string
	HoursPerPeriod int64
	GasLimit       uint64
	Notes          string
}

// chainBackend is the subset of ethclient.Client and the simulated backend
// the ledger relies on.
type chainBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client implements web3.Ledger on top of go-ethereum. Transactions are
// signed locally with the configured keys and waited for until mined.
type Client struct {
	name             string
	notes            string
	rpcClient        *gethrpc.Client
	eth              *ethclient.Client
	sim              *backends.SimulatedBackend
	backend          chainBackend
	chainID          *big.Int
	signers          map[common.Address]*bind.TransactOpts
	accounts         []common.Address
	secondsPerPeriod int64
	gasLimit         uint64
	mu               sync.Mutex
}

// NewClient dials the configured RPC endpoint and loads the signing keys.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainID, err = eth.ChainID(ctx)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("获取链 ID 失败: %w", err)
		}
	}

	keys, err := parseKeys(cfg.PrivateKeys)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	client := &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       eth,
		backend:   eth,
		chainID:   chainID,
		gasLimit:  cfg.GasLimit,
	}
	client.setPeriod(cfg.HoursPerPeriod)
	if err := client.addSigners(keys); err != nil {
		rpcClient.Close()
		return nil, err
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing
// purposes. Every key must be funded in the backend's genesis allocation.
func NewSimulatedClient(name string, chainID *big.Int, backend *backends.SimulatedBackend, hoursPerPeriod int64, keys ...*ecdsa.PrivateKey) (*Client, error) {
	client := &Client{
		name:    name,
		sim:     backend,
		backend: backend,
		chainID: new(big.Int).Set(chainID),
		notes:   "simulated backend",
	}
	client.setPeriod(hoursPerPeriod)
	if err := client.addSigners(keys); err != nil {
		return nil, err
	}
	return client, nil
}

// NewDevChain creates a simulated backend with n funded accounts.
func NewDevChain(name string, n int, hoursPerPeriod int64) (*Client, error) {
	if n <= 0 {
		n = 10
	}
	funds, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	alloc := coretypes.GenesisAlloc{}
	keys := make([]*ecdsa.PrivateKey, 0, n)
	for i := 0; i < n; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("生成账户密钥失败: %w", err)
		}
		keys = append(keys, key)
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = coretypes.Account{Balance: new(big.Int).Set(funds)}
	}
	backend := backends.NewSimulatedBackend(alloc, 30_000_000)
	return NewSimulatedClient(name, big.NewInt(1337), backend, hoursPerPeriod, keys...)
}

func parseKeys(raw []string) ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(raw))
	for i, hexKey := range raw {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("解析第 %d 个私钥失败: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (c *Client) setPeriod(hours int64) {
	if hours <= 0 {
		hours = 24
	}
	c.secondsPerPeriod = hours * 3600
}

func (c *Client) addSigners(keys []*ecdsa.PrivateKey) error {
	if c.signers == nil {
		c.signers = make(map[common.Address]*bind.TransactOpts, len(keys))
	}
	for _, key := range keys {
		auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
		if err != nil {
			return fmt.Errorf("创建交易签名器失败: %w", err)
		}
		auth.GasLimit = c.gasLimit
		if _, exists := c.signers[auth.From]; !exists {
			c.accounts = append(c.accounts, auth.From)
		}
		c.signers[auth.From] = auth
	}
	return nil
}

// Accounts returns the addresses the client can sign for.
func (c *Client) Accounts() []common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]common.Address, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.sim != nil {
		_ = c.sim.Close()
		c.sim = nil
	}
	c.rpcClient = nil
	c.backend = nil
}

// Call runs a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, contract web3.Contract, method string, args ...any) ([]any, error) {
	backend, err := c.contractBackend()
	if err != nil {
		return nil, err
	}
	parsed, err := web3.ParseABI(contract.ABI)
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(contract.Address, parsed, backend, backend, backend)
	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, asRevert(err, contract, method)
	}
	return out, nil
}

// Send signs and submits a transaction and waits for its receipt.
func (c *Client) Send(ctx context.Context, opts web3.TxOpts, contract web3.Contract, method string, args ...any) (*coretypes.Receipt, error) {
	parsed, err := web3.ParseABI(contract.ABI)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	auth, err := c.transactor(ctx, opts)
	if err != nil {
		return nil, err
	}
	backend, err := c.lockedBackend()
	if err != nil {
		return nil, err
	}

	bound := bind.NewBoundContract(contract.Address, parsed, backend, backend, backend)
	tx, err := bound.Transact(auth, method, args...)
	if err != nil {
		return nil, asRevert(err, contract, method)
	}
	return c.waitMined(ctx, backend, tx, contract, method)
}

// Deploy sends the contract creation transaction for artifact.
func (c *Client) Deploy(ctx context.Context, opts web3.TxOpts, artifact web3.Artifact, args ...any) (web3.DeploymentResult, error) {
	if len(artifact.Bytecode) == 0 {
		return web3.DeploymentResult{}, fmt.Errorf("合约 %s 缺少字节码", artifact.Name)
	}
	parsed, err := abi.JSON(strings.NewReader(artifact.ABI))
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	auth, err := c.transactor(ctx, opts)
	if err != nil {
		return web3.DeploymentResult{}, err
	}
	backend, err := c.lockedBackend()
	if err != nil {
		return web3.DeploymentResult{}, err
	}

	address, tx, _, err := bind.DeployContract(auth, parsed, artifact.Bytecode, backend, args...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("部署合约失败: %w", asRevert(err, artifact.Contract(common.Address{}), "constructor"))
	}
	receipt, err := c.waitMined(ctx, backend, tx, artifact.Contract(address), "constructor")
	if err != nil {
		return web3.DeploymentResult{}, err
	}
	return web3.DeploymentResult{ContractAddress: address, Receipt: receipt}, nil
}

// AdvanceTime moves the chain clock forward by whole staking periods. The
// simulated backend adjusts its clock directly; JSON-RPC nodes must support
// the evm_increaseTime and evm_mine development methods.
func (c *Client) AdvanceTime(ctx context.Context, periods int) error {
	if periods < 0 {
		return fmt.Errorf("时间只能向前推进: %d", periods)
	}
	seconds := int64(periods) * c.secondsPerPeriod

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sim != nil {
		if err := c.sim.AdjustTime(time.Duration(seconds) * time.Second); err != nil {
			return fmt.Errorf("调整模拟链时间失败: %w", err)
		}
		c.sim.Commit()
		return nil
	}
	if c.rpcClient == nil {
		return errors.New("当前客户端不支持时间推进")
	}
	if err := c.rpcClient.CallContext(ctx, nil, "evm_increaseTime", seconds); err != nil {
		return fmt.Errorf("推进链上时间失败: %w", err)
	}
	if err := c.rpcClient.CallContext(ctx, nil, "evm_mine"); err != nil {
		return fmt.Errorf("挖出新区块失败: %w", err)
	}
	return nil
}

// BalanceAt returns the ether balance of address at the latest block.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	backend, err := c.contractBackend()
	if err != nil {
		return nil, err
	}
	balance, err := backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// Now returns the timestamp of the latest block.
func (c *Client) Now(ctx context.Context) (time.Time, error) {
	backend, err := c.contractBackend()
	if err != nil {
		return time.Time{}, err
	}
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("获取区块信息失败: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	backend, err := c.contractBackend()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(c.chainID),
		BlockNumber: fmt.Sprintf("0x%x", header.Number.Uint64()),
		BlockTime:   time.Unix(int64(header.Time), 0).UTC(),
		Notes:       c.notes,
	}, nil
}

func (c *Client) transactor(ctx context.Context, opts web3.TxOpts) (*bind.TransactOpts, error) {
	signer, ok := c.signers[opts.From]
	if !ok {
		return nil, fmt.Errorf("未知的发送账户: %s", opts.From.Hex())
	}
	auth := *signer
	auth.Context = ctx
	auth.Value = opts.Value
	return &auth, nil
}

func (c *Client) contractBackend() (chainBackend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockedBackend()
}

func (c *Client) lockedBackend() (chainBackend, error) {
	if c.backend == nil {
		return nil, errors.New("客户端缺少链访问后端")
	}
	return c.backend, nil
}

func (c *Client) waitMined(ctx context.Context, backend chainBackend, tx *coretypes.Transaction, contract web3.Contract, method string) (*coretypes.Receipt, error) {
	if c.sim != nil {
		c.sim.Commit()
	}
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("等待交易确认失败: %w", err)
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return nil, &web3.RevertError{Contract: contract.Name, Method: method, Reason: "transaction " + tx.Hash().Hex() + " failed"}
	}
	return receipt, nil
}

// asRevert converts node errors that signal a revert into web3.RevertError
// and returns every other error unchanged.
func asRevert(err error, contract web3.Contract, method string) error {
	if err == nil || !strings.Contains(err.Error(), "execution reverted") {
		return err
	}
	reason := strings.TrimSpace(strings.TrimPrefix(err.Error(), "execution reverted"))
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if unpacked, unpackErr := abi.UnpackRevert(common.FromHex(hexData)); unpackErr == nil {
				reason = unpacked
			}
		}
	}
	return &web3.RevertError{Contract: contract.Name, Method: method, Reason: reason}
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Ledger = (*Client)(nil)
