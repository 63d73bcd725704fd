package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"StakeEscrow-Chain/internal/config"
	"StakeEscrow-Chain/internal/contracts/native"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/internal/web3/ethereum"
	"StakeEscrow-Chain/internal/web3/simulated"
)

// DefaultChain is the name of the in-process ledger created when no chain is
// configured.
const DefaultChain = "dev"

// Registry manages a set of ledgers keyed by human readable names.
type Registry struct {
	defaultChain string
	ledgers      map[string]web3.Ledger
	kinds        map[string]string
}

// NewRegistry loads chain definitions and instantiates concrete ledgers.
func NewRegistry(ctx context.Context, cfg config.LedgerConfig) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	r := &Registry{ledgers: make(map[string]web3.Ledger), kinds: make(map[string]string)}
	for name, chain := range defs.Chains {
		ledger, kind, err := open(ctx, name, chain)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		r.ledgers[name] = ledger
		r.kinds[name] = kind
	}

	if len(r.ledgers) == 0 {
		r.ledgers[DefaultChain] = native.NewHost()
		r.kinds[DefaultChain] = "simulated"
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = DefaultChain
		}
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		defaultChain = r.Chains()[0]
	}
	if _, ok := r.ledgers[defaultChain]; !ok {
		r.Close()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	r.defaultChain = defaultChain
	return r, nil
}

func open(ctx context.Context, name string, chain web3.ChainDefinition) (web3.Ledger, string, error) {
	kind := strings.ToLower(strings.TrimSpace(chain.Type))
	if kind == "" {
		kind = "evm"
	}
	switch kind {
	case "evm":
		ledger, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:           name,
			RPCURL:         chain.RPCURL,
			ChainID:        chain.ChainID,
			PrivateKeys:    chain.Keys(),
			HoursPerPeriod: chain.HoursPerPeriod,
			Notes:          chain.Description,
		})
		return ledger, kind, err
	case "geth-simulated":
		ledger, err := ethereum.NewDevChain(name, chain.Accounts, chain.HoursPerPeriod)
		return ledger, kind, err
	case "simulated":
		opts := []simulated.Option{simulated.WithAccounts(chain.Accounts)}
		if chain.HoursPerPeriod > 0 {
			opts = append(opts, simulated.WithHoursPerPeriod(chain.HoursPerPeriod))
		}
		if chain.ChainID > 0 {
			opts = append(opts, simulated.WithChainID(big.NewInt(chain.ChainID)))
		}
		return native.NewHost(opts...), kind, nil
	default:
		return nil, kind, fmt.Errorf("不支持的链类型 %s", chain.Type)
	}
}

// DefaultLedger returns the ledger configured as default chain.
func (r *Registry) DefaultLedger() (web3.Ledger, error) {
	if r == nil {
		return nil, errors.New("未初始化的链注册表")
	}
	ledger, ok := r.ledgers[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return ledger, nil
}

// DefaultChain returns the name of the default chain.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// Ledger returns the ledger identified by name.
func (r *Registry) Ledger(name string) (web3.Ledger, bool) {
	if r == nil {
		return nil, false
	}
	ledger, ok := r.ledgers[name]
	return ledger, ok
}

// Kind reports the chain type a ledger was created from.
func (r *Registry) Kind(name string) string {
	if r == nil {
		return ""
	}
	return r.kinds[name]
}

// NeedsBytecode reports whether deployments on the named chain require
// compiled artifacts.
func (r *Registry) NeedsBytecode(name string) bool {
	return r.Kind(name) != "simulated"
}

// Close releases all ledgers managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, ledger := range r.ledgers {
		if ledger != nil {
			ledger.Close()
		}
		delete(r.ledgers, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.ledgers))
	for name := range r.ledgers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
