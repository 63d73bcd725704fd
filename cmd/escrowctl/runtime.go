package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"StakeEscrow-Chain/internal/allocation"
	"StakeEscrow-Chain/internal/config"
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/deployers"
	"StakeEscrow-Chain/internal/observability/metrics"
	"StakeEscrow-Chain/internal/registry"
	"StakeEscrow-Chain/internal/storage/mysql"
	"StakeEscrow-Chain/internal/web3"
	"StakeEscrow-Chain/internal/web3/provider"
	"StakeEscrow-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// runtime bundles what every command needs: config, ledger and registries.
type runtime struct {
	cfg         *config.Config
	chains      *provider.Registry
	chain       string
	ledger      web3.Ledger
	store       registry.Store
	contracts   *registry.ContractRegistry
	allocations *registry.AllocationRegistry
	metrics     *metrics.Metrics
	deployer    common.Address
	opts        []deployers.Option
	stop        context.CancelFunc
}

func openRuntime(ctx context.Context, flags *globalFlags) (*runtime, error) {
	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	rt.chains, err = provider.NewRegistry(ctx, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	rt.chain = flags.chain
	if rt.chain == "" {
		rt.chain = rt.chains.DefaultChain()
	}
	ledger, found := rt.chains.Ledger(rt.chain)
	if !found {
		return nil, fmt.Errorf("链 %s 未在配置中找到", rt.chain)
	}
	rt.ledger = ledger

	addr := flags.metricsAddr
	if addr == "" {
		addr = cfg.Metrics.Address
	}
	if addr != "" {
		rt.metrics = metrics.New(cfg.Metrics.Namespace)
		rt.ledger = rt.metrics.Instrument(rt.ledger)
		var metricsCtx context.Context
		metricsCtx, rt.stop = context.WithCancel(ctx)
		go func() {
			if err := metrics.StartServer(metricsCtx, addr, rt.metrics.Handler()); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务退出", slog.Any("error", err), slog.String("address", addr))
			}
		}()
	}

	accounts := rt.ledger.Accounts()
	if cfg.Deploy.DeployerAccount >= len(accounts) {
		return nil, fmt.Errorf("部署账户序号 %d 超出账户数量 %d", cfg.Deploy.DeployerAccount, len(accounts))
	}
	rt.deployer = accounts[cfg.Deploy.DeployerAccount]

	rt.store, err = registry.Open(ctx, cfg.Registry)
	if err != nil {
		return nil, err
	}
	rt.contracts = registry.NewContractRegistry(rt.store)
	rt.allocations = registry.NewAllocationRegistry(rt.store)
	rt.opts = []deployers.Option{deployers.WithContractRegistry(rt.contracts)}
	if rt.chains.NeedsBytecode(rt.chain) {
		artifacts, err := contracts.LoadArtifacts(cfg.Ledger.Artifacts)
		if err != nil {
			return nil, err
		}
		rt.opts = append(rt.opts, deployers.WithArtifacts(artifacts))
	}

	ok = true
	return rt, nil
}

// network loads the deployed contracts, or deploys them when deploy is set.
func (rt *runtime) network(ctx context.Context, deploy bool) (deployers.Network, error) {
	if !deploy {
		return deployers.LoadNetwork(ctx, rt.contracts)
	}
	secrets, _, err := loadSecrets(rt.cfg.Deploy.Secrets, lookupEnv)
	if err != nil {
		return deployers.Network{}, err
	}
	return deployers.DeployNetwork(ctx, rt.ledger, rt.deployer, secrets, rt.opts...)
}

// jobStore keeps allocation jobs next to the registry when it lives in MySQL.
func (rt *runtime) jobStore(ctx context.Context) (allocation.Store, error) {
	if rt.cfg.Registry.Driver != "mysql" {
		return allocation.NewMemoryStore(), nil
	}
	return allocation.NewMySQLStore(ctx, mysql.Config{
		DSN:             rt.cfg.Registry.MySQL.DSN,
		MaxOpenConns:    rt.cfg.Registry.MySQL.MaxOpenConns,
		MaxIdleConns:    rt.cfg.Registry.MySQL.MaxIdleConns,
		ConnMaxLifetime: time.Duration(rt.cfg.Registry.MySQL.ConnMaxLifetimeSeconds) * time.Second,
	})
}

func (rt *runtime) processor(network deployers.Network, store allocation.Store, consumer allocation.Consumer) *allocation.Processor {
	opts := []allocation.ProcessorOption{
		allocation.WithWorkerCount(rt.cfg.Queue.Workers),
		allocation.WithProcessorLogger(logger.Named("allocation")),
	}
	if rt.metrics != nil {
		opts = append(opts, allocation.WithObserver(rt.metrics))
	}
	deliverer := allocation.NewEscrowDeliverer(rt.ledger, rt.deployer, network, rt.allocations, rt.opts...)
	return allocation.NewProcessor(deliverer, store, consumer, opts...)
}

func (rt *runtime) Close() {
	if rt.stop != nil {
		rt.stop()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	rt.chains.Close()
	_ = logger.Sync()
}
