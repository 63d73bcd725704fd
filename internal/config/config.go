package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "ESCROW_CONFIG"

// Config 描述了托管工具在启动阶段需要加载的核心配置。
type Config struct {
	Ledger   LedgerConfig   `json:"ledger"`
	Registry RegistryConfig `json:"registry"`
	Queue    QueueConfig    `json:"queue"`
	Deploy   DeployConfig   `json:"deploy"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// LedgerConfig 指定链定义文件与默认链。
type LedgerConfig struct {
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
	// Artifacts points at a solc --combined-json output; required for evm chains.
	Artifacts string `json:"artifacts"`
}

// RegistryConfig 描述合约注册表与分配注册表的存储后端。
type RegistryConfig struct {
	Driver string      `json:"driver"`
	Path   string      `json:"path"`
	MySQL  MySQLConfig `json:"mysql"`
	Redis  RedisConfig `json:"redis"`
}

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig 描述 Redis 连接信息。
type RedisConfig struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// QueueConfig 控制批量分配任务的排队方式。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Buffer   int            `json:"buffer"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
}

// DeployConfig 描述部署账户与升级口令的来源。
type DeployConfig struct {
	// DeployerAccount indexes the ledger's accounts.
	DeployerAccount int           `json:"deployer_account"`
	Secrets         SecretsConfig `json:"secrets"`
}

// SecretsConfig names environment variables holding hex encoded upgrade
// secrets. Unset variables make the deploy command generate fresh secrets.
type SecretsConfig struct {
	MinerEscrowEnv     string `json:"miner_escrow_env"`
	PolicyManagerEnv   string `json:"policy_manager_env"`
	UserEscrowProxyEnv string `json:"user_escrow_proxy_env"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level   string      `json:"level"`
	Format  string      `json:"format"`
	Outputs []string    `json:"outputs"`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// MetricsConfig 控制 Prometheus 指标暴露地址，留空表示关闭。
type MetricsConfig struct {
	Address   string `json:"address"`
	Namespace string `json:"namespace"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Default 返回不依赖配置文件的默认配置，使用进程内模拟链。
func Default() *Config {
	cfg := &Config{}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg.applyDefaults(wd)
	return cfg
}

// Resolve 依次使用显式路径与 ESCROW_CONFIG 环境变量，两者皆空时返回默认配置。
func Resolve(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvPath))
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查驱动名称等枚举字段。
func (c *Config) Validate() error {
	switch c.Registry.Driver {
	case "memory", "file", "mysql", "redis":
	default:
		return fmt.Errorf("不支持的注册表驱动: %s", c.Registry.Driver)
	}
	if c.Registry.Driver == "mysql" && strings.TrimSpace(c.Registry.MySQL.DSN) == "" {
		return errors.New("mysql 注册表需要配置 dsn")
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("不支持的队列驱动: %s", c.Queue.Driver)
	}
	if c.Queue.Driver == "rabbitmq" && strings.TrimSpace(c.Queue.RabbitMQ.URL) == "" {
		return errors.New("rabbitmq 队列需要配置 url")
	}
	if c.Deploy.DeployerAccount < 0 {
		return errors.New("部署账户序号不能为负数")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	c.Ledger.ChainConfig = resolvePath(baseDir, c.Ledger.ChainConfig)
	c.Ledger.Artifacts = resolvePath(baseDir, c.Ledger.Artifacts)

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir)
	}

	c.Registry.Driver = strings.ToLower(strings.TrimSpace(c.Registry.Driver))
	if c.Registry.Driver == "" {
		c.Registry.Driver = "memory"
	}
	if c.Registry.Driver == "file" && c.Registry.Path == "" {
		c.Registry.Path = filepath.Join(c.Runtime.DataDir, "registry.json")
	} else {
		c.Registry.Path = resolvePath(baseDir, c.Registry.Path)
	}
	if c.Registry.MySQL.MaxOpenConns <= 0 {
		c.Registry.MySQL.MaxOpenConns = 10
	}
	if c.Registry.MySQL.MaxIdleConns <= 0 {
		c.Registry.MySQL.MaxIdleConns = 5
	}
	if c.Registry.MySQL.ConnMaxLifetimeSeconds <= 0 {
		c.Registry.MySQL.ConnMaxLifetimeSeconds = 300
	}
	if c.Registry.Redis.Address == "" {
		c.Registry.Redis.Address = "127.0.0.1:6379"
	}
	if c.Registry.Redis.Prefix == "" {
		c.Registry.Redis.Prefix = "stake-escrow:registry"
	}

	c.Queue.Driver = strings.ToLower(strings.TrimSpace(c.Queue.Driver))
	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Buffer <= 0 {
		c.Queue.Buffer = 64
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}
	if c.Queue.Redis.Address == "" {
		c.Queue.Redis.Address = "127.0.0.1:6379"
	}
	if c.Queue.Redis.Prefix == "" {
		c.Queue.Redis.Prefix = "stake-escrow:allocations"
	}
	if c.Queue.RabbitMQ.Queue == "" {
		c.Queue.RabbitMQ.Queue = "stake-escrow.allocations"
	}
	if c.Queue.RabbitMQ.Prefetch <= 0 {
		c.Queue.RabbitMQ.Prefetch = 1
	}

	if c.Deploy.Secrets.MinerEscrowEnv == "" {
		c.Deploy.Secrets.MinerEscrowEnv = "ESCROW_MINER_ESCROW_SECRET"
	}
	if c.Deploy.Secrets.PolicyManagerEnv == "" {
		c.Deploy.Secrets.PolicyManagerEnv = "ESCROW_POLICY_MANAGER_SECRET"
	}
	if c.Deploy.Secrets.UserEscrowProxyEnv == "" {
		c.Deploy.Secrets.UserEscrowProxyEnv = "ESCROW_USER_ESCROW_PROXY_SECRET"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stderr"}
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	} else {
		c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "stake_escrow"
	}
}

func resolvePath(baseDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
