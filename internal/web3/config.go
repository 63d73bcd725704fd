package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single ledger endpoint.
type ChainDefinition struct {
	// Type is "evm" for a JSON-RPC node or "simulated" for the in-process host.
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	ChainID     int64  `yaml:"chain_id"`
	Description string `yaml:"description"`
	// PrivateKeys are hex encoded signing keys; PrivateKeysEnv names an
	// environment variable holding a comma separated list instead.
	PrivateKeys    []string `yaml:"private_keys"`
	PrivateKeysEnv string   `yaml:"private_keys_env"`
	// Accounts is the number of funded accounts created by the simulated host.
	Accounts       int   `yaml:"accounts"`
	HoursPerPeriod int64 `yaml:"hours_per_period"`
}

// Keys resolves the signing keys for the definition.
func (d ChainDefinition) Keys() []string {
	keys := make([]string, 0, len(d.PrivateKeys))
	for _, key := range d.PrivateKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if d.PrivateKeysEnv != "" {
		for _, key := range strings.Split(os.Getenv(d.PrivateKeysEnv), ",") {
			if key = strings.TrimSpace(key); key != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}
