package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"StakeEscrow-Chain/internal/config"
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/deployers"
)

func lookupEnv(name string) (string, bool) { return os.LookupEnv(name) }

// loadSecrets reads the upgrade secrets from the configured environment
// variables and generates the missing ones. It returns the names of the
// variables that were generated.
func loadSecrets(cfg config.SecretsConfig, lookup func(string) (string, bool)) (deployers.Secrets, []string, error) {
	var (
		secrets   deployers.Secrets
		generated []string
	)
	targets := []struct {
		env string
		dst *[]byte
	}{
		{cfg.MinerEscrowEnv, &secrets.MinerEscrow},
		{cfg.PolicyManagerEnv, &secrets.PolicyManager},
		{cfg.UserEscrowProxyEnv, &secrets.UserEscrowProxy},
	}
	for _, target := range targets {
		secret, fresh, err := secretFromEnv(target.env, lookup)
		if err != nil {
			return deployers.Secrets{}, nil, err
		}
		if fresh {
			generated = append(generated, target.env)
		}
		*target.dst = secret
	}
	return secrets, generated, nil
}

func secretFromEnv(name string, lookup func(string) (string, bool)) ([]byte, bool, error) {
	if value, ok := lookup(name); ok && strings.TrimSpace(value) != "" {
		raw := strings.TrimPrefix(strings.TrimSpace(value), "0x")
		secret, err := hex.DecodeString(raw)
		if err != nil {
			return nil, false, fmt.Errorf("环境变量 %s 不是十六进制: %w", name, err)
		}
		if len(secret) != contracts.DispatcherSecretLength {
			return nil, false, fmt.Errorf("环境变量 %s 的长度应为 %d 字节", name, contracts.DispatcherSecretLength)
		}
		return secret, false, nil
	}
	secret := make([]byte, contracts.DispatcherSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, false, fmt.Errorf("生成升级口令失败: %w", err)
	}
	return secret, true, nil
}
