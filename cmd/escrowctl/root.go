package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath  string
	chain       string
	metricsAddr string
	envFile     string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Deploy staking escrow contracts and deliver allocations",
		Long:          `escrowctl deploys the token, miner escrow, policy manager and user escrow proxy, then locks token allocations for beneficiaries in per-beneficiary user escrows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(flags.envFile)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "JSON config file (defaults to $ESCROW_CONFIG)")
	root.PersistentFlags().StringVar(&flags.chain, "chain", "", "chain name from the chain config (defaults to the configured default)")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with dispatcher secrets; missing files are ignored")

	root.AddCommand(
		newDeployCmd(flags),
		newAllocateCmd(flags),
		newWorkerCmd(flags),
		newStatusCmd(flags),
		newInspectCmd(flags),
	)
	return root
}

// loadEnvFile exports the variables of a dotenv file without overriding the
// ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("加载环境变量文件 %s 失败: %w", path, err)
	}
	return nil
}
