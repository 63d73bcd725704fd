package main

import (
	"encoding/hex"
	"fmt"
	"io"

	"StakeEscrow-Chain/internal/deployers"

	"github.com/spf13/cobra"
)

func newDeployCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy token, miner escrow, policy manager and user escrow proxy",
		Long: `Deploys the shared contracts in dependency order and enrolls them in the contract registry.
Upgrade secrets are read from the environment variables named in the config; missing ones are generated and printed once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			secrets, generated, err := loadSecrets(rt.cfg.Deploy.Secrets, lookupEnv)
			if err != nil {
				return err
			}
			network, err := deployers.DeployNetwork(ctx, rt.ledger, rt.deployer, secrets, rt.opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chain: %s\ndeployer: %s\n", rt.chain, rt.deployer.Hex())
			printNetwork(out, network)
			for _, env := range generated {
				var secret []byte
				switch env {
				case rt.cfg.Deploy.Secrets.MinerEscrowEnv:
					secret = secrets.MinerEscrow
				case rt.cfg.Deploy.Secrets.PolicyManagerEnv:
					secret = secrets.PolicyManager
				default:
					secret = secrets.UserEscrowProxy
				}
				fmt.Fprintf(out, "export %s=0x%s\n", env, hex.EncodeToString(secret))
			}
			return nil
		},
	}
}

func printNetwork(out io.Writer, network deployers.Network) {
	fmt.Fprintf(out, "%-24s %s\n", network.Token.Name, network.Token.Address.Hex())
	fmt.Fprintf(out, "%-24s %s\n", network.MinerEscrow.Name, network.MinerEscrow.Address.Hex())
	fmt.Fprintf(out, "%-24s %s\n", network.PolicyManager.Name, network.PolicyManager.Address.Hex())
	fmt.Fprintf(out, "%-24s %s\n", network.UserEscrowProxy.Name, network.UserEscrowProxy.Address.Hex())
	fmt.Fprintf(out, "%-24s %s\n", network.Linker.Name, network.Linker.Address.Hex())
}
