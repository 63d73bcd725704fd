package main

import (
	"fmt"

	"StakeEscrow-Chain/internal/agents"
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/deployers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newInspectCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <beneficiary>",
		Short: "Show the user escrow holding a beneficiary's allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("无效的受益人地址: %s", args[0])
			}
			beneficiary := common.HexToAddress(args[0])

			ctx := cmd.Context()
			rt, err := openRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			network, err := deployers.LoadNetwork(ctx, rt.contracts)
			if err != nil {
				return err
			}
			agent, err := agents.LookupUserEscrowAgent(ctx, rt.ledger, rt.allocations, network.Token, beneficiary)
			if err != nil {
				return err
			}
			balance, err := agent.Allocation(ctx)
			if err != nil {
				return err
			}
			locked, err := agent.LockedTokens(ctx)
			if err != nil {
				return err
			}
			end, err := agent.EndTimestamp(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "beneficiary: %s\n", beneficiary.Hex())
			fmt.Fprintf(out, "principal:   %s\n", agent.ContractAddress().Hex())
			fmt.Fprintf(out, "balance:     %s (%s %s)\n", balance, formatTokens(balance), contracts.TokenSymbol)
			fmt.Fprintf(out, "locked:      %s\n", locked)
			fmt.Fprintf(out, "unlocks at:  %s\n", end.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}
