package main

import (
	"fmt"

	"StakeEscrow-Chain/internal/agents"
	"StakeEscrow-Chain/internal/allocation"
	"StakeEscrow-Chain/internal/deployers"
	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the chain, the registered contracts and enrolled allocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			snapshot, err := rt.ledger.FetchChainSnapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "chain: %s (%s)\nchain id: %s\nblock: %s at %s\n",
				rt.chain, rt.chains.Kind(rt.chain), snapshot.ChainID, snapshot.BlockNumber, snapshot.BlockTime.UTC().Format("2006-01-02 15:04:05"))

			entries, err := rt.contracts.Search(ctx, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "registered contracts: %d\n", len(entries))
			for _, entry := range entries {
				line := fmt.Sprintf("  %-24s %s", entry.Name, entry.Address.Hex())
				if entry.Target != (common.Address{}) {
					line += " -> " + entry.Target.Hex()
				}
				fmt.Fprintln(out, line)
			}

			network, err := deployers.LoadNetwork(ctx, rt.contracts)
			switch {
			case err == nil:
				miner := agents.NewMinerAgent(rt.ledger, network.MinerEscrow.Address, agents.NewTokenAgent(rt.ledger, network.Token.Address))
				period, err := miner.CurrentPeriod(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "current period: %d\n", period)
			case xerrors.HasCode(err, xerrors.CodeNotFound):
				fmt.Fprintln(out, "network: not deployed")
			default:
				return err
			}

			beneficiaries, err := rt.allocations.Beneficiaries(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "enrolled beneficiaries: %d\n", len(beneficiaries))
			if rt.cfg.Queue.Driver != "memory" {
				printBacklog(cmd, rt)
			}
			return nil
		},
	}
}

// printBacklog reports queued allocations; an unreachable broker is not fatal.
func printBacklog(cmd *cobra.Command, rt *runtime) {
	out := cmd.OutOrStdout()
	queue, err := allocation.OpenQueue(cmd.Context(), rt.cfg.Queue)
	if err != nil {
		fmt.Fprintf(out, "queued allocations: unavailable (%v)\n", err)
		return
	}
	defer queue.Close()
	backlog, ok := queue.(allocation.Backlog)
	if !ok {
		return
	}
	pending, err := backlog.Pending(cmd.Context())
	if err != nil {
		fmt.Fprintf(out, "queued allocations: unavailable (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "queued allocations (%s): %d\n", rt.cfg.Queue.Driver, pending)
}
