package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"StakeEscrow-Chain/internal/allocation"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type allocateFlags struct {
	file          string
	submitOnly    bool
	deployNetwork bool
	timeout       time.Duration
}

func newAllocateCmd(flags *globalFlags) *cobra.Command {
	opts := &allocateFlags{}
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Deliver the allocations listed in a JSON file",
		Long: `Reads [{"beneficiary_address", "amount", "duration_seconds"}] from --file, queues one job per entry and delivers them.
With --submit-only the jobs are only queued and a separate "escrowctl worker" delivers them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAllocate(cmd.Context(), cmd.OutOrStdout(), flags, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "allocation file")
	cmd.Flags().BoolVar(&opts.submitOnly, "submit-only", false, "queue the jobs without delivering them")
	cmd.Flags().BoolVar(&opts.deployNetwork, "deploy-network", false, "deploy the shared contracts first (in-process chains keep no state between runs)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "how long to wait for queued jobs")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAllocate(ctx context.Context, out io.Writer, flags *globalFlags, opts *allocateFlags) error {
	reqs, err := allocation.LoadFile(opts.file)
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, flags)
	if err != nil {
		return err
	}
	defer rt.Close()

	network, err := rt.network(ctx, opts.deployNetwork)
	if err != nil {
		return err
	}
	store, err := rt.jobStore(ctx)
	if err != nil {
		return err
	}
	queueCfg := rt.cfg.Queue
	if queueCfg.Driver == "memory" && queueCfg.Buffer < len(reqs) {
		queueCfg.Buffer = len(reqs)
	}
	queue, err := allocation.OpenQueue(ctx, queueCfg)
	if err != nil {
		_ = store.Close()
		return err
	}
	service := allocation.NewService(store, queue)
	defer service.Close()

	jobs, err := service.SubmitAll(ctx, reqs)
	if err != nil {
		return err
	}
	if opts.submitOnly {
		for _, job := range jobs {
			fmt.Fprintf(out, "%s %s %s\n", job.ID, job.Beneficiary, job.Status)
		}
		return nil
	}

	processor := rt.processor(network, store, queue)
	if memory, ok := queue.(*allocation.MemoryQueue); ok {
		_ = memory.Close()
		if err := processor.Start(ctx); err != nil {
			return err
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		defer cancel()
		consumeCtx, stopConsuming := context.WithCancel(waitCtx)
		group, groupCtx := errgroup.WithContext(consumeCtx)
		group.Go(func() error {
			return processor.Start(groupCtx)
		})
		group.Go(func() error {
			defer stopConsuming()
			for _, job := range jobs {
				if _, err := service.WaitUntilCompleted(groupCtx, job.ID, 200*time.Millisecond); err != nil {
					return err
				}
			}
			return nil
		})
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if err := waitCtx.Err(); err != nil {
			return err
		}
	}

	failed := 0
	for _, job := range jobs {
		current, err := service.Get(ctx, job.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s %s %s", current.ID, current.Beneficiary, current.Status, current.Principal)
		if current.Status == allocation.StatusFailed {
			failed++
			fmt.Fprintf(out, " (%s: %s)", current.ErrorCode, current.LastError)
		}
		fmt.Fprintln(out)
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d 个分配失败", failed, len(jobs))
	}
	return nil
}

func newWorkerCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued allocations until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cfg.Queue.Driver == "memory" || rt.cfg.Registry.Driver != "mysql" {
				return errors.New("worker 需要 redis 或 rabbitmq 队列以及 mysql 任务存储")
			}

			network, err := rt.network(ctx, false)
			if err != nil {
				return err
			}
			store, err := rt.jobStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			queue, err := allocation.OpenQueue(ctx, rt.cfg.Queue)
			if err != nil {
				return err
			}
			defer queue.Close()

			err = rt.processor(network, store, queue).Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
