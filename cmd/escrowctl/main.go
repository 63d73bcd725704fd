// Command escrowctl deploys the staking escrow contracts and delivers token
// allocations to beneficiaries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "escrowctl 运行失败: %v\n", err)
		os.Exit(1)
	}
}
