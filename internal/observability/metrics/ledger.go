package metrics

import (
	"context"
	"errors"
	"time"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/core/types"
)

const (
	kindCall   = "call"
	kindSend   = "send"
	kindDeploy = "deploy"
)

// Instrument wraps ledger so every call, transaction and deployment is
// counted and timed.
func (m *Metrics) Instrument(ledger web3.Ledger) web3.Ledger {
	return &instrumentedLedger{Ledger: ledger, metrics: m}
}

type instrumentedLedger struct {
	web3.Ledger
	metrics *Metrics
}

func (l *instrumentedLedger) Call(ctx context.Context, contract web3.Contract, method string, args ...any) ([]any, error) {
	started := time.Now()
	out, err := l.Ledger.Call(ctx, contract, method, args...)
	l.metrics.observe(kindCall, label(contract.Name, method), started, err)
	return out, err
}

func (l *instrumentedLedger) Send(ctx context.Context, opts web3.TxOpts, contract web3.Contract, method string, args ...any) (*types.Receipt, error) {
	started := time.Now()
	receipt, err := l.Ledger.Send(ctx, opts, contract, method, args...)
	l.metrics.observe(kindSend, label(contract.Name, method), started, err)
	return receipt, err
}

func (l *instrumentedLedger) Deploy(ctx context.Context, opts web3.TxOpts, artifact web3.Artifact, args ...any) (web3.DeploymentResult, error) {
	started := time.Now()
	result, err := l.Ledger.Deploy(ctx, opts, artifact, args...)
	l.metrics.observe(kindDeploy, artifact.Name, started, err)
	return result, err
}

func label(contract, method string) string {
	if contract == "" {
		return method
	}
	return contract + "." + method
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, web3.ErrReverted):
		return "reverted"
	default:
		return "error"
	}
}
