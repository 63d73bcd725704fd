package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"StakeEscrow-Chain/internal/agents"
	"StakeEscrow-Chain/internal/contracts"
	"StakeEscrow-Chain/internal/contracts/native"
	"StakeEscrow-Chain/internal/deployers"
	"StakeEscrow-Chain/internal/observability/metrics"
	"StakeEscrow-Chain/internal/web3"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCountsLedgerOperations(t *testing.T) {
	ctx := context.Background()
	host := native.NewHost()
	t.Cleanup(host.Close)

	m := metrics.New("test")
	ledger := m.Instrument(host)
	deployer := ledger.Accounts()[0]

	token := deployers.NewTokenDeployer(ledger, deployer)
	if err := token.Arm(ctx); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := token.Deploy(ctx); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	agent := agents.NewTokenAgent(ledger, token.Contract().Address)
	if _, err := agent.TotalSupply(ctx); err != nil {
		t.Fatalf("total supply: %v", err)
	}
	stranger := ledger.Accounts()[1]
	_, err := agent.Transfer(ctx, stranger, deployer, contracts.Tokens(1))
	if !errors.Is(err, web3.ErrReverted) {
		t.Fatalf("expected transfer from an empty account to revert, got %v", err)
	}

	count, err := testutil.GatherAndCount(m.Registry(), "test_ledger_operations_total")
	if err != nil || count != 3 {
		t.Fatalf("expected 3 operation series, got %d (%v)", count, err)
	}
	expected := `
# HELP test_ledger_operations_total Ledger calls, transactions and deployments by outcome.
# TYPE test_ledger_operations_total counter
test_ledger_operations_total{kind="call",method="NuCypherToken.totalSupply",outcome="ok"} 1
test_ledger_operations_total{kind="deploy",method="NuCypherToken",outcome="ok"} 1
test_ledger_operations_total{kind="send",method="NuCypherToken.transfer",outcome="reverted"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "test_ledger_operations_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestHandlerServesJobMetrics(t *testing.T) {
	m := metrics.New("")
	m.ObserveJob("succeeded", 20*time.Millisecond)
	m.ObserveJob("failed", time.Second)
	m.ObserveJob("succeeded", 30*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{
		`stake_escrow_allocation_jobs_total{status="succeeded"} 2`,
		`stake_escrow_allocation_jobs_total{status="failed"} 1`,
		`stake_escrow_allocation_job_duration_seconds_count 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestStartServerRequiresAddress(t *testing.T) {
	if err := metrics.StartServer(context.Background(), "", nil); err == nil {
		t.Fatal("expected empty address to fail")
	}
}
