package allocation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allocations.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `[
  {"beneficiary_address": "0x00000000000000000000000000000000000000a1", "amount": "150000000000000000000000", "duration_seconds": 7776000},
  {"beneficiary_address": "0x00000000000000000000000000000000000000a2", "amount": 42, "duration_seconds": 60}
]`)
	reqs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Beneficiary != common.HexToAddress("0xa1") || reqs[0].Amount.String() != "150000000000000000000000" {
		t.Fatalf("unexpected first request %+v", reqs[0])
	}
	if reqs[0].Duration != 90*24*time.Hour || reqs[1].Duration != time.Minute {
		t.Fatalf("unexpected durations %s %s", reqs[0].Duration, reqs[1].Duration)
	}
	if reqs[1].Amount.Int64() != 42 {
		t.Fatalf("unexpected numeric amount %s", reqs[1].Amount)
	}
}

func TestLoadFileRejectsInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"bad address":   `[{"beneficiary_address": "nope", "amount": "1", "duration_seconds": 1}]`,
		"bad amount":    `[{"beneficiary_address": "0x00000000000000000000000000000000000000a1", "amount": "1.5", "duration_seconds": 1}]`,
		"zero duration": `[{"beneficiary_address": "0x00000000000000000000000000000000000000a1", "amount": "1", "duration_seconds": 0}]`,
		"not a list":    `{"beneficiary_address": "0x00000000000000000000000000000000000000a1"}`,
		"duplicate": `[
  {"beneficiary_address": "0x00000000000000000000000000000000000000a1", "amount": "1", "duration_seconds": 1},
  {"beneficiary_address": "0x00000000000000000000000000000000000000A1", "amount": "2", "duration_seconds": 1}
]`,
	}
	for name, content := range cases {
		if _, err := LoadFile(writeFile(t, content)); !xerrors.HasCode(err, CodeJobValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}
