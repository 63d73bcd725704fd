package agents

import (
	"context"

	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// Agent 将账本绑定到一个已部署的合约。其身份由合约地址与 ABI 决定，
// 因此通过不同途径为同一合约构造的 Agent 相等。
type Agent struct {
	ledger   web3.Ledger
	contract web3.Contract
}

func newAgent(ledger web3.Ledger, contract web3.Contract) Agent {
	return Agent{ledger: ledger, contract: web3.NewContract(contract.Name, contract.Address, contract.ABI)}
}

// Contract 返回绑定的合约。
func (a Agent) Contract() web3.Contract { return a.contract }

func (a Agent) ContractAddress() common.Address { return a.contract.Address }

// RegistryContractName 返回合约在注册表中的登记名称。
func (a Agent) RegistryContractName() string { return a.contract.Name }

// Equal 按地址与 ABI 比较两个 Agent。
func (a Agent) Equal(other Agent) bool { return a.contract.Equal(other.contract) }

func (a Agent) call(ctx context.Context, method string, args ...any) ([]any, error) {
	return a.ledger.Call(ctx, a.contract, method, args...)
}

func (a Agent) send(ctx context.Context, opts web3.TxOpts, method string, args ...any) (common.Hash, error) {
	return sendTo(ctx, a.ledger, opts, a.contract, method, args...)
}

func sendTo(ctx context.Context, ledger web3.Ledger, opts web3.TxOpts, contract web3.Contract, method string, args ...any) (common.Hash, error) {
	receipt, err := ledger.Send(ctx, opts, contract, method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}
