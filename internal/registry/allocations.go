package registry

import (
	"context"
	"encoding/json"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const allocationsNamespace = "allocations"

// AllocationRegistry 记录每个受益人与持有其分配的托管合约，同一受益人只能登记一次。
type AllocationRegistry struct {
	store Store
}

// NewAllocationRegistry 基于 store 创建分配注册表。
func NewAllocationRegistry(store Store) *AllocationRegistry {
	return &AllocationRegistry{store: store}
}

// Enroll 为受益人登记托管合约，已存在记录时返回 CodeConflict。
func (r *AllocationRegistry) Enroll(ctx context.Context, beneficiary common.Address, contract web3.Contract) error {
	if beneficiary == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "受益人地址不能为空")
	}
	contract.ABI = web3.CompactABI(contract.ABI)
	payload, err := json.Marshal(contract)
	if err != nil {
		return storageFailure(err, "序列化分配记录失败")
	}
	return r.store.Create(ctx, allocationsNamespace, beneficiary.Hex(), payload)
}

// Search 返回受益人登记的托管合约。
func (r *AllocationRegistry) Search(ctx context.Context, beneficiary common.Address) (web3.Contract, error) {
	payload, err := r.store.Get(ctx, allocationsNamespace, beneficiary.Hex())
	if err != nil {
		return web3.Contract{}, err
	}
	var contract web3.Contract
	if err := json.Unmarshal(payload, &contract); err != nil {
		return web3.Contract{}, storageFailure(err, "解析分配记录失败")
	}
	return contract, nil
}

// IsEnrolled 判断受益人是否已有分配记录。
func (r *AllocationRegistry) IsEnrolled(ctx context.Context, beneficiary common.Address) (bool, error) {
	_, err := r.store.Get(ctx, allocationsNamespace, beneficiary.Hex())
	switch {
	case err == nil:
		return true, nil
	case xerrors.HasCode(err, xerrors.CodeNotFound):
		return false, nil
	default:
		return false, err
	}
}

// RequireUnenrolled 在受益人已有分配记录时返回 CodeConflict，供调用方在转移代币前拒绝。
func (r *AllocationRegistry) RequireUnenrolled(ctx context.Context, beneficiary common.Address) error {
	enrolled, err := r.IsEnrolled(ctx, beneficiary)
	if err != nil {
		return err
	}
	if enrolled {
		return conflict(allocationsNamespace, beneficiary.Hex())
	}
	return nil
}

// Beneficiaries 列出所有已登记的受益人。
func (r *AllocationRegistry) Beneficiaries(ctx context.Context) ([]common.Address, error) {
	records, err := r.store.List(ctx, allocationsNamespace)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(records))
	for _, record := range records {
		out = append(out, common.HexToAddress(record.Key))
	}
	return out, nil
}
