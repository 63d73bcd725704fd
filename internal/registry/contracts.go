package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

const contractsNamespace = "contracts"

// Entry 是一条部署记录。Address 为代理合约时，Target 指向其当前的实现。
type Entry struct {
	Name       string         `json:"name"`
	Address    common.Address `json:"address"`
	ABI        string         `json:"abi"`
	Target     common.Address `json:"target,omitempty"`
	EnrolledAt int64          `json:"enrolled_at"`
}

// Contract 将记录转换为账本合约句柄。
func (e Entry) Contract() web3.Contract {
	return web3.NewContract(e.Name, e.Address, e.ABI)
}

// ContractRegistry 记录部署器发布的每个合约。
type ContractRegistry struct {
	store Store
	now   func() time.Time
}

// NewContractRegistry 基于 store 创建合约注册表。
func NewContractRegistry(store Store) *ContractRegistry {
	return &ContractRegistry{store: store, now: time.Now}
}

// Enroll 登记合约及其可选的实现地址，同名同地址再次登记会覆盖原记录。
func (r *ContractRegistry) Enroll(ctx context.Context, contract web3.Contract, target common.Address) (Entry, error) {
	if contract.Name == "" {
		return Entry{}, xerrors.New(xerrors.CodeInvalidArgument, "合约名称不能为空")
	}
	entry := Entry{
		Name:       contract.Name,
		Address:    contract.Address,
		ABI:        web3.CompactABI(contract.ABI),
		Target:     target,
		EnrolledAt: r.now().UnixNano(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("序列化合约记录失败: %w", err)
	}
	if err := r.store.Put(ctx, contractsNamespace, entryKey(entry.Name, entry.Address), payload); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Search 按登记先后返回 name 下的记录，name 为空时返回全部记录。
func (r *ContractRegistry) Search(ctx context.Context, name string) ([]Entry, error) {
	records, err := r.store.List(ctx, contractsNamespace)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, record := range records {
		var entry Entry
		if err := json.Unmarshal(record.Value, &entry); err != nil {
			return nil, storageFailure(err, fmt.Sprintf("解析合约记录 %s 失败", record.Key))
		}
		if name == "" || entry.Name == name {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EnrolledAt < entries[j].EnrolledAt
	})
	return entries, nil
}

// Latest 返回 name 最近一次登记的记录。
func (r *ContractRegistry) Latest(ctx context.Context, name string) (Entry, error) {
	entries, err := r.Search(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, notFound(contractsNamespace, name)
	}
	return entries[len(entries)-1], nil
}

// Clear 清空所有合约记录。
func (r *ContractRegistry) Clear(ctx context.Context) error {
	return r.store.Clear(ctx, contractsNamespace)
}

func entryKey(name string, address common.Address) string {
	return name + "/" + address.Hex()
}
