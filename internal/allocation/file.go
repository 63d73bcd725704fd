package allocation

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	xerrors "StakeEscrow-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

type fileEntry struct {
	Beneficiary     string          `json:"beneficiary_address"`
	Amount          json.RawMessage `json:"amount"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// LoadFile 读取形如 [{beneficiary_address, amount, duration_seconds}] 的分配文件。
// amount 可以是 JSON 数字或十进制字符串；同一受益人只能出现一次。
func LoadFile(path string) ([]Request, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取分配文件失败: %w", err)
	}
	var entries []fileEntry
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, xerrors.Wrap(CodeJobValidation, err, "解析分配文件失败")
	}
	reqs := make([]Request, 0, len(entries))
	seen := make(map[common.Address]int, len(entries))
	for i, entry := range entries {
		req, err := entry.request()
		if err != nil {
			return nil, xerrors.Wrap(CodeJobValidation, err, fmt.Sprintf("第 %d 条分配无效", i+1))
		}
		if first, ok := seen[req.Beneficiary]; ok {
			return nil, xerrors.New(CodeJobValidation,
				fmt.Sprintf("第 %d 条分配与第 %d 条的受益人 %s 重复", i+1, first, req.Beneficiary.Hex()))
		}
		seen[req.Beneficiary] = i + 1
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (e fileEntry) request() (Request, error) {
	if !common.IsHexAddress(e.Beneficiary) {
		return Request{}, fmt.Errorf("无效的受益人地址: %q", e.Beneficiary)
	}
	raw := strings.Trim(strings.TrimSpace(string(e.Amount)), `"`)
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Request{}, fmt.Errorf("无效的分配金额: %s", raw)
	}
	req := Request{
		Beneficiary: common.HexToAddress(e.Beneficiary),
		Amount:      amount,
		Duration:    time.Duration(e.DurationSeconds) * time.Second,
	}
	return req, req.Validate()
}
