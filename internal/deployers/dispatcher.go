package deployers

import (
	"context"
	"fmt"

	"StakeEscrow-Chain/internal/contracts"
	xerrors "StakeEscrow-Chain/internal/errors"
	"StakeEscrow-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
)

// dispatched 是部署在 Dispatcher 之后的库合约，调用方以库的 ABI 访问 Dispatcher 地址。
type dispatched struct {
	deployment
	secret     []byte
	library    web3.Contract
	dispatcher web3.Contract
}

// Contract 返回绑定库 ABI 的 Dispatcher 地址。
func (d *dispatched) Contract() web3.Contract {
	return web3.NewContract(d.name, d.dispatcher.Address, contracts.MustABI(d.name))
}

// Dispatcher 返回代理合约本身。
func (d *dispatched) Dispatcher() web3.Contract { return d.dispatcher }

// Library 返回 Dispatcher 当前指向的实现。
func (d *dispatched) Library() web3.Contract { return d.library }

// publishDispatched 以 args 部署库合约并在其前面部署 Dispatcher，返回 Dispatcher 的创建哈希。
func (d *dispatched) publishDispatched(ctx context.Context, args ...any) (common.Hash, error) {
	library, _, err := d.publish(ctx, d.name, args...)
	if err != nil {
		return common.Hash{}, err
	}
	dispatcher, txHash, err := d.publish(ctx, contracts.Dispatcher, library.Address, secretHash(d.secret))
	if err != nil {
		return common.Hash{}, err
	}
	d.library = library
	d.dispatcher = dispatcher
	return txHash, nil
}

// upgrade 以 args 部署新库合约并让 Dispatcher 指向它。secret 用于解锁，
// newSecret 重新上锁。升级交易确认后，即使登记失败也会返回其哈希。
func (d *dispatched) upgrade(ctx context.Context, secret, newSecret []byte, args ...any) (common.Hash, error) {
	if err := d.checkRotation(newSecret); err != nil {
		return common.Hash{}, err
	}
	library, _, err := d.publish(ctx, d.name, args...)
	if err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.transact(ctx, d.dispatcher, "upgrade", library.Address, secret, secretHash(newSecret))
	if err != nil {
		return common.Hash{}, err
	}
	d.library = library
	d.secret = append([]byte(nil), newSecret...)
	if err := d.enroll(ctx, d.Contract(), library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// rollback 让 Dispatcher 回到上一个库合约。与 upgrade 相同，已确认的交易哈希会与后续错误一起返回。
func (d *dispatched) rollback(ctx context.Context, secret, newSecret []byte) (common.Hash, error) {
	if err := d.checkRotation(newSecret); err != nil {
		return common.Hash{}, err
	}
	txHash, err := d.transact(ctx, d.dispatcher, "rollback", secret, secretHash(newSecret))
	if err != nil {
		return common.Hash{}, err
	}
	d.secret = append([]byte(nil), newSecret...)
	out, err := d.ledger.Call(ctx, d.dispatcher, "target")
	if err != nil {
		return txHash, xerrors.Wrap(xerrors.CodeLedgerFailure, err, "读取 Dispatcher 目标失败")
	}
	d.library = d.library.At(out[0].(common.Address))
	if err := d.enroll(ctx, d.Contract(), d.library.Address); err != nil {
		return txHash, err
	}
	return txHash, nil
}

func (d *dispatched) checkRotation(newSecret []byte) error {
	if !d.deployed {
		return xerrors.New(xerrors.CodeSetupOrder, fmt.Sprintf("%s 尚未部署，无法升级", d.name))
	}
	return requireSecret(d.name, newSecret)(context.Background())
}
