package web3

import (
	stdErrors "errors"
	"fmt"

	xerrors "StakeEscrow-Chain/internal/errors"
)

// RevertError is returned when the ledger rejects a call or transaction.
type RevertError struct {
	Contract string
	Method   string
	Reason   string
}

func (e *RevertError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("execution reverted: %s", e.Reason)
	}
	return fmt.Sprintf("execution reverted in %s.%s: %s", e.Contract, e.Method, e.Reason)
}

// Is lets errors.Is(err, ErrReverted) match any revert regardless of reason,
// and also matches the coded EXECUTION_REVERTED error.
func (e *RevertError) Is(target error) bool {
	if target == ErrReverted {
		return true
	}
	if coded, ok := target.(*xerrors.Error); ok {
		return coded.Code() == xerrors.CodeExecutionReverted
	}
	return false
}

// ErrReverted is the sentinel matched by every RevertError.
var ErrReverted = stdErrors.New("execution reverted")

// Revert builds a RevertError with a formatted reason.
func Revert(format string, args ...any) *RevertError {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// RevertReason extracts the revert reason from err, if any.
func RevertReason(err error) (string, bool) {
	var revert *RevertError
	if stdErrors.As(err, &revert) {
		return revert.Reason, true
	}
	return "", false
}
