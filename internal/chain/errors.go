package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is a mined transaction that failed.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

const revertPrefix = "execution reverted"

// RevertReason extracts the contract-supplied reason from err, looking at
// RevertError, JSON-RPC error data carrying Error(string), and finally the
// node's "execution reverted: ..." message.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, re.Reason != ""
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if b, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(b); uerr == nil && reason != "" {
					return reason, true
				}
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, revertPrefix); i >= 0 {
		rest := strings.TrimSpace(msg[i+len(revertPrefix):])
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		if rest != "" {
			return rest, true
		}
	}
	return "", false
}
