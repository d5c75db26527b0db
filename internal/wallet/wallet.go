// Package wallet is the boundary to the user's key-holding agent: account
// authorization, network identity, change notifications and transaction
// signing.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnavailable is returned when the wallet cannot be reached.
var ErrUnavailable = errors.New("wallet unavailable")

// CodeUserRejected is the EIP-1193 code for a request the user declined.
const CodeUserRejected = 4001

type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event is a notification pushed by the wallet.
type Event struct {
	Kind     EventKind
	Accounts []common.Address
	ChainID  *big.Int
}

// Provider is the read side of a wallet plus signer derivation.
type Provider interface {
	// Accounts returns already-authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts prompts the user for authorization.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	// Signer returns a write-capable handle bound to account.
	Signer(account common.Address) (Signer, error)
	// Events delivers accountsChanged/chainChanged notifications. A nil
	// channel means the provider never emits them.
	Events() <-chan Event
}

// Signer submits state-changing transactions on behalf of one account.
type Signer interface {
	Account() common.Address
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// TxRequest is an unsigned contract call.
type TxRequest struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// RPCError is an error object returned by the wallet. It satisfies
// go-ethereum's rpc.Error and rpc.DataError so revert data can be decoded
// the same way as node errors.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet error %d", e.Code)
	}
	return e.Message
}

func (e *RPCError) ErrorCode() int { return e.Code }

func (e *RPCError) ErrorData() interface{} { return e.Data }

// IsUserRejected reports whether err is the user declining a prompt.
func IsUserRejected(err error) bool {
	var re *RPCError
	return errors.As(err, &re) && re.Code == CodeUserRejected
}
