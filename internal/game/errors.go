package game

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoWallet            = errors.New("no wallet provider configured")
	ErrNoSigner            = errors.New("no wallet account connected")
	ErrContractNotDeployed = errors.New("game contract is not deployed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyInProgress   = errors.New("an action is already in progress for this account")
)

// ConnectionError is a failed wallet connection attempt: the user declined,
// or the wallet could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("wallet %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PreconditionError is a locally detected reason an action cannot start.
// No remote write has been issued when it is returned.
type PreconditionError struct {
	Err    error
	Detail string
}

func (e *PreconditionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *PreconditionError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ActionFailed is a remote rejection of a submitted action: a revert, a
// declined signature, or a receipt that never arrived in time.
type ActionFailed struct {
	Kind   ActionKind
	Reason string
	TxHash common.Hash
	Err    error
}

func (e *ActionFailed) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Reason)
}

func (e *ActionFailed) Unwrap() error { return e.Err }

// SyncError is a failed remote read during Refresh.
type SyncError struct {
	Step string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
