package api

import (
	"errors"
	"net/http"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

const (
	// Transport validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Wallet and contract availability.
	ErrNoWallet       = "E_NO_WALLET"
	ErrWalletRejected = "E_WALLET_REJECTED"
	ErrNotDeployed    = "E_NOT_DEPLOYED"

	// Action preconditions and outcomes.
	ErrNoSigner     = "E_NO_SIGNER"
	ErrNoResource   = "E_NO_RESOURCE"
	ErrInvalidInput = "E_INVALID_INPUT"
	ErrBusy         = "E_BUSY"
	ErrActionFailed = "E_ACTION_FAILED"
	ErrSync         = "E_SYNC"

	// Accounts.
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrBadLogin     = "E_BAD_LOGIN"
	ErrNotFound     = "E_NOT_FOUND"
	ErrConflict     = "E_CONFLICT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]int{
	ErrBadRequest:     http.StatusBadRequest,
	ErrNoWallet:       http.StatusServiceUnavailable,
	ErrWalletRejected: http.StatusBadGateway,
	ErrNotDeployed:    http.StatusServiceUnavailable,
	ErrNoSigner:       http.StatusPreconditionFailed,
	ErrNoResource:     http.StatusPaymentRequired,
	ErrInvalidInput:   http.StatusUnprocessableEntity,
	ErrBusy:           http.StatusConflict,
	ErrActionFailed:   http.StatusUnprocessableEntity,
	ErrSync:           http.StatusBadGateway,
	ErrUnauthorized:   http.StatusUnauthorized,
	ErrBadLogin:       http.StatusUnauthorized,
	ErrNotFound:       http.StatusNotFound,
	ErrConflict:       http.StatusConflict,
	ErrInternal:       http.StatusInternalServerError,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// StatusFor is the HTTP status a code is served with.
func StatusFor(code string) int {
	if s, ok := knownCodes[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		TxHash  string `json:"tx,omitempty"`
	} `json:"error"`
}

// Classify maps an error from the game core or account service to a code
// and the message shown to the player.
func Classify(err error) (code, message string) {
	var (
		conn   *game.ConnectionError
		pre    *game.PreconditionError
		valid  *game.ValidationError
		failed *game.ActionFailed
		syncE  *game.SyncError
	)
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, game.ErrNoWallet):
		return ErrNoWallet, err.Error()
	case errors.As(err, &conn):
		return ErrWalletRejected, err.Error()
	case errors.Is(err, game.ErrContractNotDeployed):
		return ErrNotDeployed, err.Error()
	case errors.Is(err, game.ErrAlreadyInProgress):
		return ErrBusy, err.Error()
	case errors.As(err, &pre):
		if errors.Is(pre, game.ErrInsufficientFunds) {
			return ErrNoResource, err.Error()
		}
		return ErrNoSigner, err.Error()
	case errors.Is(err, game.ErrNoSigner):
		return ErrNoSigner, err.Error()
	case errors.As(err, &valid):
		return ErrInvalidInput, err.Error()
	case errors.As(err, &failed):
		return ErrActionFailed, failed.Reason
	case errors.As(err, &syncE):
		return ErrSync, err.Error()
	case errors.Is(err, account.ErrInvalidInput):
		return ErrInvalidInput, err.Error()
	case errors.Is(err, account.ErrUnauthorized):
		return ErrUnauthorized, err.Error()
	case errors.Is(err, account.ErrInvalidCredentials):
		return ErrBadLogin, err.Error()
	case errors.Is(err, account.ErrEmailTaken):
		return ErrConflict, err.Error()
	case errors.Is(err, account.ErrNotFound):
		return ErrNotFound, err.Error()
	default:
		return ErrInternal, "internal error"
	}
}
