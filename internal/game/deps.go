package game

import (
	"context"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

// Contract is the game contract as seen by the core. *chain.Contract
// implements it.
type Contract interface {
	Address() common.Address
	Deployed(ctx context.Context) (bool, error)
	Balance(ctx context.Context) (*big.Int, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)

	JoinFee(ctx context.Context) (*big.Int, error)
	GridSize(ctx context.Context) (uint64, error)
	TurnDuration(ctx context.Context) (time.Duration, error)
	TreasurePosition(ctx context.Context) (uint64, error)
	PlayerCount(ctx context.Context) (uint64, error)
	Player(ctx context.Context, account common.Address) (chain.Player, error)
	PlayerName(ctx context.Context, account common.Address) (string, error)
	PlayerScore(ctx context.Context, account common.Address) (uint64, error)
	Winner(ctx context.Context) (common.Address, error)

	JoinGame(ctx context.Context, s wallet.Signer, name string, fee *big.Int, opts chain.TxOpts) (*chain.PendingTx, error)
	Move(ctx context.Context, s wallet.Signer, cell uint64, opts chain.TxOpts) (*chain.PendingTx, error)
	ResetTurn(ctx context.Context, s wallet.Signer, opts chain.TxOpts) (*chain.PendingTx, error)
	Wait(ctx context.Context, tx *chain.PendingTx) (*types.Receipt, error)
}

// AccountBackend is the off-chain account system. Calls are made from
// background tasks; errors are logged, never surfaced to the player.
type AccountBackend interface {
	LinkWallet(ctx context.Context, address common.Address) error
	ReportTreasures(ctx context.Context, address common.Address, treasures uint64) error
	// RecordGamePlayed counts a confirmed join by address.
	RecordGamePlayed(ctx context.Context, address common.Address) error
	// DisplayName returns "" when no profile is linked to address.
	DisplayName(ctx context.Context, address common.Address) (string, error)
}

type ActionStatus string

const (
	StatusSubmitted     ActionStatus = "submitted"
	StatusConfirmed     ActionStatus = "confirmed"
	StatusFailed        ActionStatus = "failed"
	StatusTimedOut      ActionStatus = "timed_out"
	StatusLateConfirmed ActionStatus = "late_confirmed"
)

// ActionRecord is one step of an action's lifecycle.
type ActionRecord struct {
	Time    time.Time      `json:"time"`
	Account common.Address `json:"account"`
	Kind    ActionKind     `json:"kind"`
	Status  ActionStatus   `json:"status"`
	TxHash  common.Hash    `json:"tx,omitempty"`
	Cell    *uint64        `json:"cell,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Recorder receives action lifecycle records, e.g. for a journal.
type Recorder interface {
	RecordAction(rec ActionRecord)
}

type nopRecorder struct{}

func (nopRecorder) RecordAction(ActionRecord) {}

type nopAccounts struct{}

func (nopAccounts) LinkWallet(context.Context, common.Address) error { return nil }
func (nopAccounts) ReportTreasures(context.Context, common.Address, uint64) error {
	return nil
}
func (nopAccounts) RecordGamePlayed(context.Context, common.Address) error { return nil }
func (nopAccounts) DisplayName(context.Context, common.Address) (string, error) { return "", nil }

// Tasks runs fire-and-forget work that must not outlive Close.
type Tasks struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTasks() *Tasks {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tasks{ctx: ctx, cancel: cancel}
}

func (t *Tasks) Go(fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(t.ctx)
	}()
}

// Wait blocks until every started task has returned.
func (t *Tasks) Wait() { t.wg.Wait() }

func (t *Tasks) Close() {
	t.cancel()
	t.wg.Wait()
}

func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
