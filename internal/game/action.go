package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/config"
	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

const (
	reasonJoinFailed  = "Transaction failed. Check contract status."
	reasonMoveFailed  = "Move failed. Check position and turn status."
	reasonResetFailed = "Turn reset failed."
	reasonRejected    = "Transaction rejected in wallet."
	reasonTimedOut    = "Timed out waiting for confirmation."
)

// SignerSource yields the signer of the connected account, or nil.
type SignerSource interface {
	Signer() wallet.Signer
}

type ControllerConfig struct {
	// JoinFee is used when the contract's fee cannot be read.
	JoinFee           *big.Int
	GasBuffer         *big.Int
	DefaultPlayerName string
	JoinGas           uint64
	MoveGas           uint64
	ResetGas          uint64
	GasPrice          *big.Int
	ActionTimeout     time.Duration
	LateWatch         time.Duration
	ValidateAdjacency bool
}

// ControllerConfigFrom maps runtime configuration onto the controller.
func ControllerConfigFrom(cfg config.Config) ControllerConfig {
	return ControllerConfig{
		JoinFee:           cfg.JoinFeeWei(),
		GasBuffer:         cfg.GasBufferWei(),
		DefaultPlayerName: cfg.Game.DefaultPlayerName,
		JoinGas:           cfg.Gas.JoinLimit,
		MoveGas:           cfg.Gas.MoveLimit,
		ResetGas:          cfg.Gas.ResetLimit,
		GasPrice:          cfg.GasPriceWei(),
		ActionTimeout:     cfg.Game.ActionTimeout,
		LateWatch:         cfg.Game.LateWatch,
		ValidateAdjacency: cfg.Game.ValidateAdjacency,
	}
}

// InFlight is the action currently being submitted for an account.
type InFlight struct {
	Kind        ActionKind     `json:"kind"`
	Account     common.Address `json:"account"`
	SubmittedAt time.Time      `json:"submittedAt"`
	TxHash      common.Hash    `json:"tx,omitempty"`
}

// Outcome is a confirmed action. SyncErr is set when the follow-up refresh
// failed; the action itself still succeeded.
type Outcome struct {
	Kind    ActionKind  `json:"kind"`
	TxHash  common.Hash `json:"tx"`
	Model   ReadModel   `json:"model"`
	SyncErr string      `json:"syncError,omitempty"`
}

// Controller submits player actions. At most one action per account is in
// flight; a second submit fails with ErrAlreadyInProgress.
type Controller struct {
	cfg      ControllerConfig
	contract Contract
	signers  SignerSource
	sync     *Synchronizer
	accounts AccountBackend
	rec      Recorder
	tasks    *Tasks
	log      logrus.FieldLogger
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[common.Address]*InFlight
}

type ControllerOptions struct {
	Accounts AccountBackend
	Recorder Recorder
	Tasks    *Tasks
	Log      logrus.FieldLogger
}

func NewController(cfg ControllerConfig, contract Contract, signers SignerSource, s *Synchronizer, opts ControllerOptions) *Controller {
	if opts.Accounts == nil {
		opts.Accounts = nopAccounts{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Tasks == nil {
		opts.Tasks = NewTasks()
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 3 * time.Minute
	}
	if cfg.LateWatch <= 0 {
		cfg.LateWatch = 30 * time.Minute
	}
	if cfg.GasBuffer == nil {
		cfg.GasBuffer = new(big.Int)
	}
	return &Controller{
		cfg:      cfg,
		contract: contract,
		signers:  signers,
		sync:     s,
		accounts: opts.Accounts,
		rec:      opts.Recorder,
		tasks:    opts.Tasks,
		log:      orDiscard(opts.Log).WithField("component", "actions"),
		now:      time.Now,
		inFlight: map[common.Address]*InFlight{},
	}
}

// InFlight reports the pending action of account, if any.
func (c *Controller) InFlight(account common.Address) (InFlight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.inFlight[account]
	if !ok {
		return InFlight{}, false
	}
	return *f, true
}

// SubmitJoin pays the join fee and registers displayName. An empty name
// falls back to the linked profile's display name, then to the configured
// default.
func (c *Controller) SubmitJoin(ctx context.Context, displayName string) (Outcome, error) {
	signer := c.signers.Signer()
	if signer == nil {
		return Outcome{}, &PreconditionError{Err: ErrNoSigner}
	}
	account := signer.Account()
	release, err := c.begin(account, ActionJoin)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	if err := c.requireDeployed(ctx); err != nil {
		return Outcome{}, err
	}
	name := c.resolveName(ctx, account, displayName)
	if name == "" {
		return Outcome{}, &ValidationError{Field: "name", Message: "player name required"}
	}

	fee := c.joinFee(ctx)
	balance, err := c.contract.BalanceOf(ctx, account)
	if err != nil {
		return Outcome{}, &SyncError{Step: "account balance", Err: err}
	}
	need := new(big.Int).Add(fee, c.cfg.GasBuffer)
	if balance.Cmp(need) < 0 {
		return Outcome{}, &PreconditionError{
			Err:    ErrInsufficientFunds,
			Detail: fmt.Sprintf("need %s ETH + %s ETH for gas", config.FormatEther(fee), config.FormatEther(c.cfg.GasBuffer)),
		}
	}

	c.log.WithFields(logrus.Fields{"account": account.Hex(), "name": name}).Info("submitting join")
	tx, err := c.contract.JoinGame(ctx, signer, name, fee, c.opts(c.cfg.JoinGas))
	if err != nil {
		return Outcome{}, c.failed(account, ActionJoin, common.Hash{}, nil, err)
	}
	return c.await(ctx, account, ActionJoin, tx, nil)
}

// SubmitMove moves the player to cell. The contract decides legality;
// local adjacency checks only run when enabled.
func (c *Controller) SubmitMove(ctx context.Context, cell uint64) (Outcome, error) {
	signer := c.signers.Signer()
	if signer == nil {
		return Outcome{}, &PreconditionError{Err: ErrNoSigner}
	}
	account := signer.Account()
	release, err := c.begin(account, ActionMove)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	if c.cfg.ValidateAdjacency {
		if err := c.checkAdjacent(account, cell); err != nil {
			return Outcome{}, err
		}
	}

	c.log.WithFields(logrus.Fields{"account": account.Hex(), "cell": cell}).Info("submitting move")
	tx, err := c.contract.Move(ctx, signer, cell, c.opts(c.cfg.MoveGas))
	if err != nil {
		return Outcome{}, c.failed(account, ActionMove, common.Hash{}, &cell, err)
	}
	return c.await(ctx, account, ActionMove, tx, &cell)
}

func (c *Controller) SubmitResetTurn(ctx context.Context) (Outcome, error) {
	signer := c.signers.Signer()
	if signer == nil {
		return Outcome{}, &PreconditionError{Err: ErrNoSigner}
	}
	account := signer.Account()
	release, err := c.begin(account, ActionResetTurn)
	if err != nil {
		return Outcome{}, err
	}
	defer release()

	c.log.WithField("account", account.Hex()).Info("submitting turn reset")
	tx, err := c.contract.ResetTurn(ctx, signer, c.opts(c.cfg.ResetGas))
	if err != nil {
		return Outcome{}, c.failed(account, ActionResetTurn, common.Hash{}, nil, err)
	}
	return c.await(ctx, account, ActionResetTurn, tx, nil)
}

func (c *Controller) begin(account common.Address, kind ActionKind) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[account]; busy {
		return nil, ErrAlreadyInProgress
	}
	c.inFlight[account] = &InFlight{Kind: kind, Account: account, SubmittedAt: c.now()}
	return func() {
		c.mu.Lock()
		delete(c.inFlight, account)
		c.mu.Unlock()
	}, nil
}

func (c *Controller) setTx(account common.Address, hash common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inFlight[account]; ok {
		f.TxHash = hash
	}
}

func (c *Controller) requireDeployed(ctx context.Context) error {
	ok, err := c.contract.Deployed(ctx)
	if err != nil {
		return &SyncError{Step: "code", Err: err}
	}
	if !ok {
		return &PreconditionError{Err: ErrContractNotDeployed, Detail: c.contract.Address().Hex()}
	}
	return nil
}

func (c *Controller) resolveName(ctx context.Context, account common.Address, input string) string {
	if name := strings.TrimSpace(input); name != "" {
		return name
	}
	bctx, cancel := context.WithTimeout(ctx, backendTimeout)
	defer cancel()
	if name, err := c.accounts.DisplayName(bctx, account); err != nil {
		c.log.WithError(err).Debug("display name")
	} else if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return strings.TrimSpace(c.cfg.DefaultPlayerName)
}

// joinFee prefers the contract's fee over the configured one.
func (c *Controller) joinFee(ctx context.Context) *big.Int {
	fee, err := c.contract.JoinFee(ctx)
	if err == nil && fee != nil {
		return fee
	}
	if err != nil {
		c.log.WithError(err).Debug("join fee read failed, using configured fee")
	}
	if c.cfg.JoinFee == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(c.cfg.JoinFee)
}

func (c *Controller) checkAdjacent(account common.Address, cell uint64) error {
	m := c.sync.Model()
	if m.Account == nil || *m.Account != account || !m.Loaded || m.Global.GridSize == 0 {
		return nil
	}
	size := m.Global.GridSize
	if cell >= size*size {
		return &ValidationError{Field: "cell", Message: fmt.Sprintf("cell %d is off the %dx%d board", cell, size, size)}
	}
	if !m.HasJoined {
		return &ValidationError{Field: "cell", Message: "join the game before moving"}
	}
	if !Adjacent(m.Player.Position, cell, size) {
		return &ValidationError{Field: "cell", Message: fmt.Sprintf("cell %d is not adjacent to %d", cell, m.Player.Position)}
	}
	return nil
}

func (c *Controller) opts(gas uint64) chain.TxOpts {
	return chain.TxOpts{GasLimit: gas, GasPrice: c.cfg.GasPrice}
}

func (c *Controller) await(ctx context.Context, account common.Address, kind ActionKind, tx *chain.PendingTx, cell *uint64) (Outcome, error) {
	c.setTx(account, tx.Hash)
	c.record(account, kind, StatusSubmitted, tx.Hash, cell, "")
	log := c.log.WithFields(logrus.Fields{"account": account.Hex(), "action": kind, "tx": tx.Hash.Hex()})

	wctx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
	_, err := c.contract.Wait(wctx, tx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("confirmation not seen in time, watching in background")
			c.record(account, kind, StatusTimedOut, tx.Hash, cell, reasonTimedOut)
			c.watchLate(account, kind, tx, cell)
			return Outcome{}, &ActionFailed{Kind: kind, Reason: reasonTimedOut, TxHash: tx.Hash, Err: err}
		}
		return Outcome{}, c.failed(account, kind, tx.Hash, cell, err)
	}

	log.Info("action confirmed")
	c.record(account, kind, StatusConfirmed, tx.Hash, cell, "")
	if kind == ActionJoin {
		c.countGame(account)
	}
	out := Outcome{Kind: kind, TxHash: tx.Hash}
	m, serr := c.sync.Refresh(context.WithoutCancel(ctx), account)
	out.Model = m
	if serr != nil {
		out.SyncErr = serr.Error()
	}
	return out, nil
}

// watchLate keeps waiting for a transaction the caller gave up on and
// refreshes the submitting account if it lands.
func (c *Controller) watchLate(account common.Address, kind ActionKind, tx *chain.PendingTx, cell *uint64) {
	c.tasks.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.LateWatch)
		defer cancel()
		if _, err := c.contract.Wait(ctx, tx); err != nil {
			if ctx.Err() == nil {
				reason, _ := chain.RevertReason(err)
				c.record(account, kind, StatusFailed, tx.Hash, cell, reason)
			}
			return
		}
		c.record(account, kind, StatusLateConfirmed, tx.Hash, cell, "")
		if kind == ActionJoin {
			c.countGame(account)
		}
		if _, err := c.sync.Refresh(ctx, account); err != nil {
			c.log.WithError(err).Warn("refresh after late confirmation")
		}
	})
}

func (c *Controller) countGame(account common.Address) {
	c.tasks.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		if err := c.accounts.RecordGamePlayed(ctx, account); err != nil {
			c.log.WithError(err).WithField("account", account.Hex()).Warn("record game played")
		}
	})
}

func (c *Controller) failed(account common.Address, kind ActionKind, hash common.Hash, cell *uint64, err error) error {
	reason, ok := chain.RevertReason(err)
	switch {
	case ok:
	case wallet.IsUserRejected(err):
		reason = reasonRejected
	default:
		reason = genericReason(kind)
	}
	c.log.WithFields(logrus.Fields{"account": account.Hex(), "action": kind}).WithError(err).Warn("action failed")
	c.record(account, kind, StatusFailed, hash, cell, reason)
	return &ActionFailed{Kind: kind, Reason: reason, TxHash: hash, Err: err}
}

func genericReason(kind ActionKind) string {
	switch kind {
	case ActionJoin:
		return reasonJoinFailed
	case ActionMove:
		return reasonMoveFailed
	default:
		return reasonResetFailed
	}
}

func (c *Controller) record(account common.Address, kind ActionKind, status ActionStatus, hash common.Hash, cell *uint64, reason string) {
	c.rec.RecordAction(ActionRecord{
		Time:    c.now().UTC(),
		Account: account,
		Kind:    kind,
		Status:  status,
		TxHash:  hash,
		Cell:    cell,
		Reason:  reason,
	})
}
