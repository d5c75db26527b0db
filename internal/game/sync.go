package game

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const backendTimeout = 10 * time.Second

type rules struct {
	gridSize     uint64
	joinFee      *big.Int
	turnDuration time.Duration
}

// Synchronizer owns the read model. Refreshes are serialized; a refresh for
// an account that is no longer active is returned to its caller but never
// published.
type Synchronizer struct {
	contract     Contract
	accounts     AccountBackend
	tasks        *Tasks
	log          logrus.FieldLogger
	showTreasure bool

	refreshMu sync.Mutex
	rules     *rules

	mu      sync.RWMutex
	active  *common.Address
	model   ReadModel
	subs    map[int]chan ReadModel
	nextSub int

	trigger chan struct{}
}

type SyncOptions struct {
	ShowTreasurePosition bool
	Accounts             AccountBackend
	Tasks                *Tasks
	Log                  logrus.FieldLogger
}

func NewSynchronizer(contract Contract, opts SyncOptions) *Synchronizer {
	if opts.Accounts == nil {
		opts.Accounts = nopAccounts{}
	}
	if opts.Tasks == nil {
		opts.Tasks = NewTasks()
	}
	return &Synchronizer{
		contract:     contract,
		accounts:     opts.Accounts,
		tasks:        opts.Tasks,
		log:          orDiscard(opts.Log).WithField("component", "sync"),
		showTreasure: opts.ShowTreasurePosition,
		model:        emptyModel(nil),
		subs:         map[int]chan ReadModel{},
		trigger:      make(chan struct{}, 1),
	}
}

// Model returns a snapshot of the published read model.
func (s *Synchronizer) Model() ReadModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model.Clone()
}

func (s *Synchronizer) Active() *common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	a := *s.active
	return &a
}

// SetActive switches the account whose view is published. Switching resets
// the model to empty until the next refresh lands.
func (s *Synchronizer) SetActive(account *common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sameAccount(s.active, account) {
		return
	}
	if account == nil {
		s.active = nil
	} else {
		a := *account
		s.active = &a
	}
	s.model = emptyModel(account)
	s.publishLocked()
}

// ResetRules drops the cached game rules, e.g. after a network switch.
func (s *Synchronizer) ResetRules() {
	s.refreshMu.Lock()
	s.rules = nil
	s.refreshMu.Unlock()
}

// Refresh reads the contract state for account and publishes it if account
// is still active.
func (s *Synchronizer) Refresh(ctx context.Context, account common.Address) (ReadModel, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	log := s.log.WithField("account", account.Hex())
	s.markSynchronizing(account)

	m, err := s.read(ctx, account)
	if err != nil {
		log.WithError(err).Warn("refresh failed")
		s.publishError(account, err)
		return s.snapshotFor(account), err
	}

	if s.publishIfActive(account, m) {
		score := m.Player.Score
		s.tasks.Go(func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, backendTimeout)
			defer cancel()
			if err := s.accounts.ReportTreasures(ctx, account, score); err != nil {
				log.WithError(err).Warn("report treasures")
			}
		})
	} else {
		log.Debug("discarding refresh for inactive account")
	}
	return m.Clone(), nil
}

func (s *Synchronizer) read(ctx context.Context, account common.Address) (ReadModel, error) {
	deployed, err := s.contract.Deployed(ctx)
	if err != nil {
		return ReadModel{}, &SyncError{Step: "code", Err: err}
	}
	if !deployed {
		return ReadModel{}, ErrContractNotDeployed
	}

	s.loadRules(ctx)

	rec, err := s.contract.Player(ctx, account)
	if err != nil {
		return ReadModel{}, &SyncError{Step: "players", Err: err}
	}
	winner, err := s.contract.Winner(ctx)
	if err != nil {
		return ReadModel{}, &SyncError{Step: "winner", Err: err}
	}
	pool, err := s.contract.Balance(ctx)
	if err != nil {
		return ReadModel{}, &SyncError{Step: "balance", Err: err}
	}

	// Best effort.
	name, err := s.contract.PlayerName(ctx, account)
	if err != nil {
		name = ""
	}
	score, err := s.contract.PlayerScore(ctx, account)
	if err != nil {
		score = 0
	}
	count, err := s.contract.PlayerCount(ctx)
	if err != nil {
		count = 0
	}

	m := emptyModel(&account)
	m.Player = PlayerRecord{
		Position:     rec.Position,
		HasMoved:     rec.HasMoved,
		Name:         name,
		Score:        score,
		LastMoveTime: rec.LastMoveTime,
	}
	m.HasJoined = HasJoined(m.Player)
	m.Global.Winner = winner
	m.Global.HasWinner = winner != (common.Address{})
	m.Global.Pool = cloneBig(pool)
	m.Global.PlayerCount = count
	if s.rules != nil {
		m.Global.GridSize = s.rules.gridSize
		m.Global.JoinFee = cloneBig(s.rules.joinFee)
		m.Global.TurnDuration = s.rules.turnDuration
	}
	if s.showTreasure {
		if pos, err := s.contract.TreasurePosition(ctx); err == nil {
			m.Global.TreasurePosition = &pos
		}
	}
	m.Loaded = true
	return m, nil
}

// loadRules caches the immutable game parameters. Failures leave the cache
// empty so the next refresh retries.
func (s *Synchronizer) loadRules(ctx context.Context) {
	if s.rules != nil {
		return
	}
	size, err := s.contract.GridSize(ctx)
	if err != nil {
		s.log.WithError(err).Debug("grid size")
		return
	}
	fee, err := s.contract.JoinFee(ctx)
	if err != nil {
		s.log.WithError(err).Debug("join fee")
		return
	}
	turn, err := s.contract.TurnDuration(ctx)
	if err != nil {
		s.log.WithError(err).Debug("turn duration")
		return
	}
	s.rules = &rules{gridSize: size, joinFee: fee, turnDuration: turn}
}

// Trigger requests a refresh of the active account. Requests made while
// one is pending coalesce.
func (s *Synchronizer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run serves Trigger until ctx is done.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
		}
		acc := s.Active()
		if acc == nil {
			continue
		}
		_, _ = s.Refresh(ctx, *acc)
	}
}

// Subscribe streams published models. Slow readers only see the latest.
func (s *Synchronizer) Subscribe() (<-chan ReadModel, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan ReadModel, 1)
	ch <- s.model.Clone()
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Synchronizer) markSynchronizing(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isActiveLocked(account) {
		return
	}
	s.model.Synchronizing = true
	s.publishLocked()
}

func (s *Synchronizer) publishIfActive(account common.Address, m ReadModel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isActiveLocked(account) {
		return false
	}
	s.model = m.Clone()
	s.publishLocked()
	return true
}

// publishError keeps the last good data and records err.
func (s *Synchronizer) publishError(account common.Address, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isActiveLocked(account) {
		return
	}
	s.model.Synchronizing = false
	s.model.LastError = err.Error()
	s.publishLocked()
}

func (s *Synchronizer) snapshotFor(account common.Address) ReadModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.isActiveLocked(account) {
		return s.model.Clone()
	}
	return emptyModel(&account)
}

func (s *Synchronizer) isActiveLocked(account common.Address) bool {
	return s.active != nil && *s.active == account
}

func (s *Synchronizer) publishLocked() {
	m := s.model.Clone()
	for _, ch := range s.subs {
		select {
		case ch <- m:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- m:
			default:
			}
		}
	}
}

func sameAccount(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
