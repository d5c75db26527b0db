package game

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

// EventRecorder receives decoded contract events.
type EventRecorder interface {
	RecordEvent(ev chain.Event)
}

// Session wires the connection, synchronizer and controller for one
// client and routes wallet and contract notifications between them.
type Session struct {
	Conn    *Connection
	Sync    *Synchronizer
	Actions *Controller

	events        EventRecorder
	expectedChain uint64
	tasks         *Tasks
	log           logrus.FieldLogger
}

type SessionOptions struct {
	Controller           ControllerConfig
	ShowTreasurePosition bool
	// ExpectedChainID, when non-zero, is compared against the wallet's
	// network and a mismatch is logged.
	ExpectedChainID uint64
	Accounts        AccountBackend
	Recorder        Recorder
	Events          EventRecorder
	Log             logrus.FieldLogger
}

func NewSession(contract Contract, provider wallet.Provider, opts SessionOptions) *Session {
	log := orDiscard(opts.Log)
	tasks := NewTasks()
	conn := NewConnection(provider, ConnectionOptions{Accounts: opts.Accounts, Tasks: tasks, Log: log})
	sync := NewSynchronizer(contract, SyncOptions{
		ShowTreasurePosition: opts.ShowTreasurePosition,
		Accounts:             opts.Accounts,
		Tasks:                tasks,
		Log:                  log,
	})
	ctrl := NewController(opts.Controller, contract, conn, sync, ControllerOptions{
		Accounts: opts.Accounts,
		Recorder: opts.Recorder,
		Tasks:    tasks,
		Log:      log,
	})
	return &Session{
		Conn:          conn,
		Sync:          sync,
		Actions:       ctrl,
		events:        opts.Events,
		expectedChain: opts.ExpectedChainID,
		tasks:         tasks,
		log:           log.WithField("component", "session"),
	}
}

// Start resolves an already-authorized account and loads its view.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Conn.Initialize(ctx); err != nil {
		return err
	}
	s.checkChain(s.Conn.State().ChainID)
	acc := s.Conn.Account()
	s.Sync.SetActive(acc)
	if acc != nil {
		if _, err := s.Sync.Refresh(ctx, *acc); err != nil {
			s.log.WithError(err).Warn("initial refresh")
		}
	}
	return nil
}

// Connect prompts the wallet and returns the freshly loaded view.
func (s *Session) Connect(ctx context.Context) (ReadModel, error) {
	acc, err := s.Conn.Connect(ctx)
	if err != nil {
		return s.Sync.Model(), err
	}
	s.Sync.SetActive(&acc)
	return s.Sync.Refresh(ctx, acc)
}

// HandleContractEvent journals ev and schedules a refresh.
func (s *Session) HandleContractEvent(ev chain.Event) {
	if s.events != nil {
		s.events.RecordEvent(ev)
	}
	s.log.WithFields(logrus.Fields{"event": ev.Kind, "block": ev.BlockNumber}).Debug("contract event")
	s.Sync.Trigger()
}

// Run processes notifications until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Conn.Run(ctx) })
	g.Go(func() error { return s.Sync.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-s.Conn.Events():
				s.handleConnEvent(ev)
			}
		}
	})
	return g.Wait()
}

func (s *Session) handleConnEvent(ev ConnEvent) {
	switch ev.Kind {
	case AccountChanged:
		s.Sync.SetActive(ev.Account)
		if ev.Account != nil {
			s.Sync.Trigger()
		}
	case NetworkChanged:
		s.checkChain(ev.ChainID)
		s.Sync.ResetRules()
		s.Sync.Trigger()
	}
}

func (s *Session) checkChain(id *big.Int) {
	if s.expectedChain == 0 || id == nil {
		return
	}
	if !id.IsUint64() || id.Uint64() != s.expectedChain {
		s.log.WithFields(logrus.Fields{
			"network":  NetworkLabel(id),
			"expected": NetworkLabel(new(big.Int).SetUint64(s.expectedChain)),
		}).Warn("wallet is on an unexpected network")
	}
}

// Account is the connected wallet account, if any.
func (s *Session) Account() *common.Address { return s.Conn.Account() }

// Close waits for background tasks, cancelling any late-confirmation
// watches.
func (s *Session) Close() {
	s.tasks.Close()
}
