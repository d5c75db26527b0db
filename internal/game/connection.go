package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

// NetworkLabel names a chain id for display.
func NetworkLabel(chainID *big.Int) string {
	if chainID == nil {
		return ""
	}
	if chainID.IsUint64() {
		switch chainID.Uint64() {
		case 1:
			return "mainnet"
		case 11155111:
			return "sepolia"
		case 17000:
			return "holesky"
		case 1337, 31337:
			return "Local Network"
		}
	}
	return "chain-" + chainID.String()
}

type ConnectionState struct {
	Account      *common.Address `json:"account"`
	ChainID      *big.Int        `json:"chainId,omitempty"`
	NetworkLabel string          `json:"network"`
}

type ConnEventKind string

const (
	AccountChanged ConnEventKind = "account_changed"
	NetworkChanged ConnEventKind = "network_changed"
)

type ConnEvent struct {
	Kind    ConnEventKind
	Account *common.Address
	ChainID *big.Int
}

// Connection tracks the wallet's active account and network and derives
// the signer used for writes.
type Connection struct {
	provider wallet.Provider
	accounts AccountBackend
	tasks    *Tasks
	log      logrus.FieldLogger

	mu     sync.RWMutex
	state  ConnectionState
	signer wallet.Signer

	events chan ConnEvent
}

type ConnectionOptions struct {
	Accounts AccountBackend
	Tasks    *Tasks
	Log      logrus.FieldLogger
}

// NewConnection accepts a nil provider; the connection then stays
// read-only.
func NewConnection(provider wallet.Provider, opts ConnectionOptions) *Connection {
	if opts.Accounts == nil {
		opts.Accounts = nopAccounts{}
	}
	if opts.Tasks == nil {
		opts.Tasks = NewTasks()
	}
	return &Connection{
		provider: provider,
		accounts: opts.Accounts,
		tasks:    opts.Tasks,
		log:      orDiscard(opts.Log).WithField("component", "connection"),
		events:   make(chan ConnEvent, 16),
	}
}

// Initialize picks up an already-authorized account without prompting.
func (c *Connection) Initialize(ctx context.Context) error {
	if c.provider == nil {
		return nil
	}
	id, err := c.provider.ChainID(ctx)
	if err != nil {
		return &ConnectionError{Op: "chain id", Err: err}
	}
	c.setChain(id)

	accs, err := c.provider.Accounts(ctx)
	if err != nil {
		return &ConnectionError{Op: "accounts", Err: err}
	}
	if len(accs) == 0 {
		return nil
	}
	if err := c.setAccount(accs[0]); err != nil {
		return &ConnectionError{Op: "signer", Err: err}
	}
	return nil
}

// Connect prompts the wallet for authorization.
func (c *Connection) Connect(ctx context.Context) (common.Address, error) {
	if c.provider == nil {
		return common.Address{}, &ConnectionError{Op: "connect", Err: ErrNoWallet}
	}
	accs, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, &ConnectionError{Op: "connect", Err: err}
	}
	if len(accs) == 0 {
		return common.Address{}, &ConnectionError{Op: "connect", Err: errors.New("no accounts authorized")}
	}
	if id, err := c.provider.ChainID(ctx); err == nil {
		c.setChain(id)
	}
	if err := c.setAccount(accs[0]); err != nil {
		return common.Address{}, &ConnectionError{Op: "signer", Err: err}
	}
	return accs[0], nil
}

func (c *Connection) HandleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		c.mu.Lock()
		had := c.state.Account != nil
		c.state.Account = nil
		c.signer = nil
		c.mu.Unlock()
		if had {
			c.log.Info("wallet disconnected")
			c.emit(ConnEvent{Kind: AccountChanged})
		}
		return
	}
	if cur := c.Account(); cur != nil && *cur == accounts[0] {
		return
	}
	if err := c.setAccount(accounts[0]); err != nil {
		c.log.WithError(err).Warn("derive signer")
	}
}

func (c *Connection) HandleChainChanged(chainID *big.Int) {
	c.setChain(chainID)
	c.emit(ConnEvent{Kind: NetworkChanged, ChainID: new(big.Int).Set(chainID)})
}

// Run forwards provider notifications until ctx is done.
func (c *Connection) Run(ctx context.Context) error {
	if c.provider == nil {
		<-ctx.Done()
		return nil
	}
	ch := c.provider.Events()
	if ch == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case wallet.EventAccountsChanged:
				c.HandleAccountsChanged(ev.Accounts)
			case wallet.EventChainChanged:
				if ev.ChainID != nil {
					c.HandleChainChanged(ev.ChainID)
				}
			}
		}
	}
}

// Events delivers account and network changes.
func (c *Connection) Events() <-chan ConnEvent { return c.events }

func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.state
	if st.Account != nil {
		a := *st.Account
		st.Account = &a
	}
	st.ChainID = cloneBig(st.ChainID)
	return st
}

func (c *Connection) Account() *common.Address {
	return c.State().Account
}

// Signer is nil while no account is connected.
func (c *Connection) Signer() wallet.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer
}

func (c *Connection) setChain(id *big.Int) {
	c.mu.Lock()
	c.state.ChainID = cloneBig(id)
	c.state.NetworkLabel = NetworkLabel(id)
	c.mu.Unlock()
}

func (c *Connection) setAccount(account common.Address) error {
	signer, err := c.provider.Signer(account)
	if err != nil {
		return fmt.Errorf("signer for %s: %w", account.Hex(), err)
	}
	c.mu.Lock()
	c.state.Account = &account
	c.signer = signer
	c.mu.Unlock()

	c.log.WithField("account", account.Hex()).Info("wallet account active")
	a := account
	c.emit(ConnEvent{Kind: AccountChanged, Account: &a})
	c.tasks.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, backendTimeout)
		defer cancel()
		if err := c.accounts.LinkWallet(ctx, account); err != nil {
			c.log.WithError(err).Warn("link wallet")
		}
	})
	return nil
}

func (c *Connection) emit(ev ConnEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.WithField("kind", ev.Kind).Warn("connection event dropped")
	}
}
