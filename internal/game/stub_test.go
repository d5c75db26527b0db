package game

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

var (
	gameAddr = common.HexToAddress("0x0881Ba8e0ac771359aFf201C00d06202aCe009b7")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func ether(milli int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1_000_000_000_000_000))
}

type sentTx struct {
	Method  string
	Account common.Address
	Name    string
	Cell    uint64
	Value   *big.Int
	Opts    chain.TxOpts
}

// stubContract is an in-memory game contract recording every call.
type stubContract struct {
	mu sync.Mutex

	deployed  bool
	deployErr error
	players   map[common.Address]chain.Player
	names     map[common.Address]string
	scores    map[common.Address]uint64
	balances  map[common.Address]*big.Int
	winner    common.Address
	pool      *big.Int
	joinFee   *big.Int
	gridSize  uint64
	turn      time.Duration
	treasure  uint64
	count     uint64

	playerErr  error
	nameErr    error
	scoreErr   error
	joinFeeErr error
	sendErr    error
	waitErr    error
	// waitGate, when set, holds Wait until it is closed or ctx ends.
	waitGate chan struct{}
	// onConfirm runs when Wait reports success, before it returns.
	onConfirm func(tx sentTx)
	// playerDelay slows Player to expose overlapping refreshes.
	playerDelay time.Duration

	calls      map[string]int
	sent       []sentTx
	concurrent int
	maxConc    int
}

func newStubContract() *stubContract {
	return &stubContract{
		deployed: true,
		players:  map[common.Address]chain.Player{},
		names:    map[common.Address]string{},
		scores:   map[common.Address]uint64{},
		balances: map[common.Address]*big.Int{},
		pool:     new(big.Int),
		joinFee:  ether(50),
		gridSize: 10,
		turn:     5 * time.Minute,
		calls:    map[string]int{},
	}
}

func (c *stubContract) note(name string) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
}

func (c *stubContract) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *stubContract) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *stubContract) Address() common.Address { return gameAddr }

func (c *stubContract) Deployed(ctx context.Context) (bool, error) {
	c.note("Deployed")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deployed, c.deployErr
}

func (c *stubContract) Balance(ctx context.Context) (*big.Int, error) {
	c.note("Balance")
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.pool), nil
}

func (c *stubContract) BalanceOf(ctx context.Context, a common.Address) (*big.Int, error) {
	c.note("BalanceOf")
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.balances[a]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *stubContract) JoinFee(ctx context.Context) (*big.Int, error) {
	c.note("JoinFee")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinFeeErr != nil {
		return nil, c.joinFeeErr
	}
	return new(big.Int).Set(c.joinFee), nil
}

func (c *stubContract) GridSize(ctx context.Context) (uint64, error) {
	c.note("GridSize")
	return c.gridSize, nil
}

func (c *stubContract) TurnDuration(ctx context.Context) (time.Duration, error) {
	c.note("TurnDuration")
	return c.turn, nil
}

func (c *stubContract) TreasurePosition(ctx context.Context) (uint64, error) {
	c.note("TreasurePosition")
	return c.treasure, nil
}

func (c *stubContract) PlayerCount(ctx context.Context) (uint64, error) {
	c.note("PlayerCount")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, nil
}

func (c *stubContract) Player(ctx context.Context, a common.Address) (chain.Player, error) {
	c.note("Player")
	c.mu.Lock()
	c.concurrent++
	if c.concurrent > c.maxConc {
		c.maxConc = c.concurrent
	}
	delay := c.playerDelay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.concurrent--
	if c.playerErr != nil {
		return chain.Player{}, c.playerErr
	}
	return c.players[a], nil
}

func (c *stubContract) PlayerName(ctx context.Context, a common.Address) (string, error) {
	c.note("PlayerName")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nameErr != nil {
		return "", c.nameErr
	}
	return c.names[a], nil
}

func (c *stubContract) PlayerScore(ctx context.Context, a common.Address) (uint64, error) {
	c.note("PlayerScore")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scoreErr != nil {
		return 0, c.scoreErr
	}
	return c.scores[a], nil
}

func (c *stubContract) Winner(ctx context.Context) (common.Address, error) {
	c.note("Winner")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winner, nil
}

func (c *stubContract) submit(s wallet.Signer, tx sentTx) (*chain.PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	tx.Account = s.Account()
	c.sent = append(c.sent, tx)
	hash := common.BigToHash(big.NewInt(int64(len(c.sent))))
	return &chain.PendingTx{Hash: hash, Method: tx.Method, Request: wallet.TxRequest{From: tx.Account, To: gameAddr}}, nil
}

func (c *stubContract) JoinGame(ctx context.Context, s wallet.Signer, name string, fee *big.Int, opts chain.TxOpts) (*chain.PendingTx, error) {
	return c.submit(s, sentTx{Method: "joinGame", Name: name, Value: fee, Opts: opts})
}

func (c *stubContract) Move(ctx context.Context, s wallet.Signer, cell uint64, opts chain.TxOpts) (*chain.PendingTx, error) {
	return c.submit(s, sentTx{Method: "move", Cell: cell, Opts: opts})
}

func (c *stubContract) ResetTurn(ctx context.Context, s wallet.Signer, opts chain.TxOpts) (*chain.PendingTx, error) {
	return c.submit(s, sentTx{Method: "resetTurn", Opts: opts})
}

func (c *stubContract) Wait(ctx context.Context, tx *chain.PendingTx) (*types.Receipt, error) {
	c.note("Wait")
	c.mu.Lock()
	gate := c.waitGate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	err := c.waitErr
	var sent sentTx
	idx := int(tx.Hash.Big().Int64()) - 1
	if idx >= 0 && idx < len(c.sent) {
		sent = c.sent[idx]
	}
	hook := c.onConfirm
	c.mu.Unlock()
	if err != nil {
		return &types.Receipt{Status: types.ReceiptStatusFailed}, err
	}
	if hook != nil {
		hook(sent)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type stubSigner struct{ account common.Address }

func (s stubSigner) Account() common.Address { return s.account }

func (s stubSigner) SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("stub signer does not send")
}

// signerSwitch is a SignerSource whose account tests can change.
type signerSwitch struct {
	mu sync.Mutex
	s  wallet.Signer
}

func (w *signerSwitch) Signer() wallet.Signer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.s
}

func (w *signerSwitch) set(account *common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if account == nil {
		w.s = nil
		return
	}
	w.s = stubSigner{account: *account}
}

// stubAccounts records calls made to the account backend.
type stubAccounts struct {
	mu        sync.Mutex
	names     map[common.Address]string
	linked    []common.Address
	treasures map[common.Address]uint64
	games     map[common.Address]int
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{names: map[common.Address]string{}, treasures: map[common.Address]uint64{}, games: map[common.Address]int{}}
}

func (a *stubAccounts) LinkWallet(ctx context.Context, addr common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.linked = append(a.linked, addr)
	return nil
}

func (a *stubAccounts) ReportTreasures(ctx context.Context, addr common.Address, n uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.treasures[addr] = n
	return nil
}

func (a *stubAccounts) RecordGamePlayed(ctx context.Context, addr common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.games[addr]++
	return nil
}

func (a *stubAccounts) gamesOf(addr common.Address) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.games[addr]
}

func (a *stubAccounts) DisplayName(ctx context.Context, addr common.Address) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.names[addr], nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []ActionRecord
}

func (r *memRecorder) RecordAction(rec ActionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *memRecorder) statuses() []ActionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ActionStatus, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Status)
	}
	return out
}

// stubProvider is a scriptable wallet.
type stubProvider struct {
	mu        sync.Mutex
	chainID   *big.Int
	accounts  []common.Address
	request   []common.Address
	reqErr    error
	events    chan wallet.Event
	requested int
}

func newStubProvider() *stubProvider {
	return &stubProvider{chainID: big.NewInt(11155111), events: make(chan wallet.Event, 4)}
}

func (p *stubProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accounts, nil
}

func (p *stubProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested++
	if p.reqErr != nil {
		return nil, p.reqErr
	}
	return p.request, nil
}

func (p *stubProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

func (p *stubProvider) Signer(account common.Address) (wallet.Signer, error) {
	return stubSigner{account: account}, nil
}

func (p *stubProvider) Events() <-chan wallet.Event { return p.events }
