// Package chain binds the Treasure Hunt contract: typed reads, transaction
// submission through a wallet signer, receipt waiting with revert decoding,
// and the contract's event stream.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

// Backend is the node access the binding needs. *ethclient.Client
// satisfies it.
type Backend interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Player mirrors the contract's players(address) record.
type Player struct {
	Position     uint64
	HasMoved     bool
	Name         string
	Score        uint64
	LastMoveTime uint64
}

// TxOpts carries the gas ceiling and optional price for a write.
type TxOpts struct {
	GasLimit uint64
	GasPrice *big.Int
}

// PendingTx is a submitted, not yet mined, transaction.
type PendingTx struct {
	Hash    common.Hash
	Method  string
	Request wallet.TxRequest
}

type Contract struct {
	address common.Address
	backend Backend
	poll    time.Duration
}

func NewContract(address common.Address, backend Backend) *Contract {
	return &Contract{address: address, backend: backend, poll: time.Second}
}

// WithPollInterval sets how often Wait asks for a receipt.
func (c *Contract) WithPollInterval(d time.Duration) *Contract {
	if d > 0 {
		c.poll = d
	}
	return c
}

func (c *Contract) Address() common.Address { return c.address }

// Deployed reports whether code exists at the contract address.
func (c *Contract) Deployed(ctx context.Context) (bool, error) {
	code, err := c.backend.CodeAt(ctx, c.address, nil)
	if err != nil {
		return false, fmt.Errorf("code at %s: %w", c.address.Hex(), err)
	}
	return len(code) > 0, nil
}

// Balance is the pool held by the contract.
func (c *Contract) Balance(ctx context.Context) (*big.Int, error) {
	v, err := c.backend.BalanceAt(ctx, c.address, nil)
	if err != nil {
		return nil, fmt.Errorf("contract balance: %w", err)
	}
	return v, nil
}

func (c *Contract) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	v, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", account.Hex(), err)
	}
	return v, nil
}

func (c *Contract) JoinFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "joinFee")
}

func (c *Contract) GridSize(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "gridSize")
}

func (c *Contract) TurnDuration(ctx context.Context) (time.Duration, error) {
	secs, err := c.callUint(ctx, "turnDuration")
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

func (c *Contract) TreasurePosition(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "treasurePosition")
}

func (c *Contract) PlayerCount(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "getPlayerCount")
}

func (c *Contract) PlayerScore(ctx context.Context, account common.Address) (uint64, error) {
	return c.callUint(ctx, "getPlayerScore", account)
}

func (c *Contract) PlayerName(ctx context.Context, account common.Address) (string, error) {
	out, err := c.call(ctx, "getPlayerName", account)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("getPlayerName: unexpected %T", out[0])
	}
	return s, nil
}

// Winner returns the zero address while nobody has won.
func (c *Contract) Winner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, "winner")
	if err != nil {
		return common.Address{}, err
	}
	a, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("winner: unexpected %T", out[0])
	}
	return a, nil
}

func (c *Contract) Player(ctx context.Context, account common.Address) (Player, error) {
	data, err := parsedABI.Pack("players", account)
	if err != nil {
		return Player{}, err
	}
	raw, err := c.rawCall(ctx, "players", data)
	if err != nil {
		return Player{}, err
	}
	var rec struct {
		Position     *big.Int
		HasMoved     bool
		Name         string
		Score        *big.Int
		LastMoveTime *big.Int
	}
	if err := parsedABI.UnpackIntoInterface(&rec, "players", raw); err != nil {
		return Player{}, fmt.Errorf("players: %w", err)
	}
	p := Player{HasMoved: rec.HasMoved, Name: rec.Name}
	if p.Position, err = toUint64("players.position", rec.Position); err != nil {
		return Player{}, err
	}
	if p.Score, err = toUint64("players.score", rec.Score); err != nil {
		return Player{}, err
	}
	if p.LastMoveTime, err = toUint64("players.lastMoveTime", rec.LastMoveTime); err != nil {
		return Player{}, err
	}
	return p, nil
}

// JoinGame submits joinGame(name) paying fee.
func (c *Contract) JoinGame(ctx context.Context, s wallet.Signer, name string, fee *big.Int, opts TxOpts) (*PendingTx, error) {
	return c.transact(ctx, s, "joinGame", fee, opts, name)
}

func (c *Contract) Move(ctx context.Context, s wallet.Signer, cell uint64, opts TxOpts) (*PendingTx, error) {
	return c.transact(ctx, s, "move", nil, opts, new(big.Int).SetUint64(cell))
}

func (c *Contract) ResetTurn(ctx context.Context, s wallet.Signer, opts TxOpts) (*PendingTx, error) {
	return c.transact(ctx, s, "resetTurn", nil, opts)
}

// Wait blocks until tx is mined. A failed receipt is returned together
// with a *RevertError whose reason comes from replaying the call against
// the parent block.
func (c *Contract) Wait(ctx context.Context, tx *PendingTx) (*types.Receipt, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		r, err := c.backend.TransactionReceipt(ctx, tx.Hash)
		switch {
		case err == nil && r != nil:
			if r.Status == types.ReceiptStatusSuccessful {
				return r, nil
			}
			return r, &RevertError{TxHash: tx.Hash, Reason: c.replayReason(ctx, tx, r)}
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("receipt %s: %w", tx.Hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Contract) replayReason(ctx context.Context, tx *PendingTx, r *types.Receipt) string {
	var block *big.Int
	if r.BlockNumber != nil && r.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(r.BlockNumber, big.NewInt(1))
	}
	to := tx.Request.To
	msg := ethereum.CallMsg{
		From:  tx.Request.From,
		To:    &to,
		Gas:   tx.Request.Gas,
		Value: tx.Request.Value,
		Data:  tx.Request.Data,
	}
	_, err := c.backend.CallContract(ctx, msg, block)
	reason, _ := RevertReason(err)
	return reason
}

func (c *Contract) transact(ctx context.Context, s wallet.Signer, method string, value *big.Int, opts TxOpts, args ...any) (*PendingTx, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	req := wallet.TxRequest{
		From:     s.Account(),
		To:       c.address,
		Data:     data,
		Value:    value,
		Gas:      opts.GasLimit,
		GasPrice: opts.GasPrice,
	}
	hash, err := s.SendTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	return &PendingTx{Hash: hash, Method: method, Request: req}, nil
}

func (c *Contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.rawCall(ctx, method, data)
	if err != nil {
		return nil, err
	}
	out, err := parsedABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no outputs", method)
	}
	return out, nil
}

func (c *Contract) rawCall(ctx context.Context, method string, data []byte) ([]byte, error) {
	to := c.address
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	return raw, nil
}

func (c *Contract) callBig(ctx context.Context, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %T", method, out[0])
	}
	return v, nil
}

func (c *Contract) callUint(ctx context.Context, method string, args ...any) (uint64, error) {
	v, err := c.callBig(ctx, method, args...)
	if err != nil {
		return 0, err
	}
	return toUint64(method, v)
}

func toUint64(what string, v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%s: %s overflows uint64", what, v)
	}
	return v.Uint64(), nil
}
