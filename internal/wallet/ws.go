package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSProvider talks JSON-RPC 2.0 to a wallet agent over a websocket. The
// connection is kept alive in the background and re-dialed with backoff.
type WSProvider struct {
	url string
	log logrus.FieldLogger

	mu        sync.RWMutex
	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	conn      *websocket.Conn
	connected bool
	lastErr   string
	writeMu   sync.Mutex

	nextID  uint64
	pending map[uint64]chan rpcMessage

	connNotify chan struct{}
	events     chan Event
}

func NewWSProvider(url string, logger logrus.FieldLogger) *WSProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WSProvider{
		url:        url,
		log:        logger.WithField("component", "wallet"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		pending:    map[uint64]chan rpcMessage{},
		connNotify: make(chan struct{}, 1),
		events:     make(chan Event, 16),
	}
}

func (p *WSProvider) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

func (p *WSProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.disconnect()
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
	})
}

func (p *WSProvider) Events() <-chan Event { return p.events }

func (p *WSProvider) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *WSProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var raw []string
	if err := p.call(ctx, "eth_accounts", []any{}, &raw); err != nil {
		return nil, err
	}
	return parseAccounts(raw)
}

func (p *WSProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var raw []string
	if err := p.call(ctx, "eth_requestAccounts", []any{}, &raw); err != nil {
		return nil, err
	}
	return parseAccounts(raw)
}

func (p *WSProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var raw string
	if err := p.call(ctx, "eth_chainId", []any{}, &raw); err != nil {
		return nil, err
	}
	id, err := hexutil.DecodeBig(raw)
	if err != nil {
		return nil, fmt.Errorf("parse chain id %q: %w", raw, err)
	}
	return id, nil
}

func (p *WSProvider) Signer(account common.Address) (Signer, error) {
	if account == (common.Address{}) {
		return nil, fmt.Errorf("zero account")
	}
	return &wsSigner{p: p, account: account}, nil
}

type wsSigner struct {
	p       *WSProvider
	account common.Address
}

func (s *wsSigner) Account() common.Address { return s.account }

func (s *wsSigner) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	obj := map[string]any{
		"from": s.account.Hex(),
		"to":   tx.To.Hex(),
		"data": hexutil.Encode(tx.Data),
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		obj["value"] = hexutil.EncodeBig(tx.Value)
	}
	if tx.Gas > 0 {
		obj["gas"] = hexutil.EncodeUint64(tx.Gas)
	}
	if tx.GasPrice != nil {
		obj["gasPrice"] = hexutil.EncodeBig(tx.GasPrice)
	}
	var raw string
	if err := s.p.call(ctx, "eth_sendTransaction", []any{obj}, &raw); err != nil {
		return common.Hash{}, err
	}
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("bad transaction hash %q", raw)
	}
	return common.BytesToHash(b), nil
}

func (p *WSProvider) call(ctx context.Context, method string, params any, out any) error {
	conn, err := p.waitConnected(ctx, 2*time.Second)
	if err != nil {
		return err
	}

	ch := make(chan rpcMessage, 1)
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	b, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err = conn.WriteMessage(websocket.TextMessage, b)
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrUnavailable
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: connection lost", ErrUnavailable)
		}
		if resp.Error != nil {
			return resp.Error.toError()
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("parse %s result: %w", method, err)
		}
		return nil
	}
}

func (p *WSProvider) waitConnected(ctx context.Context, timeout time.Duration) (*websocket.Conn, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		p.mu.RLock()
		conn, lastErr := p.conn, p.lastErr
		p.mu.RUnlock()
		if conn != nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.stop:
			return nil, ErrUnavailable
		case <-deadline.C:
			if lastErr != "" {
				return nil, fmt.Errorf("%w: %s", ErrUnavailable, lastErr)
			}
			return nil, ErrUnavailable
		case <-p.connNotify:
		}
	}
}

func (p *WSProvider) disconnect() {
	p.mu.Lock()
	c := p.conn
	p.conn = nil
	p.connected = false
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

func (p *WSProvider) run() {
	defer close(p.done)

	backoff := 200 * time.Millisecond
	for {
		select {
		case <-p.stop:
			p.disconnect()
			return
		default:
		}

		err := p.connectAndReadLoop()
		p.disconnect()
		if err == nil {
			return
		}
		p.mu.Lock()
		p.lastErr = err.Error()
		p.mu.Unlock()
		p.log.WithError(err).Debug("wallet connection lost")

		select {
		case <-p.stop:
			return
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
		}
	}
}

func (p *WSProvider) connectAndReadLoop() error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := d.Dial(p.url, http.Header{})
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	p.mu.Lock()
	p.conn = conn
	p.connected = true
	p.lastErr = ""
	p.mu.Unlock()
	select {
	case p.connNotify <- struct{}{}:
	default:
	}

	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m, err := parseMessage(msg)
		if err != nil {
			p.log.WithError(err).Debug("skip malformed wallet message")
			continue
		}
		if m.ID != nil {
			// Deliver under the lock so disconnect cannot close ch mid-send.
			p.mu.RLock()
			if ch := p.pending[*m.ID]; ch != nil {
				select {
				case ch <- m:
				default:
				}
			}
			p.mu.RUnlock()
			continue
		}
		ev, ok := decodeEvent(m)
		if !ok {
			continue
		}
		select {
		case p.events <- ev:
		case <-p.stop:
			return nil
		}
	}
}

func decodeEvent(m rpcMessage) (Event, bool) {
	switch EventKind(m.Method) {
	case EventAccountsChanged:
		var raw []string
		if err := json.Unmarshal(m.Params, &raw); err != nil {
			return Event{}, false
		}
		accs, err := parseAccounts(raw)
		if err != nil {
			return Event{}, false
		}
		return Event{Kind: EventAccountsChanged, Accounts: accs}, true
	case EventChainChanged:
		var s string
		if err := json.Unmarshal(m.Params, &s); err != nil {
			var arr []string
			if err := json.Unmarshal(m.Params, &arr); err != nil || len(arr) == 0 {
				return Event{}, false
			}
			s = arr[0]
		}
		id, err := hexutil.DecodeBig(strings.TrimSpace(s))
		if err != nil {
			return Event{}, false
		}
		return Event{Kind: EventChainChanged, ChainID: id}, true
	}
	return Event{}, false
}

func parseAccounts(raw []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("bad account %q", s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}
