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
	"github.com/sirupsen/logrus"
)

type EventKind string

const (
	EventPlayerJoined  EventKind = "PlayerJoined"
	EventPlayerMoved   EventKind = "PlayerMoved"
	EventTreasureFound EventKind = "TreasureFound"
	EventGameReset     EventKind = "GameReset"
)

// Event is a decoded contract log. Only the fields relevant to Kind are set.
type Event struct {
	Kind        EventKind      `json:"kind"`
	Player      common.Address `json:"player,omitempty"`
	Name        string         `json:"name,omitempty"`
	Position    uint64         `json:"position,omitempty"`
	Reward      *big.Int       `json:"reward,omitempty"`
	BlockNumber uint64         `json:"block"`
	TxHash      common.Hash    `json:"tx"`
	LogIndex    uint           `json:"logIndex"`
}

// LogBackend is the log access the watcher needs. *ethclient.Client
// satisfies it.
type LogBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// DecodeLog turns a raw contract log into an Event.
func DecodeLog(l types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return Event{}, errors.New("log without topics")
	}
	ev, err := parsedABI.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, err
	}
	vals, err := ev.Inputs.Unpack(l.Data)
	if err != nil {
		return Event{}, fmt.Errorf("%s: %w", ev.Name, err)
	}
	out := Event{
		Kind:        EventKind(ev.Name),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		LogIndex:    l.Index,
	}
	switch out.Kind {
	case EventPlayerJoined:
		out.Player, _ = vals[0].(common.Address)
		out.Name, _ = vals[1].(string)
	case EventPlayerMoved:
		out.Player, _ = vals[0].(common.Address)
		if out.Position, err = toUint64("newPosition", asBig(vals[1])); err != nil {
			return Event{}, err
		}
	case EventTreasureFound:
		out.Player, _ = vals[0].(common.Address)
		out.Reward = asBig(vals[1])
	case EventGameReset:
		if out.Position, err = toUint64("newTreasurePosition", asBig(vals[0])); err != nil {
			return Event{}, err
		}
	}
	return out, nil
}

func asBig(v any) *big.Int {
	b, _ := v.(*big.Int)
	return b
}

// Watcher follows the contract's logs. It prefers a log subscription and
// falls back to polling FilterLogs when the endpoint cannot push.
type Watcher struct {
	address common.Address
	backend LogBackend
	poll    time.Duration
	log     logrus.FieldLogger
}

func NewWatcher(address common.Address, backend LogBackend, poll time.Duration, log logrus.FieldLogger) *Watcher {
	if poll <= 0 {
		poll = 4 * time.Second
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Watcher{address: address, backend: backend, poll: poll, log: log.WithField("component", "watcher")}
}

// Run delivers decoded events to handle until ctx is done.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) error {
	backoff := 500 * time.Millisecond
	for {
		err := w.subscribe(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errSubscribeUnsupported) {
			w.log.WithError(err).Info("log subscription unavailable, polling")
			return w.pollLoop(ctx, handle)
		}
		w.log.WithError(err).Warn("log subscription dropped")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

var errSubscribeUnsupported = errors.New("subscribe unsupported")

func (w *Watcher) query() ethereum.FilterQuery {
	return ethereum.FilterQuery{Addresses: []common.Address{w.address}}
}

func (w *Watcher) subscribe(ctx context.Context, handle func(Event)) error {
	ch := make(chan types.Log, 64)
	sub, err := w.backend.SubscribeFilterLogs(ctx, w.query(), ch)
	if err != nil {
		return fmt.Errorf("%w: %v", errSubscribeUnsupported, err)
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return err
		case l := <-ch:
			w.deliver(l, handle)
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context, handle func(Event)) error {
	cursor, err := w.backend.BlockNumber(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("block number: %w", err)
	}
	t := time.NewTicker(w.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		head, err := w.backend.BlockNumber(ctx)
		if err != nil {
			w.log.WithError(err).Warn("block number")
			continue
		}
		if head <= cursor {
			continue
		}
		q := w.query()
		q.FromBlock = new(big.Int).SetUint64(cursor + 1)
		q.ToBlock = new(big.Int).SetUint64(head)
		logs, err := w.backend.FilterLogs(ctx, q)
		if err != nil {
			w.log.WithError(err).Warn("filter logs")
			continue
		}
		for _, l := range logs {
			w.deliver(l, handle)
		}
		cursor = head
	}
}

func (w *Watcher) deliver(l types.Log, handle func(Event)) {
	if l.Removed {
		return
	}
	ev, err := DecodeLog(l)
	if err != nil {
		w.log.WithError(err).WithField("tx", l.TxHash.Hex()).Debug("skip undecodable log")
		return
	}
	handle(ev)
}
