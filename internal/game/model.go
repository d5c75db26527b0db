package game

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ActionKind string

const (
	ActionJoin      ActionKind = "join"
	ActionMove      ActionKind = "move"
	ActionResetTurn ActionKind = "reset_turn"
)

type PlayerRecord struct {
	Position     uint64 `json:"position"`
	HasMoved     bool   `json:"hasMoved"`
	Name         string `json:"name"`
	Score        uint64 `json:"score"`
	LastMoveTime uint64 `json:"lastMoveTime"`
}

// HasJoined derives membership from a player record. The contract keeps no
// explicit flag, so a player who joined and sits on cell 0 without having
// moved this turn is indistinguishable from a non-member.
func HasJoined(p PlayerRecord) bool {
	return p.Position != 0 || p.HasMoved
}

type GlobalState struct {
	Winner    common.Address `json:"winner"`
	HasWinner bool           `json:"hasWinner"`
	Pool      *big.Int       `json:"pool"`
	// Only populated in debug mode.
	TreasurePosition *uint64 `json:"treasurePosition,omitempty"`

	GridSize     uint64        `json:"gridSize"`
	JoinFee      *big.Int      `json:"joinFee"`
	TurnDuration time.Duration `json:"turnDuration"`
	PlayerCount  uint64        `json:"playerCount"`
}

// ReadModel is the client's view of the contract for one account. Values
// handed out are copies; holders never observe later mutation.
type ReadModel struct {
	Account       *common.Address `json:"account"`
	Player        PlayerRecord    `json:"player"`
	HasJoined     bool            `json:"hasJoined"`
	Global        GlobalState     `json:"global"`
	Synchronizing bool            `json:"synchronizing"`
	LastError     string          `json:"lastError,omitempty"`
	Loaded        bool            `json:"loaded"`
}

func (m ReadModel) Clone() ReadModel {
	out := m
	if m.Account != nil {
		a := *m.Account
		out.Account = &a
	}
	out.Global.Pool = cloneBig(m.Global.Pool)
	out.Global.JoinFee = cloneBig(m.Global.JoinFee)
	if m.Global.TreasurePosition != nil {
		v := *m.Global.TreasurePosition
		out.Global.TreasurePosition = &v
	}
	return out
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func emptyModel(account *common.Address) ReadModel {
	m := ReadModel{Global: GlobalState{Pool: new(big.Int)}}
	if account != nil {
		a := *account
		m.Account = &a
	}
	return m
}

// Adjacent reports whether to is one of the eight neighbours of from on a
// size×size board.
func Adjacent(from, to, size uint64) bool {
	if size == 0 || from >= size*size || to >= size*size || from == to {
		return false
	}
	fr, fc := from/size, from%size
	tr, tc := to/size, to%size
	return absDiff(fr, tr) <= 1 && absDiff(fc, tc) <= 1
}

// Neighbours lists the cells adjacent to pos in ascending order.
func Neighbours(pos, size uint64) []uint64 {
	var out []uint64
	for c := uint64(0); c < size*size; c++ {
		if Adjacent(pos, c, size) {
			out = append(out, c)
		}
	}
	return out
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
