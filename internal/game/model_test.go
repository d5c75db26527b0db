package game

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasJoined(t *testing.T) {
	cases := []struct {
		name string
		p    PlayerRecord
		want bool
	}{
		{"fresh record", PlayerRecord{}, false},
		{"off origin", PlayerRecord{Position: 37}, true},
		{"moved this turn", PlayerRecord{HasMoved: true}, true},
		// A member resting on cell 0 who has not moved reads as not joined.
		{"member on cell zero", PlayerRecord{Position: 0, HasMoved: false, Name: "Alice", Score: 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasJoined(tc.p))
		})
	}
}

func TestAdjacent(t *testing.T) {
	cases := []struct {
		from, to uint64
		want     bool
	}{
		{37, 38, true},
		{37, 36, true},
		{37, 27, true},
		{37, 48, true},
		{37, 26, true},
		{37, 37, false},
		{37, 39, false},
		{37, 57, false},
		{9, 10, false}, // row wrap
		{0, 11, true},
		{99, 88, true},
		{99, 100, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Adjacent(tc.from, tc.to, 10), "%d -> %d", tc.from, tc.to)
	}
	assert.False(t, Adjacent(0, 1, 0))
}

func TestNeighbours(t *testing.T) {
	assert.Equal(t, []uint64{1, 10, 11}, Neighbours(0, 10))
	assert.Len(t, Neighbours(55, 10), 8)
}

func TestNetworkLabel(t *testing.T) {
	assert.Equal(t, "mainnet", NetworkLabel(big.NewInt(1)))
	assert.Equal(t, "sepolia", NetworkLabel(big.NewInt(11155111)))
	assert.Equal(t, "holesky", NetworkLabel(big.NewInt(17000)))
	assert.Equal(t, "Local Network", NetworkLabel(big.NewInt(1337)))
	assert.Equal(t, "Local Network", NetworkLabel(big.NewInt(31337)))
	assert.Equal(t, "chain-137", NetworkLabel(big.NewInt(137)))
	assert.Equal(t, "", NetworkLabel(nil))
}

func TestReadModelCloneIsDeep(t *testing.T) {
	acc := alice
	pos := uint64(4)
	m := ReadModel{Account: &acc, Global: GlobalState{Pool: big.NewInt(5), JoinFee: big.NewInt(1), TreasurePosition: &pos}}
	c := m.Clone()
	c.Global.Pool.SetInt64(99)
	*c.Account = bob
	*c.Global.TreasurePosition = 7
	assert.Equal(t, int64(5), m.Global.Pool.Int64())
	assert.Equal(t, alice, *m.Account)
	assert.Equal(t, uint64(4), *m.Global.TreasurePosition)
}
