package journal

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

func TestJournal_RoundTripAcrossHours(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, nil)
	require.NoError(t, err)

	clock := time.Date(2025, 5, 1, 10, 59, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	j.now = now
	j.w.now = now

	alice := common.HexToAddress("0xa11ce")
	cell := uint64(7)
	j.RecordAction(game.ActionRecord{
		Account: alice,
		Kind:    game.ActionMove,
		Status:  game.StatusSubmitted,
		TxHash:  common.HexToHash("0x01"),
		Cell:    &cell,
	})

	clock = clock.Add(2 * time.Minute)
	j.RecordEvent(chain.Event{
		Kind:        chain.EventTreasureFound,
		Player:      alice,
		Reward:      big.NewInt(1e17),
		BlockNumber: 42,
		TxHash:      common.HexToHash("0x02"),
	})
	require.NoError(t, j.Close())

	files, err := Files(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "journal-2025-05-01-10.jsonl.zst", filepath.Base(files[0]))
	assert.Equal(t, "journal-2025-05-01-11.jsonl.zst", filepath.Base(files[1]))

	entries, err := ReadAll(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, TypeAction, entries[0].Type)
	require.NotNil(t, entries[0].Action)
	assert.Equal(t, alice, entries[0].Action.Account)
	assert.Equal(t, game.StatusSubmitted, entries[0].Action.Status)
	require.NotNil(t, entries[0].Action.Cell)
	assert.Equal(t, uint64(7), *entries[0].Action.Cell)
	assert.True(t, entries[0].Time.Equal(time.Date(2025, 5, 1, 10, 59, 0, 0, time.UTC)))

	require.Equal(t, TypeEvent, entries[1].Type)
	require.NotNil(t, entries[1].Event)
	assert.Equal(t, chain.EventTreasureFound, entries[1].Event.Kind)
	assert.Equal(t, 0, big.NewInt(1e17).Cmp(entries[1].Event.Reward))
	assert.Equal(t, uint64(42), entries[1].Event.BlockNumber)
}

func TestJournal_AppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	at := func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }

	for i := 0; i < 2; i++ {
		j, err := Open(dir, nil)
		require.NoError(t, err)
		j.now, j.w.now = at, at
		j.RecordEvent(chain.Event{Kind: chain.EventGameReset, BlockNumber: uint64(i)})
		require.NoError(t, j.Close())
	}

	entries, err := ReadAll(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(0), entries[0].Event.BlockNumber)
	assert.Equal(t, uint64(1), entries[1].Event.BlockNumber)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.jsonl.zst"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_EmptyDir(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}
