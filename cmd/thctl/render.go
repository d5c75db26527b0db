package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/api"
	"github.com/Piyush79432/Treasure-hunt/internal/config"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

// Board cell markers.
const (
	cellEmpty     = "."
	cellPlayer    = "P"
	cellTreasure  = "T"
	cellFound     = "$"
	cellReachable = "+"
)

// boardCells lays the board out row by row. The player's neighbours are
// marked reachable once the player has joined.
func boardCells(m game.ReadModel) [][]string {
	size := m.Global.GridSize
	if size == 0 {
		return nil
	}
	reach := map[uint64]bool{}
	if m.HasJoined {
		for _, c := range game.Neighbours(m.Player.Position, size) {
			reach[c] = true
		}
	}
	rows := make([][]string, size)
	for r := uint64(0); r < size; r++ {
		rows[r] = make([]string, size)
		for c := uint64(0); c < size; c++ {
			cell := r*size + c
			mark := cellEmpty
			if reach[cell] {
				mark = cellReachable
			}
			isTreasure := m.Global.TreasurePosition != nil && *m.Global.TreasurePosition == cell
			isPlayer := m.HasJoined && m.Player.Position == cell
			switch {
			case isPlayer && isTreasure:
				mark = cellFound
			case isPlayer:
				mark = cellPlayer
			case isTreasure:
				mark = cellTreasure
			}
			rows[r][c] = mark
		}
	}
	return rows
}

func colorize(mark string) string {
	switch mark {
	case cellPlayer:
		return pterm.LightGreen(mark)
	case cellTreasure:
		return pterm.LightYellow(mark)
	case cellFound:
		return pterm.LightMagenta(mark)
	case cellReachable:
		return pterm.LightCyan(mark)
	default:
		return pterm.Gray(mark)
	}
}

func boardString(m game.ReadModel, color bool) string {
	rows := boardCells(m)
	if rows == nil {
		return "board size unknown\n"
	}
	var b strings.Builder
	for _, row := range rows {
		for i, mark := range row {
			if i > 0 {
				b.WriteByte(' ')
			}
			if color {
				mark = colorize(mark)
			}
			b.WriteString(mark)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func statusLines(st api.StateResponse) []string {
	m := st.Model
	var lines []string
	acc := "not connected"
	if st.Connection.Account != nil {
		acc = st.Connection.Account.Hex()
	}
	lines = append(lines, fmt.Sprintf("Account:   %s", acc))
	if st.Connection.NetworkLabel != "" {
		lines = append(lines, fmt.Sprintf("Network:   %s", st.Connection.NetworkLabel))
	}
	lines = append(lines, fmt.Sprintf("Pool:      %s ETH", config.FormatEther(m.Global.Pool)))
	if m.Global.JoinFee != nil {
		lines = append(lines, fmt.Sprintf("Join fee:  %s ETH", config.FormatEther(m.Global.JoinFee)))
	}
	lines = append(lines, fmt.Sprintf("Players:   %d", m.Global.PlayerCount))
	if m.Global.HasWinner {
		lines = append(lines, fmt.Sprintf("Winner:    %s", m.Global.Winner.Hex()))
	}
	if m.HasJoined {
		lines = append(lines,
			fmt.Sprintf("You:       %s at cell %d, score %d", m.Player.Name, m.Player.Position, m.Player.Score),
			fmt.Sprintf("Moved:     %t", m.Player.HasMoved),
		)
	} else if st.Connection.Account != nil {
		lines = append(lines, "You:       not joined")
	}
	if st.InFlight != nil {
		lines = append(lines, fmt.Sprintf("Pending:   %s %s", st.InFlight.Kind, st.InFlight.TxHash.Hex()))
	}
	if m.LastError != "" {
		lines = append(lines, "Error:     "+m.LastError)
	}
	return lines
}

func printState(st api.StateResponse, withBoard bool) {
	box := pterm.DefaultBox.WithTitle(pterm.LightYellow("|TREASURE HUNT|")).WithTitleTopCenter()
	box.Println(strings.Join(statusLines(st), "\n"))
	if withBoard {
		box.WithTitle(pterm.LightCyan("|BOARD|")).Println(strings.TrimRight(boardString(st.Model, true), "\n"))
	}
}

func leaderboardTable(entries []account.LeaderboardEntry) pterm.TableData {
	data := pterm.TableData{{"#", "Player", "Treasures", "Games", "Wallet"}}
	for _, e := range entries {
		data = append(data, []string{
			fmt.Sprint(e.Rank),
			e.DisplayName,
			fmt.Sprint(e.TreasuresFound),
			fmt.Sprint(e.GamesPlayed),
			shortAddress(e.WalletAddress),
		})
	}
	return data
}

func shortAddress(a string) string {
	if len(a) < 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}
