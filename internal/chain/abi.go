package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TreasureHuntABI is the interface of the deployed game contract.
const TreasureHuntABI = `[
{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"_joinFee","type":"uint256"},{"name":"_gridSize","type":"uint256"},{"name":"_turnDuration","type":"uint256"}]},
{"type":"event","name":"GameReset","anonymous":false,"inputs":[{"name":"newTreasurePosition","type":"uint256","indexed":false}]},
{"type":"event","name":"PlayerJoined","anonymous":false,"inputs":[{"name":"player","type":"address","indexed":false},{"name":"name","type":"string","indexed":false}]},
{"type":"event","name":"PlayerMoved","anonymous":false,"inputs":[{"name":"player","type":"address","indexed":false},{"name":"newPosition","type":"uint256","indexed":false}]},
{"type":"event","name":"TreasureFound","anonymous":false,"inputs":[{"name":"winner","type":"address","indexed":false},{"name":"reward","type":"uint256","indexed":false}]},
{"type":"function","name":"gridSize","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"joinFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lastResetTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"playerAddresses","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"players","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"position","type":"uint256"},{"name":"hasMoved","type":"bool"},{"name":"name","type":"string"},{"name":"score","type":"uint256"},{"name":"lastMoveTime","type":"uint256"}]},
{"type":"function","name":"treasurePosition","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"turnDuration","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"winner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"joinGame","stateMutability":"payable","inputs":[{"name":"playerName","type":"string"}],"outputs":[]},
{"type":"function","name":"move","stateMutability":"nonpayable","inputs":[{"name":"newPosition","type":"uint256"}],"outputs":[]},
{"type":"function","name":"resetTurn","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"getPlayerName","stateMutability":"view","inputs":[{"name":"playerAddress","type":"address"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"getPlayerScore","stateMutability":"view","inputs":[{"name":"playerAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getPlayerCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var parsedABI = mustParseABI(TreasureHuntABI)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("treasure hunt abi: " + err.Error())
	}
	return a
}
