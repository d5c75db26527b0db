package api

import (
	"context"

	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

// Game is the game client surface the API serves.
type Game interface {
	Connection() game.ConnectionState
	Model() game.ReadModel
	InFlight() (game.InFlight, bool)
	Connect(ctx context.Context) (game.ReadModel, error)
	Refresh(ctx context.Context) (game.ReadModel, error)
	Join(ctx context.Context, name string) (game.Outcome, error)
	Move(ctx context.Context, cell uint64) (game.Outcome, error)
	ResetTurn(ctx context.Context) (game.Outcome, error)
	Subscribe() (<-chan game.ReadModel, func())
}

type sessionGame struct{ s *game.Session }

// SessionGame serves a *game.Session.
func SessionGame(s *game.Session) Game { return sessionGame{s: s} }

func (g sessionGame) Connection() game.ConnectionState { return g.s.Conn.State() }
func (g sessionGame) Model() game.ReadModel            { return g.s.Sync.Model() }

func (g sessionGame) InFlight() (game.InFlight, bool) {
	acc := g.s.Account()
	if acc == nil {
		return game.InFlight{}, false
	}
	return g.s.Actions.InFlight(*acc)
}

func (g sessionGame) Connect(ctx context.Context) (game.ReadModel, error) {
	return g.s.Connect(ctx)
}

func (g sessionGame) Refresh(ctx context.Context) (game.ReadModel, error) {
	acc := g.s.Account()
	if acc == nil {
		return g.s.Sync.Model(), &game.PreconditionError{Err: game.ErrNoSigner}
	}
	return g.s.Sync.Refresh(ctx, *acc)
}

func (g sessionGame) Join(ctx context.Context, name string) (game.Outcome, error) {
	return g.s.Actions.SubmitJoin(ctx, name)
}

func (g sessionGame) Move(ctx context.Context, cell uint64) (game.Outcome, error) {
	return g.s.Actions.SubmitMove(ctx, cell)
}

func (g sessionGame) ResetTurn(ctx context.Context) (game.Outcome, error) {
	return g.s.Actions.SubmitResetTurn(ctx)
}

func (g sessionGame) Subscribe() (<-chan game.ReadModel, func()) { return g.s.Sync.Subscribe() }
