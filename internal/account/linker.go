package account

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Linker ties the logged-in user to the game client's wallet activity.
// With nobody logged in it does nothing.
type Linker struct {
	svc *Service

	mu     sync.RWMutex
	userID string
}

func NewLinker(svc *Service) *Linker {
	return &Linker{svc: svc}
}

func (l *Linker) SetUser(id string) {
	l.mu.Lock()
	l.userID = id
	l.mu.Unlock()
}

func (l *Linker) ClearUser() { l.SetUser("") }

func (l *Linker) UserID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.userID
}

func (l *Linker) LinkWallet(ctx context.Context, address common.Address) error {
	id := l.UserID()
	if id == "" {
		return nil
	}
	return l.svc.store.UpdateWallet(ctx, id, address.Hex())
}

// ReportTreasures stores the on-chain score of address on the logged-in
// user, provided that user is linked to address.
func (l *Linker) ReportTreasures(ctx context.Context, address common.Address, treasures uint64) error {
	id := l.UserID()
	if id == "" {
		return nil
	}
	u, err := l.svc.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.WalletAddress, address.Hex()) {
		return nil
	}
	return l.svc.store.UpdateGameStats(ctx, id, StatsPatch{TreasuresFound: &treasures}, l.svc.now())
}

// RecordGamePlayed bumps gamesPlayed on the logged-in user when that user
// is linked to address.
func (l *Linker) RecordGamePlayed(ctx context.Context, address common.Address) error {
	id := l.UserID()
	if id == "" {
		return nil
	}
	u, err := l.svc.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.WalletAddress, address.Hex()) {
		return nil
	}
	return l.svc.store.IncrementGamesPlayed(ctx, id, l.svc.now())
}

func (l *Linker) DisplayName(ctx context.Context, address common.Address) (string, error) {
	if id := l.UserID(); id != "" {
		u, err := l.svc.store.Get(ctx, id)
		if err != nil {
			return "", err
		}
		return u.DisplayName, nil
	}
	u, err := l.svc.store.FindByWallet(ctx, address.Hex())
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}
