// Package account is the off-chain account system: user documents in
// SQLite, password login with session tokens, and the leaderboard.
package account

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already in use")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("not logged in")
)

type GameStats struct {
	GamesPlayed    uint64     `json:"gamesPlayed"`
	TreasuresFound uint64     `json:"treasuresFound"`
	LastPlayed     *time.Time `json:"lastPlayed"`
}

// User is the stored profile document.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	WalletAddress string    `json:"walletAddress"`
	GameStats     GameStats `json:"gameStats"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StatsPatch merges into GameStats; nil fields are left unchanged.
type StatsPatch struct {
	GamesPlayed    *uint64
	TreasuresFound *uint64
}

func (s *GameStats) apply(p StatsPatch, now time.Time) {
	if p.GamesPlayed != nil {
		s.GamesPlayed = *p.GamesPlayed
	}
	if p.TreasuresFound != nil {
		s.TreasuresFound = *p.TreasuresFound
	}
	t := now.UTC()
	s.LastPlayed = &t
}

//go:embed user.schema.json
var userSchemaJSON string

var userSchema = jsonschema.MustCompileString("user.schema.json", userSchemaJSON)

// encodeUser validates u against the document schema and returns its JSON.
func encodeUser(u User) ([]byte, error) {
	b, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if err := userSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return b, nil
}

func decodeUser(b []byte) (User, error) {
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}
