package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

type Options struct {
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Log        logrus.FieldLogger
}

// Service implements registration, login and profile operations on top
// of a SQLiteStore.
type Service struct {
	store *SQLiteStore
	ttl   time.Duration
	cost  int
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(store *SQLiteStore, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	return &Service{
		store: store,
		ttl:   opts.SessionTTL,
		cost:  opts.BcryptCost,
		log:   log.WithField("component", "accounts"),
		now:   time.Now,
	}
}

func (s *Service) Store() *SQLiteStore { return s.store }

type Session struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	DisplayName    string `json:"displayName"`
	WalletAddress  string `json:"walletAddress,omitempty"`
	TreasuresFound uint64 `json:"treasuresFound"`
	GamesPlayed    uint64 `json:"gamesPlayed"`
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func (s *Service) Register(ctx context.Context, email, password, displayName string) (User, error) {
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" || password == "" || displayName == "" {
		return User{}, invalid("please fill in all fields")
	}
	if len(password) < minPasswordLen {
		return User{}, invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return User{}, invalid(err.Error())
	}
	u := User{
		ID:          uuid.NewString(),
		Email:       normalizeEmail(email),
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, u, hash); err != nil {
		return User{}, err
	}
	s.log.WithField("user", u.ID).Info("registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, invalid("please fill in all fields")
	}
	u, hash, err := s.store.Credentials(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	now := s.now()
	sess := Session{Token: newToken(), User: u, ExpiresAt: now.Add(s.ttl).UTC()}
	if err := s.store.CreateSession(ctx, sess.Token, u.ID, now, sess.ExpiresAt); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthorized
	}
	id, err := s.store.SessionUser(ctx, token, s.now())
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnauthorized
	}
	if err != nil {
		return User{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Profile(ctx context.Context, id string) (User, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) UpdateDisplayName(ctx context.Context, id, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, invalid("display name cannot be empty")
	}
	if err := s.store.UpdateDisplayName(ctx, id, name); err != nil {
		return User{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) Leaderboard(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	users, err := s.store.TopByTreasures(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		out = append(out, LeaderboardEntry{
			Rank:           i + 1,
			DisplayName:    u.DisplayName,
			WalletAddress:  u.WalletAddress,
			TreasuresFound: u.GameStats.TreasuresFound,
			GamesPlayed:    u.GameStats.GamesPlayed,
		})
	}
	return out, nil
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
