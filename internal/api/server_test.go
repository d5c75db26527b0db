package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type fakeGame struct {
	mu       sync.Mutex
	conn     game.ConnectionState
	model    game.ReadModel
	inFlight *game.InFlight
	err      error
	moves    []uint64
	joins    []string
	subs     []chan game.ReadModel
	ctxErr   error
}

func (f *fakeGame) Connection() game.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeGame) Model() game.ReadModel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Clone()
}

func (f *fakeGame) InFlight() (game.InFlight, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight == nil {
		return game.InFlight{}, false
	}
	return *f.inFlight, true
}

func (f *fakeGame) Connect(ctx context.Context) (game.ReadModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.model, f.err
	}
	a := alice
	f.conn.Account = &a
	f.model.Account = &a
	return f.model, nil
}

func (f *fakeGame) Refresh(ctx context.Context) (game.ReadModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model, f.err
}

func (f *fakeGame) Join(ctx context.Context, name string) (game.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, name)
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return game.Outcome{}, f.err
	}
	return game.Outcome{Kind: game.ActionJoin, TxHash: common.HexToHash("0x01"), Model: f.model}, nil
}

func (f *fakeGame) Move(ctx context.Context, cell uint64) (game.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, cell)
	if f.err != nil {
		return game.Outcome{}, f.err
	}
	return game.Outcome{Kind: game.ActionMove, TxHash: common.HexToHash("0x02"), Model: f.model}, nil
}

func (f *fakeGame) ResetTurn(ctx context.Context) (game.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return game.Outcome{}, f.err
	}
	return game.Outcome{Kind: game.ActionResetTurn, Model: f.model}, nil
}

func (f *fakeGame) Subscribe() (<-chan game.ReadModel, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan game.ReadModel, 4)
	ch <- f.model.Clone()
	f.subs = append(f.subs, ch)
	return ch, func() {}
}

func (f *fakeGame) set(fn func(f *fakeGame)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeGame) calls() (joins []string, moves []uint64, ctxErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.joins...), append([]uint64(nil), f.moves...), f.ctxErr
}

func (f *fakeGame) publish(m game.ReadModel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.model = m
	for _, ch := range f.subs {
		ch <- m.Clone()
	}
}

type harness struct {
	game   *fakeGame
	svc    *account.Service
	linker *account.Linker
	srv    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := account.OpenSQLite(filepath.Join(t.TempDir(), "accounts.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc := account.NewService(store, account.Options{BcryptCost: bcrypt.MinCost})
	linker := account.NewLinker(svc)
	g := &fakeGame{
		conn:  game.ConnectionState{NetworkLabel: "Local Network"},
		model: game.ReadModel{Global: game.GlobalState{Pool: big.NewInt(0), GridSize: 10}},
	}
	srv := httptest.NewServer(NewServer(g, Options{Accounts: svc, Linker: linker}))
	t.Cleanup(srv.Close)
	return &harness{game: g, svc: svc, linker: linker, srv: srv}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func errorCode(t *testing.T, b []byte) string {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(b, &body), string(b))
	return body.Error.Code
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, body := h.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestState_ConnectAndInFlight(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, "GET", "/v1/state", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StateResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Nil(t, st.Connection.Account)
	assert.Equal(t, "Local Network", st.Connection.NetworkLabel)
	assert.Nil(t, st.InFlight)

	resp, body = h.do(t, "POST", "/v1/wallet/connect", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &st))
	require.NotNil(t, st.Connection.Account)
	assert.Equal(t, alice, *st.Connection.Account)

	h.game.set(func(f *fakeGame) { f.inFlight = &game.InFlight{Kind: game.ActionMove, Account: alice} })
	_, body = h.do(t, "GET", "/v1/state", "", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	require.NotNil(t, st.InFlight)
	assert.Equal(t, game.ActionMove, st.InFlight.Kind)
}

func TestActions(t *testing.T) {
	h := newHarness(t)

	resp, body := h.do(t, "POST", "/v1/game/join", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out game.Outcome
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, game.ActionJoin, out.Kind)
	joins, _, ctxErr := h.game.calls()
	assert.Equal(t, []string{""}, joins, "empty body joins with the default name")
	assert.NoError(t, ctxErr)

	resp, _ = h.do(t, "POST", "/v1/game/join", "", map[string]string{"name": "Ann"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joins, _, _ = h.game.calls()
	assert.Equal(t, "Ann", joins[1])

	resp, _ = h.do(t, "POST", "/v1/game/move", "", map[string]uint64{"cell": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, moves, _ := h.game.calls()
	assert.Equal(t, []uint64{0}, moves)

	resp, body = h.do(t, "POST", "/v1/game/move", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrBadRequest, errorCode(t, body))

	resp, body = h.do(t, "POST", "/v1/game/move", "", map[string]any{"cell": 1, "extra": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrBadRequest, errorCode(t, body))

	resp, _ = h.do(t, "POST", "/v1/game/reset-turn", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActionErrors(t *testing.T) {
	tx := common.HexToHash("0xbeef")
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"no signer", &game.PreconditionError{Err: game.ErrNoSigner}, http.StatusPreconditionFailed, ErrNoSigner, ""},
		{"funds", &game.PreconditionError{Err: game.ErrInsufficientFunds, Detail: "need 0.1 ETH"}, http.StatusPaymentRequired, ErrNoResource, ""},
		{"not deployed", &game.PreconditionError{Err: game.ErrContractNotDeployed}, http.StatusServiceUnavailable, ErrNotDeployed, ""},
		{"busy", game.ErrAlreadyInProgress, http.StatusConflict, ErrBusy, ""},
		{"validation", &game.ValidationError{Field: "cell", Message: "not adjacent"}, http.StatusUnprocessableEntity, ErrInvalidInput, ""},
		{"reverted", &game.ActionFailed{Kind: game.ActionMove, Reason: "Not your turn", TxHash: tx}, http.StatusUnprocessableEntity, ErrActionFailed, "Not your turn"},
		{"wallet", &game.ConnectionError{Op: "connect", Err: errors.New("rejected")}, http.StatusBadGateway, ErrWalletRejected, ""},
		{"no wallet", fmt.Errorf("connect: %w", game.ErrNoWallet), http.StatusServiceUnavailable, ErrNoWallet, ""},
		{"sync", &game.SyncError{Step: "players", Err: errors.New("rpc down")}, http.StatusBadGateway, ErrSync, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrInternal, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.game.set(func(f *fakeGame) { f.err = tc.err })
			resp, body := h.do(t, "POST", "/v1/game/move", "", map[string]uint64{"cell": 3})
			assert.Equal(t, tc.status, resp.StatusCode)
			var eb ErrorBody
			require.NoError(t, json.Unmarshal(body, &eb))
			assert.Equal(t, tc.code, eb.Error.Code)
			assert.True(t, IsKnownCode(eb.Error.Code))
			if tc.msg != "" {
				assert.Equal(t, tc.msg, eb.Error.Message)
			}
			if tc.code == ErrActionFailed {
				assert.Equal(t, tx.Hex(), eb.Error.TxHash)
			}
		})
	}
}

func TestRefreshWithoutAccount(t *testing.T) {
	h := newHarness(t)
	h.game.set(func(f *fakeGame) { f.err = &game.PreconditionError{Err: game.ErrNoSigner} })
	resp, body := h.do(t, "POST", "/v1/state/refresh", "", nil)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, ErrNoSigner, errorCode(t, body))
}

func TestAccountsFlow(t *testing.T) {
	h := newHarness(t)
	h.game.set(func(f *fakeGame) {
		a := alice
		f.conn.Account = &a
	})

	resp, body := h.do(t, "POST", "/v1/auth/register", "", registerRequest{Email: "ann@example.com", Password: "secret1", DisplayName: "Ann"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = h.do(t, "POST", "/v1/auth/register", "", registerRequest{Email: "ann@example.com", Password: "secret1", DisplayName: "Ann"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, ErrConflict, errorCode(t, body))

	resp, body = h.do(t, "POST", "/v1/auth/register", "", registerRequest{Email: "x@example.com", Password: "1", DisplayName: "X"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, ErrInvalidInput, errorCode(t, body))

	resp, body = h.do(t, "POST", "/v1/auth/login", "", loginRequest{Email: "ann@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrBadLogin, errorCode(t, body))

	resp, body = h.do(t, "POST", "/v1/auth/login", "", loginRequest{Email: "ann@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sess account.Session
	require.NoError(t, json.Unmarshal(body, &sess))
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, sess.User.ID, h.linker.UserID())
	assert.Equal(t, alice.Hex(), sess.User.WalletAddress, "login links the connected wallet")

	resp, body = h.do(t, "GET", "/v1/profile", sess.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u account.User
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, "Ann", u.DisplayName)

	resp, body = h.do(t, "PATCH", "/v1/profile", sess.Token, profileRequest{DisplayName: "Annie"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &u))
	assert.Equal(t, "Annie", u.DisplayName)

	resp, body = h.do(t, "GET", "/v1/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrUnauthorized, errorCode(t, body))

	resp, _ = h.do(t, "POST", "/v1/auth/logout", sess.Token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "", h.linker.UserID())

	resp, _ = h.do(t, "GET", "/v1/profile", sess.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLeaderboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	resp, body := h.do(t, "GET", "/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"entries":[]}`, string(body))

	for i, n := range []uint64{2, 9, 4} {
		u, err := h.svc.Register(ctx, fmt.Sprintf("p%d@example.com", i), "secret1", fmt.Sprintf("P%d", i))
		require.NoError(t, err)
		n := n
		require.NoError(t, h.svc.Store().UpdateGameStats(ctx, u.ID, account.StatsPatch{TreasuresFound: &n}, time.Now()))
	}

	resp, body = h.do(t, "GET", "/v1/leaderboard?n=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Entries []account.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "P1", got.Entries[0].DisplayName)
	assert.Equal(t, uint64(9), got.Entries[0].TreasuresFound)
	assert.Equal(t, 2, got.Entries[1].Rank)

	resp, body = h.do(t, "GET", "/v1/leaderboard?n=zero", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrBadRequest, errorCode(t, body))
}

func TestStream(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ModelMsg {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg ModelMsg
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, TypeModel, first.Type)
	assert.Equal(t, uint64(10), first.Model.Global.GridSize)

	a := alice
	h.game.publish(game.ReadModel{Account: &a, Loaded: true, Global: game.GlobalState{Pool: big.NewInt(5)}})
	next := read()
	require.NotNil(t, next.Model.Account)
	assert.Equal(t, alice, *next.Model.Account)
	assert.True(t, next.Model.Loaded)
	assert.Equal(t, 0, big.NewInt(5).Cmp(next.Model.Global.Pool))
}

func TestClassifyNil(t *testing.T) {
	code, msg := Classify(nil)
	assert.Empty(t, code)
	assert.Empty(t, msg)
	assert.Equal(t, http.StatusInternalServerError, StatusFor("E_WHAT"))
}
