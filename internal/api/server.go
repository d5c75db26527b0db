// Package api serves the game client over local HTTP: JSON endpoints for
// the read model, player actions and accounts, and a websocket stream of
// published read models.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/matryer/way"
	"github.com/sirupsen/logrus"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

const (
	maxBody            = 64 * 1024
	defaultLeaderboard = 10
	maxLeaderboard     = 100
)

type Server struct {
	game     Game
	accounts *account.Service
	linker   *account.Linker
	log      logrus.FieldLogger

	router   *way.Router
	upgrader websocket.Upgrader
}

type Options struct {
	Accounts *account.Service
	Linker   *account.Linker
	Log      logrus.FieldLogger
}

func NewServer(g Game, opts Options) *Server {
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	s := &Server{
		game:     g,
		accounts: opts.Accounts,
		linker:   opts.Linker,
		log:      log.WithField("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local dev default
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router = way.NewRouter()
	s.router.HandleFunc("GET", "/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})

	s.router.HandleFunc("GET", "/v1/state", s.handleState)
	s.router.HandleFunc("POST", "/v1/state/refresh", s.handleRefresh)
	s.router.HandleFunc("POST", "/v1/wallet/connect", s.handleConnect)
	s.router.HandleFunc("POST", "/v1/game/join", s.handleJoin)
	s.router.HandleFunc("POST", "/v1/game/move", s.handleMove)
	s.router.HandleFunc("POST", "/v1/game/reset-turn", s.handleResetTurn)
	s.router.HandleFunc("GET", "/v1/ws", s.handleStream)

	s.router.HandleFunc("GET", "/v1/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("POST", "/v1/auth/register", s.handleRegister)
	s.router.HandleFunc("POST", "/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("POST", "/v1/auth/logout", s.handleLogout)
	s.router.HandleFunc("GET", "/v1/profile", s.handleProfile)
	s.router.HandleFunc("PATCH", "/v1/profile", s.handleUpdateProfile)
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(rw, r)
}

// StateResponse is the body of GET /v1/state.
type StateResponse struct {
	Connection game.ConnectionState `json:"connection"`
	Model      game.ReadModel       `json:"model"`
	InFlight   *game.InFlight       `json:"inFlight,omitempty"`
}

func (s *Server) state() StateResponse {
	resp := StateResponse{Connection: s.game.Connection(), Model: s.game.Model()}
	if f, ok := s.game.InFlight(); ok {
		resp.InFlight = &f
	}
	return resp
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.state())
}

func (s *Server) handleRefresh(rw http.ResponseWriter, r *http.Request) {
	if _, err := s.game.Refresh(r.Context()); err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, s.state())
}

func (s *Server) handleConnect(rw http.ResponseWriter, r *http.Request) {
	m, err := s.game.Connect(r.Context())
	if err != nil {
		s.writeError(rw, err)
		return
	}
	if s.linker != nil && m.Account != nil {
		if err := s.linker.LinkWallet(r.Context(), *m.Account); err != nil {
			s.log.WithError(err).Warn("link wallet")
		}
	}
	writeJSON(rw, http.StatusOK, s.state())
}

type joinRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	Cell *uint64 `json:"cell"`
}

// Actions outlive the request: a client hanging up does not abandon the
// wait for the receipt.
func actionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) handleJoin(rw http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeCode(rw, ErrBadRequest, err.Error(), "")
		return
	}
	out, err := s.game.Join(actionContext(r), req.Name)
	s.writeOutcome(rw, out, err)
}

func (s *Server) handleMove(rw http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeCode(rw, ErrBadRequest, err.Error(), "")
		return
	}
	if req.Cell == nil {
		writeCode(rw, ErrBadRequest, "missing cell", "")
		return
	}
	out, err := s.game.Move(actionContext(r), *req.Cell)
	s.writeOutcome(rw, out, err)
}

func (s *Server) handleResetTurn(rw http.ResponseWriter, r *http.Request) {
	out, err := s.game.ResetTurn(actionContext(r))
	s.writeOutcome(rw, out, err)
}

func (s *Server) writeOutcome(rw http.ResponseWriter, out game.Outcome, err error) {
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) handleLeaderboard(rw http.ResponseWriter, r *http.Request) {
	n := defaultLeaderboard
	if v := strings.TrimSpace(r.URL.Query().Get("n")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeCode(rw, ErrBadRequest, "n must be a positive integer", "")
			return
		}
		n = min(parsed, maxLeaderboard)
	}
	entries, err := s.accounts.Leaderboard(r.Context(), n)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	if entries == nil {
		entries = []account.LeaderboardEntry{}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"entries": entries})
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(rw http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeCode(rw, ErrBadRequest, err.Error(), "")
		return
	}
	u, err := s.accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, u)
}

func (s *Server) handleLogin(rw http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeCode(rw, ErrBadRequest, err.Error(), "")
		return
	}
	sess, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	if s.linker != nil {
		s.linker.SetUser(sess.User.ID)
		if acc := s.game.Connection().Account; acc != nil {
			if err := s.linker.LinkWallet(r.Context(), *acc); err != nil {
				s.log.WithError(err).Warn("link wallet")
			} else if u, err := s.accounts.Profile(r.Context(), sess.User.ID); err == nil {
				sess.User = u
			}
		}
	}
	writeJSON(rw, http.StatusOK, sess)
}

func (s *Server) handleLogout(rw http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	u, err := s.accounts.Authenticate(r.Context(), token)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	if err := s.accounts.Logout(r.Context(), token); err != nil {
		s.writeError(rw, err)
		return
	}
	if s.linker != nil && s.linker.UserID() == u.ID {
		s.linker.ClearUser()
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(rw http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, u)
}

type profileRequest struct {
	DisplayName string `json:"displayName"`
}

func (s *Server) handleUpdateProfile(rw http.ResponseWriter, r *http.Request) {
	u, err := s.accounts.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		s.writeError(rw, err)
		return
	}
	var req profileRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeCode(rw, ErrBadRequest, err.Error(), "")
		return
	}
	u, err = s.accounts.UpdateDisplayName(r.Context(), u.ID, req.DisplayName)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, u)
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// decodeBody reads a JSON object from r. An empty body is accepted when
// optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return errors.New("invalid json body")
	}
	return nil
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	code, msg := Classify(err)
	var tx string
	var failed *game.ActionFailed
	if errors.As(err, &failed) && failed.TxHash != (common.Hash{}) {
		tx = failed.TxHash.Hex()
	}
	entry := s.log.WithField("code", code)
	if code == ErrInternal {
		entry.WithError(err).Error("request failed")
	} else {
		entry.WithError(err).Debug("request rejected")
	}
	writeCode(rw, code, msg, tx)
}

func writeCode(rw http.ResponseWriter, code, msg, tx string) {
	var body ErrorBody
	body.Error.Code = code
	body.Error.Message = msg
	body.Error.TxHash = tx
	writeJSON(rw, StatusFor(code), body)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// Serve runs an HTTP server for h on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}()
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
