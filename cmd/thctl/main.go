// Command thctl is a terminal client for a running treasurehunt daemon.
//
//	thctl [-addr http://127.0.0.1:8088] <command> [flags]
//
// Commands: state, board, watch, connect, join, move, reset-turn,
// leaderboard, register, login, logout, profile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/api"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

func main() {
	var (
		addr      = flag.String("addr", envOr("TH_ADDR", "http://127.0.0.1:8088"), "daemon base url")
		tokenFile = flag.String("token_file", defaultTokenFile(), "where the login session token is kept")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := newClient(*addr, readToken(*tokenFile))
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if err := run(ctx, c, *tokenFile, cmd, args); err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			pterm.Error.Printfln("%s (%s)", ae.Message, ae.Code)
			if ae.TxHash != "" {
				pterm.Info.Printfln("transaction %s", ae.TxHash)
			}
		} else {
			pterm.Error.Println(err.Error())
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: thctl [-addr url] <command> [flags]

commands:
  state                     account, pool and player status
  board                     status plus the board
  watch                     redraw the board on every update
  connect                   ask the wallet for an account
  join [-name NAME]         pay the join fee and enter the game
  move CELL                 move to an adjacent cell
  reset-turn                start a new turn
  leaderboard [-n N]        top players by treasures found
  register -email -password -name
  login -email -password
  logout
  profile [-name NAME]      show or rename the logged-in profile
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, c *client, tokenFile, cmd string, args []string) error {
	switch cmd {
	case "state", "board":
		var st api.StateResponse
		if err := c.do(ctx, "GET", "/v1/state", nil, &st); err != nil {
			return err
		}
		printState(st, cmd == "board")
		return nil

	case "watch":
		area, err := pterm.DefaultArea.Start()
		if err != nil {
			return err
		}
		defer func() { _ = area.Stop() }()
		return c.stream(ctx, func(msg api.ModelMsg) {
			st := api.StateResponse{Model: msg.Model}
			st.Connection.Account = msg.Model.Account
			area.Update(strings.Join(statusLines(st), "\n") + "\n\n" + boardString(msg.Model, true))
		})

	case "connect":
		var st api.StateResponse
		if err := withSpinner("Waiting for the wallet...", func() error {
			return c.do(ctx, "POST", "/v1/wallet/connect", nil, &st)
		}); err != nil {
			return err
		}
		printState(st, false)
		return nil

	case "join":
		fs := flag.NewFlagSet("join", flag.ExitOnError)
		name := fs.String("name", "", "display name (default: profile name or Player)")
		_ = fs.Parse(args)
		return submit(ctx, c, "Joining the game...", "/v1/game/join", map[string]string{"name": *name})

	case "move":
		if len(args) != 1 {
			return fmt.Errorf("usage: thctl move CELL")
		}
		cell, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("cell must be a non-negative integer")
		}
		return submit(ctx, c, fmt.Sprintf("Moving to cell %d...", cell), "/v1/game/move", map[string]uint64{"cell": cell})

	case "reset-turn":
		return submit(ctx, c, "Resetting the turn...", "/v1/game/reset-turn", nil)

	case "leaderboard":
		fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
		n := fs.Int("n", 10, "number of players")
		_ = fs.Parse(args)
		var out struct {
			Entries []account.LeaderboardEntry `json:"entries"`
		}
		if err := c.do(ctx, "GET", fmt.Sprintf("/v1/leaderboard?n=%d", *n), nil, &out); err != nil {
			return err
		}
		if len(out.Entries) == 0 {
			pterm.Info.Println("No players yet.")
			return nil
		}
		return pterm.DefaultTable.WithHasHeader().WithData(leaderboardTable(out.Entries)).Render()

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		email := fs.String("email", "", "email")
		password := fs.String("password", "", "password (at least 6 characters)")
		name := fs.String("name", "", "display name")
		_ = fs.Parse(args)
		var u account.User
		if err := c.do(ctx, "POST", "/v1/auth/register", map[string]string{
			"email": *email, "password": *password, "displayName": *name,
		}, &u); err != nil {
			return err
		}
		pterm.Success.Printfln("Registered %s. Log in with: thctl login -email %s", u.DisplayName, u.Email)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		email := fs.String("email", "", "email")
		password := fs.String("password", "", "password")
		_ = fs.Parse(args)
		var sess account.Session
		if err := c.do(ctx, "POST", "/v1/auth/login", map[string]string{"email": *email, "password": *password}, &sess); err != nil {
			return err
		}
		if err := writeToken(tokenFile, sess.Token); err != nil {
			return err
		}
		pterm.Success.Printfln("Welcome, %s.", sess.User.DisplayName)
		return nil

	case "logout":
		if c.token == "" {
			pterm.Info.Println("Not logged in.")
			return nil
		}
		if err := c.do(ctx, "POST", "/v1/auth/logout", nil, nil); err != nil {
			return err
		}
		_ = os.Remove(tokenFile)
		pterm.Success.Println("Logged out.")
		return nil

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ExitOnError)
		name := fs.String("name", "", "new display name")
		_ = fs.Parse(args)
		var u account.User
		var err error
		if strings.TrimSpace(*name) != "" {
			err = c.do(ctx, "PATCH", "/v1/profile", map[string]string{"displayName": *name}, &u)
		} else {
			err = c.do(ctx, "GET", "/v1/profile", nil, &u)
		}
		if err != nil {
			return err
		}
		printProfile(u)
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func submit(ctx context.Context, c *client, text, path string, body any) error {
	var out game.Outcome
	if err := withSpinner(text, func() error {
		return c.do(ctx, "POST", path, body, &out)
	}); err != nil {
		return err
	}
	pterm.Success.Printfln("%s confirmed in %s", out.Kind, out.TxHash.Hex())
	if out.SyncErr != "" {
		pterm.Warning.Printfln("state refresh failed: %s", out.SyncErr)
	}
	printState(api.StateResponse{Connection: connectionOf(out.Model), Model: out.Model}, true)
	return nil
}

func connectionOf(m game.ReadModel) game.ConnectionState {
	return game.ConnectionState{Account: m.Account}
}

func withSpinner(text string, fn func() error) error {
	spinner, _ := pterm.DefaultSpinner.WithRemoveWhenDone(true).Start(text)
	err := fn()
	if spinner != nil {
		_ = spinner.Stop()
	}
	return err
}

func printProfile(u account.User) {
	lines := []string{
		"Name:      " + u.DisplayName,
		"Email:     " + u.Email,
	}
	if u.WalletAddress != "" {
		lines = append(lines, "Wallet:    "+u.WalletAddress)
	}
	lines = append(lines,
		fmt.Sprintf("Games:     %d", u.GameStats.GamesPlayed),
		fmt.Sprintf("Treasures: %d", u.GameStats.TreasuresFound),
	)
	if u.GameStats.LastPlayed != nil {
		lines = append(lines, "Last seen: "+u.GameStats.LastPlayed.Local().Format("2006-01-02 15:04"))
	}
	pterm.DefaultBox.WithTitle(pterm.LightCyan("|PROFILE|")).WithTitleTopCenter().Println(strings.Join(lines, "\n"))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".thctl-token"
	}
	return filepath.Join(dir, "treasurehunt", "token")
}

func readToken(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func writeToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}
