// Command treasurehunt is the game client daemon. It attaches to a wallet
// and an Ethereum RPC endpoint, keeps the read model in sync with the game
// contract, and serves the local HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Piyush79432/Treasure-hunt/internal/account"
	"github.com/Piyush79432/Treasure-hunt/internal/api"
	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/config"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
	"github.com/Piyush79432/Treasure-hunt/internal/journal"
	"github.com/Piyush79432/Treasure-hunt/internal/wallet"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/treasurehunt.yaml", "config path (empty for defaults)")
		listen     = flag.String("listen", "", "http listen address (overrides http.listen)")
		rpcURL     = flag.String("rpc", "", "ethereum rpc url (overrides network.rpc_url)")
		walletURL  = flag.String("wallet", "", "wallet websocket url (overrides wallet.url)")
		logLevel   = flag.String("log_level", "info", "log level: debug, info, warn, error")
		logJSON    = flag.Bool("log_json", false, "log as JSON")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if *logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	path := strings.TrimSpace(*configPath)
	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Warnf("config not found (%s); using defaults", path)
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if v := strings.TrimSpace(*listen); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := strings.TrimSpace(*rpcURL); v != "" {
		cfg.Network.RPCURL = v
	}
	if v := strings.TrimSpace(*walletURL); v != "" {
		cfg.Wallet.URL = v
		cfg.Wallet.PrivateKeyEnv = ""
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Network.RPCURL)
	if err != nil {
		logger.Fatalf("dial rpc %s: %v", cfg.Network.RPCURL, err)
	}
	defer client.Close()

	contract := chain.NewContract(cfg.ContractAddress(), client)

	var provider wallet.Provider
	switch {
	case cfg.Wallet.URL != "":
		ws := wallet.NewWSProvider(cfg.Wallet.URL, logger)
		ws.Start()
		defer ws.Close()
		provider = ws
	case cfg.Wallet.PrivateKeyEnv != "":
		kp, err := wallet.KeyProviderFromEnv(cfg.Wallet.PrivateKeyEnv, client)
		if err != nil {
			logger.Fatalf("key wallet: %v", err)
		}
		provider = kp
	default:
		logger.Warn("no wallet configured; running read-only")
	}

	store, err := account.OpenSQLite(cfg.Storage.AccountDB)
	if err != nil {
		logger.Fatalf("open account db: %v", err)
	}
	defer store.Close()
	accounts := account.NewService(store, account.Options{Log: logger})
	linker := account.NewLinker(accounts)

	opts := game.SessionOptions{
		Controller:           game.ControllerConfigFrom(cfg),
		ShowTreasurePosition: cfg.Debug.ShowTreasurePosition,
		ExpectedChainID:      cfg.Network.ChainID,
		Accounts:             linker,
		Log:                  logger,
	}
	if dir := strings.TrimSpace(cfg.Storage.JournalDir); dir != "" {
		j, err := journal.Open(dir, logger)
		if err != nil {
			logger.Fatalf("open journal: %v", err)
		}
		defer j.Close()
		opts.Recorder = j
		opts.Events = j
	}

	session := game.NewSession(contract, provider, opts)
	defer session.Close()
	if err := session.Start(ctx); err != nil {
		logger.WithError(err).Warn("wallet initialize")
	}

	watcher := chain.NewWatcher(cfg.ContractAddress(), client, cfg.Network.EventPollInterval, logger)
	srv := api.NewServer(api.SessionGame(session), api.Options{
		Accounts: accounts,
		Linker:   linker,
		Log:      logger,
	})

	logger.WithFields(logrus.Fields{
		"contract": cfg.ContractAddress().Hex(),
		"rpc":      cfg.Network.RPCURL,
		"network":  game.NetworkLabel(session.Conn.State().ChainID),
	}).Info("treasure hunt client starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx, session.HandleContractEvent) })
	g.Go(func() error { return api.Serve(gctx, cfg.HTTP.Listen, srv, logger) })
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("stopped")
		os.Exit(1)
	}
	logger.Info("bye")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
