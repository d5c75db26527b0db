package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultContractAddress, cfg.Contract.Address)
	assert.Equal(t, uint64(500000), cfg.Gas.JoinLimit)
	assert.Equal(t, uint64(100000), cfg.Gas.MoveLimit)
	assert.Equal(t, "Player", cfg.Game.DefaultPlayerName)
	assert.Equal(t, "data/accounts.sqlite", filepath.Clean(cfg.Storage.AccountDB))
	assert.False(t, cfg.Debug.ShowTreasurePosition)
}

func TestLoad_OverridesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "treasurehunt.yaml")
	body := `
contract:
  address: " 0x00000000000000000000000000000000000000aa "
wallet:
  url: ws://127.0.0.1:9545
game:
  join_fee: "0.001"
  default_player_name: "  "
  action_timeout: 10s
debug:
  show_treasure_position: true
storage:
  data_dir: ` + dir + `
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Contract.Address)
	assert.Equal(t, "ws://127.0.0.1:9545", cfg.Wallet.URL)
	assert.Equal(t, "Player", cfg.Game.DefaultPlayerName)
	assert.Equal(t, 10*time.Second, cfg.Game.ActionTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Game.LateWatch)
	assert.True(t, cfg.Debug.ShowTreasurePosition)
	assert.Equal(t, dir+"/accounts.sqlite", cfg.Storage.AccountDB)
	assert.Equal(t, 0, cfg.JoinFeeWei().Cmp(big.NewInt(1_000_000_000_000_000)))
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad address":    func(c *Config) { c.Contract.Address = "nope" },
		"empty rpc":      func(c *Config) { c.Network.RPCURL = " " },
		"bad fee":        func(c *Config) { c.Game.JoinFee = "abc" },
		"negative fee":   func(c *Config) { c.Game.GasBuffer = "-1" },
		"zero gas":       func(c *Config) { c.Gas.MoveLimit = 0 },
		"bad gas price":  func(c *Config) { c.Gas.Price = "2 gwei" },
		"two wallets":    func(c *Config) { c.Wallet.URL = "ws://x"; c.Wallet.PrivateKeyEnv = "KEY" },
		"no http listen": func(c *Config) { c.HTTP.Listen = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseAndFormatEther(t *testing.T) {
	wei, err := ParseEther("0.05")
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", wei.String())
	assert.Equal(t, "0.05", FormatEther(wei))

	one, err := ParseEther("1")
	require.NoError(t, err)
	assert.Equal(t, "1", FormatEther(one))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0", FormatEther(big.NewInt(0)))

	_, err = ParseEther("0.0000000000000000001")
	assert.Error(t, err)
}

func TestGasPriceWei(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "2000000000", cfg.GasPriceWei().String())
	cfg.Gas.Price = ""
	assert.Nil(t, cfg.GasPriceWei())
}
