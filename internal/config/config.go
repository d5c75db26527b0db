package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/yaml.v3"
)

// DefaultContractAddress is the address the public deployment used before a
// config file was introduced.
const DefaultContractAddress = "0x0881Ba8e0ac771359aFf201C00d06202aCe009b7"

type Config struct {
	Contract ContractSpec `yaml:"contract"`
	Network  NetworkSpec  `yaml:"network"`
	Wallet   WalletSpec   `yaml:"wallet"`
	Game     GameSpec     `yaml:"game"`
	Gas      GasSpec      `yaml:"gas"`
	Debug    DebugSpec    `yaml:"debug"`
	Storage  StorageSpec  `yaml:"storage"`
	HTTP     HTTPSpec     `yaml:"http"`
}

type ContractSpec struct {
	Address string `yaml:"address"`
}

type NetworkSpec struct {
	// ChainID is the network the wallet is expected to be attached to.
	// Zero disables the check.
	ChainID uint64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
	// EventPollInterval is used when RPCURL does not support subscriptions.
	EventPollInterval time.Duration `yaml:"event_poll_interval"`
}

type WalletSpec struct {
	// URL of a websocket JSON-RPC wallet provider. Empty means no wallet.
	URL string `yaml:"url"`
	// PrivateKeyEnv names an env var holding a hex private key. Used
	// instead of URL for headless play.
	PrivateKeyEnv string `yaml:"private_key_env"`
}

type GameSpec struct {
	// JoinFee is the display value in ether, used when the contract's
	// joinFee() cannot be read.
	JoinFee string `yaml:"join_fee"`
	// GasBuffer is the ether margin required on top of the join fee.
	GasBuffer         string        `yaml:"gas_buffer"`
	DefaultPlayerName string        `yaml:"default_player_name"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	LateWatch         time.Duration `yaml:"late_watch"`
	ValidateAdjacency bool          `yaml:"validate_adjacency"`
}

type GasSpec struct {
	JoinLimit  uint64 `yaml:"join_limit"`
	MoveLimit  uint64 `yaml:"move_limit"`
	ResetLimit uint64 `yaml:"reset_limit"`
	// Price in wei. Empty lets the wallet decide.
	Price string `yaml:"price"`
}

type DebugSpec struct {
	ShowTreasurePosition bool `yaml:"show_treasure_position"`
}

type StorageSpec struct {
	DataDir   string `yaml:"data_dir"`
	AccountDB string `yaml:"account_db"`
	// JournalDir empty disables the action journal.
	JournalDir string `yaml:"journal_dir"`
}

type HTTPSpec struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Contract: ContractSpec{Address: DefaultContractAddress},
		Network: NetworkSpec{
			ChainID:           11155111,
			RPCURL:            "http://127.0.0.1:8545",
			EventPollInterval: 4 * time.Second,
		},
		Game: GameSpec{
			JoinFee:           "0.05",
			GasBuffer:         "0.005",
			DefaultPlayerName: "Player",
			ActionTimeout:     3 * time.Minute,
			LateWatch:         30 * time.Minute,
		},
		Gas: GasSpec{
			JoinLimit:  500000,
			MoveLimit:  100000,
			ResetLimit: 100000,
			Price:      "2000000000",
		},
		Storage: StorageSpec{
			DataDir: "./data",
		},
		HTTP: HTTPSpec{Listen: "127.0.0.1:8088"},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Contract.Address = strings.TrimSpace(c.Contract.Address)
	c.Network.RPCURL = strings.TrimSpace(c.Network.RPCURL)
	c.Wallet.URL = strings.TrimSpace(c.Wallet.URL)
	c.Game.DefaultPlayerName = strings.TrimSpace(c.Game.DefaultPlayerName)
	if c.Game.DefaultPlayerName == "" {
		c.Game.DefaultPlayerName = "Player"
	}
	if c.Game.ActionTimeout <= 0 {
		c.Game.ActionTimeout = 3 * time.Minute
	}
	if c.Game.LateWatch < c.Game.ActionTimeout {
		c.Game.LateWatch = c.Game.ActionTimeout
	}
	if c.Network.EventPollInterval <= 0 {
		c.Network.EventPollInterval = 4 * time.Second
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = "./data"
	}
	if strings.TrimSpace(c.Storage.AccountDB) == "" {
		c.Storage.AccountDB = strings.TrimRight(c.Storage.DataDir, "/") + "/accounts.sqlite"
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("contract.address %q is not a hex address", c.Contract.Address)
	}
	if c.Network.RPCURL == "" {
		return fmt.Errorf("network.rpc_url must not be empty")
	}
	if c.Wallet.URL != "" && c.Wallet.PrivateKeyEnv != "" {
		return fmt.Errorf("wallet.url and wallet.private_key_env are mutually exclusive")
	}
	if _, err := ParseEther(c.Game.JoinFee); err != nil {
		return fmt.Errorf("game.join_fee: %w", err)
	}
	if _, err := ParseEther(c.Game.GasBuffer); err != nil {
		return fmt.Errorf("game.gas_buffer: %w", err)
	}
	if c.Gas.JoinLimit == 0 || c.Gas.MoveLimit == 0 || c.Gas.ResetLimit == 0 {
		return fmt.Errorf("gas limits must be > 0")
	}
	if strings.TrimSpace(c.Gas.Price) != "" {
		if _, ok := new(big.Int).SetString(strings.TrimSpace(c.Gas.Price), 10); !ok {
			return fmt.Errorf("gas.price %q is not a wei integer", c.Gas.Price)
		}
	}
	if strings.TrimSpace(c.HTTP.Listen) == "" {
		return fmt.Errorf("http.listen must not be empty")
	}
	return nil
}

func (c Config) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract.Address)
}

func (c Config) JoinFeeWei() *big.Int {
	v, _ := ParseEther(c.Game.JoinFee)
	return v
}

func (c Config) GasBufferWei() *big.Int {
	v, _ := ParseEther(c.Game.GasBuffer)
	return v
}

// GasPriceWei returns nil when the price is left to the wallet.
func (c Config) GasPriceWei() *big.Int {
	s := strings.TrimSpace(c.Gas.Price)
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// ParseEther converts a decimal ether amount ("0.05") to wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt64(params.Ether))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	s := r.FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
