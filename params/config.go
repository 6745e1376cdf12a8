package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultExpiry is the order expiry used when a signed order does not set
// one (2025-05-02 02:05:25 UTC). Production callers should always override it.
const DefaultExpiry uint32 = 1746144325

// ChainIDs maps network names to Ethereum chain ids.
var ChainIDs = map[string]uint64{
	"mainnet": 1,
	"ropsten": 3,
	"rinkeby": 4,
	"kovan":   42,
}

type Client struct {
	Endpoint string
	Network  string
	// ChainID overrides the id derived from Network when non-zero.
	ChainID uint64

	// Account and Delegate are hex-encoded private keys. The account key
	// takes precedence for authentication and order signing.
	Account    string
	Delegate   string
	NoAutoAuth bool
}

type Orders struct {
	DefaultExpiry uint32
	// ContractAddress is used for order hashes until the exchange pushes its
	// config packet.
	ContractAddress string
}

type Schema struct {
	// MaxDepth bounds recursion through struct references.
	MaxDepth int
}

type DevServer struct {
	Addr string
	// ListingFile is a JSON listed payload served instead of the built-in listing.
	ListingFile string
}

type Config struct {
	Client    Client
	Orders    Orders
	Schema    Schema
	DevServer DevServer
}

func Default() Config {
	return Config{
		Client: Client{
			Endpoint: "wss://api.dex.blue/ws",
			Network:  "mainnet",
		},
		Orders: Orders{
			DefaultExpiry: DefaultExpiry,
		},
		Schema: Schema{
			MaxDepth: 64,
		},
		DevServer: DevServer{
			Addr: ":8080",
		},
	}
}

// ResolvedChainID returns the explicit chain id or the one of the configured network.
func (c Client) ResolvedChainID() uint64 {
	if c.ChainID != 0 {
		return c.ChainID
	}
	return ChainIDs[c.Network]
}

// SigningKey returns the key orders are signed with: account first, then delegate.
func (c Client) SigningKey() string {
	if c.Account != "" {
		return c.Account
	}
	return c.Delegate
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Client.Endpoint = getEnv("DEX_ENDPOINT", cfg.Client.Endpoint)
	cfg.Client.Network = getEnv("DEX_NETWORK", cfg.Client.Network)
	cfg.Client.Account = getEnv("DEX_ACCOUNT", cfg.Client.Account)
	cfg.Client.Delegate = getEnv("DEX_DELEGATE", cfg.Client.Delegate)
	cfg.Orders.ContractAddress = getEnv("DEX_CONTRACT_ADDRESS", cfg.Orders.ContractAddress)
	cfg.DevServer.Addr = getEnv("DEVSERVER_ADDR", cfg.DevServer.Addr)
	cfg.DevServer.ListingFile = getEnv("DEVSERVER_LISTING", cfg.DevServer.ListingFile)

	if id := os.Getenv("DEX_CHAIN_ID"); id != "" {
		if v, err := strconv.ParseUint(id, 10, 64); err == nil {
			cfg.Client.ChainID = v
		}
	}
	if noAuth := os.Getenv("DEX_NO_AUTO_AUTH"); noAuth != "" {
		cfg.Client.NoAutoAuth = strings.EqualFold(noAuth, "true")
	}
	if expiry := os.Getenv("DEX_DEFAULT_EXPIRY"); expiry != "" {
		if v, err := strconv.ParseUint(expiry, 10, 32); err == nil {
			cfg.Orders.DefaultExpiry = uint32(v)
		}
	}
	if depth := os.Getenv("DEX_MAX_SCHEMA_DEPTH"); depth != "" {
		if v, err := strconv.Atoi(depth); err == nil && v > 0 {
			cfg.Schema.MaxDepth = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
