package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment-driven settings. Values come from the
// process environment (optionally seeded from a .env file in main).
type Config struct {
	Port                string `envconfig:"PORT" default:"8080"`
	RPCURL              string `envconfig:"RPC_URL" default:"https://ethereum-sepolia-rpc.publicnode.com"`
	ChainID             int64  `envconfig:"CHAIN_ID" default:"11155111"`
	EventManagerAddress string `envconfig:"EVENT_MANAGER_ADDRESS" required:"true"`
	RelayerURL          string `envconfig:"RELAYER_URL" default:"https://relayer.testnet.zama.cloud"`
	IPFSGateway         string `envconfig:"IPFS_GATEWAY" default:"https://ipfs.io/ipfs/"`

	// PrivateKey signs transactions (sign-in, claim, organizer creates).
	// Hex encoded, with or without the 0x prefix.
	PrivateKey string `envconfig:"PRIVATE_KEY"`

	// DatabaseURL is optional; when set, decryption authorizations are
	// persisted in Postgres instead of process memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:3001"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	return &cfg, nil
}
