// Package config loads the node's JSON configuration file (spec §6's
// CLI/env contract): network endpoints, the four StateStore DB paths, the
// two L1 program ids, the prefetch allowlist, fee-payer keypair paths, and
// the optimistic-commitment tunables. Grounded on the teacher's
// pkg/config/config.go struct-of-fields shape and its accumulated-errors
// Validate(), adapted from env-var reading to the single
// TROLLUP_CONFIG_PATH JSON file the spec names.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EnvConfigPath is the environment variable naming the JSON config file
// (spec §6: "TROLLUP_CONFIG_PATH → JSON config file path").
const EnvConfigPath = "TROLLUP_CONFIG_PATH"

// DefaultOptimisticTimeoutSeconds mirrors statecommitment.DefaultOptimisticTimeout.
const DefaultOptimisticTimeoutSeconds = 60

// DefaultTransactionBatchAmount mirrors execution.DefaultBatchSize.
const DefaultTransactionBatchAmount = 4

// NetworkEndpoints pairs an RPC and WebSocket endpoint under one network
// name, since spec §6 names both "per network".
type NetworkEndpoints struct {
	RPC string `json:"rpc"`
	WS  string `json:"ws"`
}

// Config is the node's full JSON configuration (spec §6).
type Config struct {
	// Networks maps a network name (e.g. "mainnet", "devnet") to its RPC
	// and WebSocket endpoints.
	Networks map[string]NetworkEndpoints `json:"networks"`
	// Network selects which entry in Networks is active.
	Network string `json:"network"`

	// AccountDBPath, BlockDBPath, TransactionDBPath, and OptimisticDBPath
	// are the four DB paths spec §6 names.
	AccountDBPath     string `json:"account_db_path"`
	BlockDBPath       string `json:"block_db_path"`
	TransactionDBPath string `json:"transaction_db_path"`
	OptimisticDBPath  string `json:"optimistic_db_path"`

	// ProofVerifierProgramID and SignatureVerifierProgramID are the two L1
	// program ids spec §6 names.
	ProofVerifierProgramID     string `json:"proof_verifier_program_id"`
	SignatureVerifierProgramID string `json:"signature_verifier_program_id"`

	// PrefetchProgramIDs lists L1 program ids the AccountLoader may fetch
	// from the parent chain on a store miss; each is fetched on its first
	// Load and then cached.
	PrefetchProgramIDs []string `json:"prefetch_program_ids"`

	// FeePayerKeypairPaths are the fee-payer keypair file paths.
	FeePayerKeypairPaths []string `json:"fee_payer_keypair_paths"`

	// ValidatorURL is the ValidatorClient's base HTTP endpoint.
	ValidatorURL string `json:"validator_url"`

	// OptimisticTimeoutSeconds bounds how long a pending optimistic
	// commitment waits for an anchor before the timeout sweep retries it
	// via the direct path (spec §4.5).
	OptimisticTimeoutSeconds int `json:"optimistic_timeout"`
	// TransactionBatchAmount is the ExecutionEngine's per-iteration dequeue
	// size (spec §4.4 step 1).
	TransactionBatchAmount int `json:"transaction_batch_amount"`

	// ListenAddr is the HTTP surface's bind address (spec §6 default
	// "localhost:27182").
	ListenAddr string `json:"listen_addr"`
}

// DefaultListenAddr is the HTTP surface's default bind address (spec §6).
const DefaultListenAddr = "localhost:27182"

// Load reads and parses the JSON config file named by TROLLUP_CONFIG_PATH,
// applying defaults for the tunables spec §6 leaves optional.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		return nil, fmt.Errorf("%s is not set", EnvConfigPath)
	}
	return LoadFile(path)
}

// LoadFile reads and parses the JSON config file at path.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OptimisticTimeoutSeconds <= 0 {
		c.OptimisticTimeoutSeconds = DefaultOptimisticTimeoutSeconds
	}
	if c.TransactionBatchAmount <= 0 {
		c.TransactionBatchAmount = DefaultTransactionBatchAmount
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// Endpoints returns the RPC/WS pair for the selected network.
func (c *Config) Endpoints() (NetworkEndpoints, bool) {
	e, ok := c.Networks[c.Network]
	return e, ok
}

// Validate checks that every field required to start the node is present,
// accumulating every problem found rather than stopping at the first
// (teacher's pkg/config/config.go Validate() convention).
func (c *Config) Validate() error {
	var errs []string

	if c.Network == "" {
		errs = append(errs, "network is required")
	} else if _, ok := c.Networks[c.Network]; !ok {
		errs = append(errs, fmt.Sprintf("network %q has no entry in networks", c.Network))
	}
	if e, ok := c.Networks[c.Network]; ok {
		if e.RPC == "" {
			errs = append(errs, fmt.Sprintf("networks[%q].rpc is required", c.Network))
		}
		if e.WS == "" {
			errs = append(errs, fmt.Sprintf("networks[%q].ws is required", c.Network))
		}
	}

	if c.AccountDBPath == "" {
		errs = append(errs, "account_db_path is required")
	}
	if c.BlockDBPath == "" {
		errs = append(errs, "block_db_path is required")
	}
	if c.TransactionDBPath == "" {
		errs = append(errs, "transaction_db_path is required")
	}
	if c.OptimisticDBPath == "" {
		errs = append(errs, "optimistic_db_path is required")
	}

	if c.ProofVerifierProgramID == "" {
		errs = append(errs, "proof_verifier_program_id is required")
	}
	if c.SignatureVerifierProgramID == "" {
		errs = append(errs, "signature_verifier_program_id is required")
	}

	if c.ValidatorURL == "" {
		errs = append(errs, "validator_url is required")
	}

	if len(c.FeePayerKeypairPaths) == 0 {
		errs = append(errs, "at least one fee_payer_keypair_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
