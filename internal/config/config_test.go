package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validJSON() string {
	return `{
		"networks": {"devnet": {"rpc": "http://127.0.0.1:8899", "ws": "ws://127.0.0.1:8900"}},
		"network": "devnet",
		"account_db_path": "/data/accounts",
		"block_db_path": "/data/blocks",
		"transaction_db_path": "/data/transactions",
		"optimistic_db_path": "/data/optimistic",
		"proof_verifier_program_id": "Prove11111111111111111111111111111111111",
		"signature_verifier_program_id": "Sig111111111111111111111111111111111111",
		"fee_payer_keypair_paths": ["/keys/fee-payer.json"],
		"validator_url": "http://127.0.0.1:9000"
	}`
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadFileParsesValidConfig(t *testing.T) {
	path := writeTempConfig(t, validJSON())
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.Network != "devnet" {
		t.Errorf("Network: got %q, want %q", cfg.Network, "devnet")
	}
	if cfg.AccountDBPath != "/data/accounts" {
		t.Errorf("AccountDBPath: got %q, want %q", cfg.AccountDBPath, "/data/accounts")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validJSON())
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.OptimisticTimeoutSeconds != DefaultOptimisticTimeoutSeconds {
		t.Errorf("OptimisticTimeoutSeconds: got %d, want %d", cfg.OptimisticTimeoutSeconds, DefaultOptimisticTimeoutSeconds)
	}
	if cfg.TransactionBatchAmount != DefaultTransactionBatchAmount {
		t.Errorf("TransactionBatchAmount: got %d, want %d", cfg.TransactionBatchAmount, DefaultTransactionBatchAmount)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr: got %q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
}

func TestLoadFileHonorsExplicitTunables(t *testing.T) {
	path := writeTempConfig(t, `{
		"networks": {"devnet": {"rpc": "http://x", "ws": "ws://x"}},
		"network": "devnet",
		"account_db_path": "a", "block_db_path": "b",
		"transaction_db_path": "c", "optimistic_db_path": "d",
		"proof_verifier_program_id": "p", "signature_verifier_program_id": "s",
		"fee_payer_keypair_paths": ["k"], "validator_url": "http://v",
		"optimistic_timeout": 120, "transaction_batch_amount": 8,
		"listen_addr": "0.0.0.0:9999"
	}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.OptimisticTimeoutSeconds != 120 {
		t.Errorf("OptimisticTimeoutSeconds: got %d, want 120", cfg.OptimisticTimeoutSeconds)
	}
	if cfg.TransactionBatchAmount != 8 {
		t.Errorf("TransactionBatchAmount: got %d, want 8", cfg.TransactionBatchAmount)
	}
	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("ListenAddr: got %q, want %q", cfg.ListenAddr, "0.0.0.0:9999")
	}
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	path := writeTempConfig(t, `{not json`)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if _, err := Load(); err == nil {
		t.Error("expected an error when the env var is unset")
	}
}

func TestLoadReadsFromEnvVar(t *testing.T) {
	path := writeTempConfig(t, validJSON())
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network != "devnet" {
		t.Errorf("Network: got %q, want %q", cfg.Network, "devnet")
	}
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error on an empty config")
	}
	for _, want := range []string{"account_db_path is required", "validator_url is required", "fee_payer_keypair_path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err.Error(), want)
		}
	}
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	path := writeTempConfig(t, validJSON())
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	cfg.Network = "mainnet"
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected a validation error for an unknown network")
	}
	if !strings.Contains(err.Error(), `network "mainnet" has no entry`) {
		t.Errorf("error %q does not mention the unknown network", err.Error())
	}
}

func TestEndpointsReturnsSelectedNetwork(t *testing.T) {
	path := writeTempConfig(t, validJSON())
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	e, ok := cfg.Endpoints()
	if !ok {
		t.Fatal("expected endpoints for the selected network")
	}
	if e.RPC != "http://127.0.0.1:8899" {
		t.Errorf("RPC: got %q, want %q", e.RPC, "http://127.0.0.1:8899")
	}
}
