package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "DEX_NETWORK=kovan\nDEX_DEFAULT_EXPIRY=1900000000\nDEX_ENDPOINT=ws://from-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	// ENV wins over the .env file
	t.Setenv("DEX_ENDPOINT", "ws://from-env")
	t.Setenv("DEX_NO_AUTO_AUTH", "true")
	t.Setenv("DEX_MAX_SCHEMA_DEPTH", "12")
	t.Setenv("DEVSERVER_LISTING", "/etc/dexws/listed.json")

	cfg := LoadFromEnv(envFile)
	t.Cleanup(func() {
		os.Unsetenv("DEX_NETWORK")
		os.Unsetenv("DEX_DEFAULT_EXPIRY")
	})

	if cfg.Client.Endpoint != "ws://from-env" {
		t.Errorf("endpoint = %s, want ws://from-env", cfg.Client.Endpoint)
	}
	if cfg.Client.Network != "kovan" {
		t.Errorf("network = %s, want kovan", cfg.Client.Network)
	}
	if got := cfg.Client.ResolvedChainID(); got != 42 {
		t.Errorf("chain id = %d, want 42", got)
	}
	if cfg.Orders.DefaultExpiry != 1900000000 {
		t.Errorf("expiry = %d, want 1900000000", cfg.Orders.DefaultExpiry)
	}
	if !cfg.Client.NoAutoAuth {
		t.Error("NoAutoAuth should be set")
	}
	if cfg.Schema.MaxDepth != 12 {
		t.Errorf("max depth = %d, want 12", cfg.Schema.MaxDepth)
	}
	if cfg.DevServer.ListingFile != "/etc/dexws/listed.json" {
		t.Errorf("listing file = %s", cfg.DevServer.ListingFile)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Orders.DefaultExpiry != DefaultExpiry {
		t.Errorf("expiry = %d, want %d", cfg.Orders.DefaultExpiry, DefaultExpiry)
	}
	if cfg.Client.ResolvedChainID() != 1 {
		t.Errorf("chain id = %d, want 1", cfg.Client.ResolvedChainID())
	}

	cfg.Client.Delegate = "bb"
	if cfg.Client.SigningKey() != "bb" {
		t.Error("delegate should sign when no account key is set")
	}
	cfg.Client.Account = "aa"
	if cfg.Client.SigningKey() != "aa" {
		t.Error("account key should take precedence")
	}
}
