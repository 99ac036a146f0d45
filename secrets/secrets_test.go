package secrets

import (
	"context"
	"os"
	"testing"
)

func TestGetAdapterKey_VaultDisabledFallsBackToEnv(t *testing.T) {
	os.Setenv("MOCK_API_KEY", "env-key-value")
	defer os.Unsetenv("MOCK_API_KEY")

	c := New(VaultConfig{Enabled: false})
	key, err := c.GetAdapterKey(context.Background(), "mock")
	if err != nil {
		t.Fatalf("get adapter key: %v", err)
	}
	if key != "env-key-value" {
		t.Fatalf("expected env-sourced key, got %q", key)
	}
}

func TestGetAdapterKey_VaultDisabledMissingEnvErrors(t *testing.T) {
	os.Unsetenv("UNSETADAPTER_API_KEY")

	c := New(VaultConfig{Enabled: false})
	_, err := c.GetAdapterKey(context.Background(), "unsetadapter")
	if err == nil {
		t.Fatal("expected an error when vault is disabled and no env var is set")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	c := New(VaultConfig{Enabled: true})
	if c.config.MountPath != "secret" {
		t.Fatalf("expected default mount path 'secret', got %q", c.config.MountPath)
	}
	if c.config.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", c.config.MaxRetries)
	}
}

func TestInvalidateCache_ClearsEntries(t *testing.T) {
	c := New(VaultConfig{Enabled: true})
	c.cache["adapters/mock"] = &cachedSecret{Value: map[string]string{"api_key": "x"}}
	c.InvalidateCache()
	if len(c.cache) != 0 {
		t.Fatalf("expected cache to be cleared, got %d entries", len(c.cache))
	}
}
