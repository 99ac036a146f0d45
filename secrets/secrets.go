// Package secrets resolves per-adapter DEX credentials (Vault-backed
// with an env-var fallback) and implements the error-log redaction
// rules (§7): API keys, tokens, and Bearer headers never reach
// persisted or logged output unmasked.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// VaultConfig configures the optional Vault KV backend. When Disabled
// (the default), GetAdapterKey falls back to environment variables.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	Namespace  string
	RenewTTL   time.Duration
	MaxRetries int
}

type cachedSecret struct {
	Value     map[string]string
	ExpiresAt time.Time
}

// Client resolves adapter credentials from Vault or the environment.
type Client struct {
	config VaultConfig
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]*cachedSecret
}

func New(config VaultConfig) *Client {
	if config.MountPath == "" {
		config.MountPath = "secret"
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RenewTTL == 0 {
		config.RenewTTL = 5 * time.Minute
	}
	return &Client{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]*cachedSecret),
	}
}

// GetAdapterKey retrieves a DEX adapter's API key. With Vault
// disabled, it reads <ADAPTER_ID>_API_KEY from the environment.
func (c *Client) GetAdapterKey(ctx context.Context, adapterID string) (string, error) {
	if !c.config.Enabled {
		envKey := fmt.Sprintf("%s_API_KEY", strings.ToUpper(adapterID))
		if key := os.Getenv(envKey); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("vault disabled and no env var %s", envKey)
	}

	path := fmt.Sprintf("adapters/%s", adapterID)

	c.mu.RLock()
	if cached, ok := c.cache[path]; ok && time.Now().Before(cached.ExpiresAt) {
		c.mu.RUnlock()
		return cached.Value["api_key"], nil
	}
	c.mu.RUnlock()

	secret, err := c.readSecret(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read adapter key: %w", err)
	}
	apiKey, ok := secret["api_key"]
	if !ok {
		return "", fmt.Errorf("no api_key field in vault path %s", path)
	}

	c.mu.Lock()
	c.cache[path] = &cachedSecret{Value: secret, ExpiresAt: time.Now().Add(c.config.RenewTTL)}
	c.mu.Unlock()

	return apiKey, nil
}

// WriteAdapterKey stores an adapter API key in Vault.
func (c *Client) WriteAdapterKey(ctx context.Context, adapterID, apiKey string) error {
	path := fmt.Sprintf("adapters/%s", adapterID)
	return c.writeSecret(ctx, path, map[string]string{"api_key": apiKey})
}

// InvalidateCache clears all cached secrets.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedSecret)
}

func (c *Client) readSecret(ctx context.Context, path string) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", c.config.Address, c.config.MountPath, path)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Vault-Token", c.config.Token)
		if c.config.Namespace != "" {
			req.Header.Set("X-Vault-Namespace", c.config.Namespace)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("secret not found: %s", path)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("vault error (%d): %s", resp.StatusCode, string(body))
		}

		var result struct {
			Data struct {
				Data map[string]string `json:"data"`
			} `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode secret: %w", err)
		}
		return result.Data.Data, nil
	}

	return nil, fmt.Errorf("vault read failed after %d retries: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) writeSecret(ctx context.Context, path string, data map[string]string) error {
	url := fmt.Sprintf("%s/v1/%s/data/%s", c.config.Address, c.config.MountPath, path)

	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("X-Vault-Token", c.config.Token)
	req.Header.Set("Content-Type", "application/json")
	if c.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.config.Namespace)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vault write error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
