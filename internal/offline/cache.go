package offline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// CachedResponse is one stored upstream response.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// Cache stores responses under one generation directory. Superseded
// generations are swept on Activate, mirroring how versioned shell
// caches are rotated.
type Cache struct {
	root       string
	generation string
}

// OpenCache prepares the cache directory for the given generation tag.
func OpenCache(root, generation string) (*Cache, error) {
	if generation == "" {
		return nil, fmt.Errorf("cache generation tag is required")
	}
	dir := filepath.Join(root, generation)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{root: root, generation: generation}, nil
}

// Generation returns the active generation tag.
func (c *Cache) Generation() string {
	return c.generation
}

func (c *Cache) dir() string {
	return filepath.Join(c.root, c.generation)
}

// entryPath keys cache files by a digest of the request key so any URL
// maps to a flat filename.
func (c *Cache) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir(), hex.EncodeToString(sum[:16]))
}

// Put stores one response. The body and a small metadata sidecar are
// written separately; a torn write at worst loses this one entry.
func (c *Cache) Put(key string, resp CachedResponse) error {
	path := c.entryPath(key)
	meta, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode cache meta: %w", err)
	}
	if err := os.WriteFile(path+".body", resp.Body, 0o644); err != nil {
		return fmt.Errorf("write cache body: %w", err)
	}
	if err := os.WriteFile(path+".meta", meta, 0o644); err != nil {
		return fmt.Errorf("write cache meta: %w", err)
	}
	return nil
}

// Get returns the stored response for key, if any.
func (c *Cache) Get(key string) (CachedResponse, bool) {
	path := c.entryPath(key)
	meta, err := os.ReadFile(path + ".meta")
	if err != nil {
		return CachedResponse{}, false
	}
	var resp CachedResponse
	if err := json.Unmarshal(meta, &resp); err != nil {
		return CachedResponse{}, false
	}
	body, err := os.ReadFile(path + ".body")
	if err != nil {
		return CachedResponse{}, false
	}
	resp.Body = body
	return resp, true
}

// Install pre-populates the cache with the shell manifest, fetching
// every asset relative to baseURL. All fetches must succeed before
// anything is stored, so a failed install never leaves a partial shell.
func (c *Cache) Install(ctx context.Context, client *http.Client, baseURL string, manifest []string) error {
	if client == nil {
		client = http.DefaultClient
	}

	fetched := make(map[string]CachedResponse, len(manifest))
	for _, asset := range manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+asset, nil)
		if err != nil {
			return fmt.Errorf("build request for %s: %w", asset, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch shell asset %s: %w", asset, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read shell asset %s: %w", asset, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch shell asset %s: %s", asset, resp.Status)
		}
		fetched[asset] = CachedResponse{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}
	}

	for asset, resp := range fetched {
		if err := c.Put(asset, resp); err != nil {
			return err
		}
	}
	return nil
}

// Activate sweeps every generation directory other than the current
// one. Returns the swept generation tags.
func (c *Cache) Activate() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("list cache generations: %w", err)
	}

	var swept []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == c.generation {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, entry.Name())); err != nil {
			return swept, fmt.Errorf("sweep generation %s: %w", entry.Name(), err)
		}
		swept = append(swept, entry.Name())
	}
	return swept, nil
}
