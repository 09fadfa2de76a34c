// Package pricing resolves per-token model prices and converts token usage
// into money. Price data comes from a remote catalog with a disk cache, a
// backup of the last good fetch, and a built-in default table; resolution
// never fails.
package pricing

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/parleybot/parley/internal/logging"
)

const (
	cacheFileName  = "prices.json"
	backupFileName = "prices.backup.json"

	// memoTTL bounds how long a resolved entry is reused before the catalog
	// is consulted again.
	memoTTL = time.Hour
	// memoMax caps the number of memoized model ids.
	memoMax = 256
)

// PriceEntry is the per-token input/output cost for a model.
type PriceEntry struct {
	InputCostPerToken  decimal.Decimal `json:"inputCostPerToken"`
	OutputCostPerToken decimal.Decimal `json:"outputCostPerToken"`
}

// Catalog resolves model ids to price entries.
type Catalog struct {
	url      string
	cacheDir string
	ttl      time.Duration
	client   *http.Client
	log      *logging.Logger

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	entry PriceEntry
	at    time.Time
}

// NewCatalog creates a price catalog caching under cacheDir.
func NewCatalog(url, cacheDir string, ttl time.Duration, log *logging.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 5 * 24 * time.Hour
	}
	return &Catalog{
		url:      url,
		cacheDir: cacheDir,
		ttl:      ttl,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log.Sub("pricing"),
		memo:     make(map[string]memoEntry),
	}
}

// GetPriceEntry resolves the price entry for a model id. It always returns a
// usable entry; network and filesystem problems degrade through the fallback
// tiers silently (logged only).
func (c *Catalog) GetPriceEntry(model string) PriceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.memo[model]; ok && time.Since(m.at) < memoTTL {
		return m.entry
	}

	normalized := NormalizeModelID(model)
	entry := c.resolve(c.loadCatalog(), normalized)
	c.memoize(model, entry)
	return entry
}

func (c *Catalog) memoize(model string, entry PriceEntry) {
	if len(c.memo) >= memoMax {
		var oldestKey string
		var oldestAt time.Time
		for k, m := range c.memo {
			if time.Since(m.at) >= memoTTL {
				delete(c.memo, k)
				continue
			}
			if oldestKey == "" || m.at.Before(oldestAt) {
				oldestKey, oldestAt = k, m.at
			}
		}
		if len(c.memo) >= memoMax && oldestKey != "" {
			delete(c.memo, oldestKey)
		}
	}
	c.memo[model] = memoEntry{entry: entry, at: time.Now()}
}

// resolve walks the lookup tiers within a catalog: exact key, substring match
// in either direction, built-in default for the id, baseline default.
func (c *Catalog) resolve(catalog map[string]PriceEntry, normalized string) PriceEntry {
	if entry, ok := catalog[normalized]; ok {
		return entry
	}
	for key, entry := range catalog {
		if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
			return entry
		}
	}
	if entry, ok := defaultPrices[normalized]; ok {
		return entry
	}
	c.log.Debug().Str("model", normalized).Msg("no price entry found, using baseline")
	return defaultPrices[baselineModel]
}

// loadCatalog obtains the full catalog: fresh cache, then network (rotating
// the old cache to a backup), then backup, then the built-in table.
func (c *Catalog) loadCatalog() map[string]PriceEntry {
	cachePath := filepath.Join(c.cacheDir, cacheFileName)
	backupPath := filepath.Join(c.cacheDir, backupFileName)

	if catalog := c.parseFileIfFresh(cachePath); catalog != nil {
		return catalog
	}

	if catalog := c.fetchRemote(cachePath, backupPath); catalog != nil {
		return catalog
	}

	if catalog := c.parseFile(backupPath); catalog != nil {
		c.log.Warn().Msg("price fetch failed, using backup catalog")
		return catalog
	}

	c.log.Warn().Msg("no price catalog available, using built-in defaults")
	return defaultPrices
}

func (c *Catalog) parseFileIfFresh(path string) map[string]PriceEntry {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if time.Since(info.ModTime()) >= c.ttl {
		c.log.Debug().Str("path", path).Msg("price cache expired")
		return nil
	}
	return c.parseFile(path)
}

func (c *Catalog) parseFile(path string) map[string]PriceEntry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	catalog := parseCatalog(data)
	if len(catalog) == 0 {
		return nil
	}
	return catalog
}

func (c *Catalog) fetchRemote(cachePath, backupPath string) map[string]PriceEntry {
	if c.url == "" {
		return nil
	}

	resp, err := c.client.Get(c.url)
	if err != nil {
		c.log.Warn().Err(err).Msg("price catalog fetch failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Msg("price catalog fetch failed")
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn().Err(err).Msg("price catalog read failed")
		return nil
	}

	catalog := parseCatalog(data)
	if len(catalog) == 0 {
		c.log.Warn().Msg("fetched price catalog is empty or malformed")
		return nil
	}

	// Keep the previous cache as a backup before overwriting.
	if _, err := os.Stat(cachePath); err == nil {
		if err := os.Rename(cachePath, backupPath); err != nil {
			c.log.Warn().Err(err).Msg("failed to rotate price cache backup")
		}
	}
	if err := os.MkdirAll(c.cacheDir, 0o700); err == nil {
		if err := os.WriteFile(cachePath, data, 0o600); err != nil {
			c.log.Warn().Err(err).Msg("failed to write price cache")
		}
	}

	c.log.Info().Int("models", len(catalog)).Msg("price catalog refreshed")
	return catalog
}

// catalogEntry is the remote catalog's wire format for one model. Fields use
// json.Number so prices survive the trip into decimals without a float64
// round-trip.
type catalogEntry struct {
	InputCostPerToken  json.Number `json:"input_cost_per_token"`
	OutputCostPerToken json.Number `json:"output_cost_per_token"`
}

func parseCatalog(data []byte) map[string]PriceEntry {
	var raw map[string]catalogEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	catalog := make(map[string]PriceEntry, len(raw))
	for key, entry := range raw {
		input, errIn := decimal.NewFromString(entry.InputCostPerToken.String())
		output, errOut := decimal.NewFromString(entry.OutputCostPerToken.String())
		if errIn != nil || errOut != nil {
			continue
		}
		if input.IsZero() && output.IsZero() {
			continue
		}
		catalog[strings.ToLower(key)] = PriceEntry{
			InputCostPerToken:  input,
			OutputCostPerToken: output,
		}
	}
	return catalog
}

// vendorPrefixes are namespace prefixes stripped during normalization.
var vendorPrefixes = []string{"openai/", "github/", "azure/", "anthropic/", "google/"}

// NormalizeModelID lower-cases a model id and strips vendor namespaces and
// fine-tune suffixes so catalog keys match across providers.
func NormalizeModelID(model string) string {
	id := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range vendorPrefixes {
		id = strings.TrimPrefix(id, prefix)
	}
	// Fine-tuned models look like "ft:gpt-3.5-turbo:org::id"; price as the
	// base model.
	id = strings.TrimPrefix(id, "ft:")
	if i := strings.Index(id, ":"); i > 0 {
		id = id[:i]
	}
	return id
}
