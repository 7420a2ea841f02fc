package verify

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gnoswap-labs/sepexec/internal/result"
)

const cacheFileName = "verify_cache.gob"

type cachedMethod struct {
	Name    string
	Trusted bool
	Line    int
	Column  int
}

type cacheEntry struct {
	Hash         string
	Methods      []cachedMethod
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache remembers program files that verified without failures, keyed by
// their content and the configuration they were verified with. Files
// with failures are never cached.
type Cache struct {
	CacheDir  string
	entries   map[string]cacheEntry
	mutex     sync.Mutex
	maxAge    time.Duration
	configKey string
}

// NewCache opens the cache stored in cacheDir, creating the directory if
// needed.
func NewCache(cacheDir string, config Config) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	c := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]cacheEntry),
		// Parallelism and ReportAll do not change which files verify.
		configKey: fmt.Sprintf("subsumption=%t splits=%d", config.Subsumption, config.MaxCaseSplits),
	}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return c, nil
}

func (c *Cache) load() error {
	file, err := os.Open(filepath.Join(c.CacheDir, cacheFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}
	return nil
}

func (c *Cache) save() error {
	file, err := os.Create(filepath.Join(c.CacheDir, cacheFileName))
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(c.entries); err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}
	return nil
}

// Set records the reports of path. Reports with failures evict the entry.
func (c *Cache) Set(path string, reports []Report) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, r := range reports {
		if r.Result.IsFailure() {
			delete(c.entries, path)
			return c.save()
		}
	}

	hash, err := c.hash(path)
	if err != nil {
		return err
	}
	methods := make([]cachedMethod, len(reports))
	for i, r := range reports {
		methods[i] = cachedMethod{Name: r.Method, Trusted: r.Trusted, Line: r.Pos.Line, Column: r.Pos.Column}
	}
	now := time.Now()
	c.entries[path] = cacheEntry{Hash: hash, Methods: methods, CreatedAt: now, LastAccessed: now}
	return c.save()
}

// Get returns the successful reports recorded for path if neither the
// file nor the configuration changed since.
func (c *Cache) Get(path string) ([]Report, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if c.isEntryInvalid(path, entry) {
		delete(c.entries, path)
		return nil, false
	}
	entry.LastAccessed = time.Now()
	c.entries[path] = entry

	reports := make([]Report, len(entry.Methods))
	for i, m := range entry.Methods {
		reports[i] = Report{
			File:    path,
			Method:  m.Name,
			Pos:     token.Position{Filename: path, Line: m.Line, Column: m.Column},
			Trusted: m.Trusted,
			Result:  result.Success(),
		}
	}
	return reports, true
}

func (c *Cache) isEntryInvalid(path string, entry cacheEntry) bool {
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		return true
	}
	hash, err := c.hash(path)
	return err != nil || hash != entry.Hash
}

// SetMaxAge expires entries older than d. Zero keeps entries forever.
func (c *Cache) SetMaxAge(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.maxAge = d
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]cacheEntry)
	return c.save()
}

func (c *Cache) hash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	h := sha256.New()
	h.Write([]byte(c.configKey))
	h.Write([]byte{0})
	h.Write(content)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

type cachingVerifier struct {
	engine FileVerifier
	cache  *Cache
}

// WithCache wraps engine so that files recorded in cache are not verified
// again.
func WithCache(engine FileVerifier, cache *Cache) FileVerifier {
	return &cachingVerifier{engine: engine, cache: cache}
}

func (v *cachingVerifier) VerifyFile(ctx context.Context, path string) ([]Report, error) {
	if reports, ok := v.cache.Get(path); ok {
		return reports, nil
	}
	reports, err := v.engine.VerifyFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := v.cache.Set(path, reports); err != nil {
		return nil, err
	}
	return reports, nil
}
