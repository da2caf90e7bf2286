package deliberation

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/linnemanlabs/boardroom/internal/council"
)

// Cache holds recent analyses in memory, keyed by normalized decision text
// and mode. Values are stored encoded so callers never share a result.
type Cache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewCache creates a cache bounded to roughly maxBytes of encoded results.
// A zero ttl keeps entries until evicted.
func NewCache(maxBytes int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

func cacheKey(text string, mode council.Mode) string {
	return string(mode) + "\x00" + NormalizeText(text)
}

// Get returns a copy of the cached result for the decision, if any.
func (c *Cache) Get(text string, mode council.Mode) (*council.AnalysisResult, bool) {
	b, ok := c.c.Get(cacheKey(text, mode))
	if !ok {
		return nil, false
	}
	var r council.AnalysisResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// Set stores r under its own decision text and mode. Admission is
// asynchronous; Wait blocks until pending sets are visible.
func (c *Cache) Set(r *council.AnalysisResult) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.c.SetWithTTL(cacheKey(r.DecisionText, r.Mode), b, int64(len(b)), c.ttl)
}

// Wait blocks until buffered writes have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
