package curate

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sells-group/decision-curator/internal/extract"
)

// extractCache memoizes extractor results by source hash.
type extractCache struct {
	lru *lru.Cache[string, extract.Result]
}

// newExtractCache returns nil when size is not positive, which disables caching.
func newExtractCache(size int) *extractCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New[string, extract.Result](size)
	if err != nil {
		return nil
	}
	return &extractCache{lru: c}
}

func (c *extractCache) get(key string) (extract.Result, bool) {
	if c == nil {
		return extract.Result{}, false
	}
	return c.lru.Get(key)
}

func (c *extractCache) add(key string, res extract.Result) {
	if c != nil {
		c.lru.Add(key, res)
	}
}
