package report

import (
	"sync/atomic"

	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/neutrino/cache/lru"
)

// DefaultCacheSize is the number of distinct lines a CachedClassifier
// remembers by default.
const DefaultCacheSize = 1_000

// cachedResult is a classification or a recoverable error.
type cachedResult struct {
	label string
	err   error
}

// Size returns 1 as the cache is limited by the number of lines.
func (c *cachedResult) Size() (uint64, error) {
	return 1, nil
}

// CachedClassifier remembers the result per line so that repeated lines are
// only classified once. Critical errors are never cached.
type CachedClassifier struct {
	classifier Classifier
	cache      *lru.Cache[string, *cachedResult]

	hit  atomic.Int64
	miss atomic.Int64
}

// NewCachedClassifier wraps the classifier with a cache of the given size.
func NewCachedClassifier(c Classifier, size uint64) *CachedClassifier {
	return &CachedClassifier{
		classifier: c,
		cache:      lru.NewCache[string, *cachedResult](size),
	}
}

// ScriptType returns the cached result for the line or classifies it.
func (c *CachedClassifier) ScriptType(line string) (string, error) {
	if res, err := c.cache.Get(line); err == nil {
		c.hit.Add(1)
		return res.label, res.err
	}
	c.miss.Add(1)

	label, err := c.classifier.ScriptType(line)
	if fn.ErrorAs[*fn.CriticalError](err) {
		return "", err
	}

	res := &cachedResult{label: label, err: err}
	if _, err := c.cache.Put(line, res); err != nil {
		log.Errorf("Unable to cache result for %q: %v", line, err)
	}

	return label, err
}

// Stats returns the number of cache hits and misses.
func (c *CachedClassifier) Stats() (hits, misses int64) {
	return c.hit.Load(), c.miss.Load()
}

// cachedModule is a Module whose line classification is cached.
type cachedModule struct {
	Module

	cached *CachedClassifier
}

// WithCache returns a module that classifies lines through a
// CachedClassifier of the given size.
func WithCache(m Module, size uint64) Module {
	return &cachedModule{
		Module: m,
		cached: NewCachedClassifier(m, size),
	}
}

// ScriptType classifies the line through the cache.
func (c *cachedModule) ScriptType(line string) (string, error) {
	return c.cached.ScriptType(line)
}
