package loader

import (
	"encoding/base64"
	"sync"

	"github.com/OpenArc-1/Ark-sub001/elf"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
)

// Cache holds decoded ELF images keyed by content hash. Decoding is pure,
// so two buffers with the same bytes share a decode; segment placement
// always happens fresh per execution.
type Cache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewCache() *Cache {
	cache, err := lru.NewARC(100)
	if err != nil {
		panic(err)
	}

	return &Cache{cache: cache}
}

func (c *Cache) Lookup(key string) (*elf.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*elf.Image), true
}

func (c *Cache) Set(key string, img *elf.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, img)
}

func cacheKey(buf []byte) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	h.Write(buf)

	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}
