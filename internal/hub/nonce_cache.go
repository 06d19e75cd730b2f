package hub

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"sonyhub/internal/device"
	"sonyhub/internal/logger"
)

const (
	defaultNoncesPerDevice = 50
	defaultNonceExpiration = time.Hour
	nonceSweepInterval     = 10 * time.Minute
)

type cachedResponse struct {
	response *device.ActionResponse
	stored   time.Time
}

// NonceCache remembers the response to each nonce so a retried action isn't
// sent to the device twice. Every device gets its own bounded LRU.
type NonceCache struct {
	mu         sync.RWMutex
	devices    map[string]*lru.Cache[string, cachedResponse]
	maxSize    int
	expiration time.Duration

	stop   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewNonceCache creates a nonce cache. Non-positive arguments take the
// defaults (50 nonces, one hour).
func NewNonceCache(maxSize int, expiration time.Duration) *NonceCache {
	if maxSize <= 0 {
		maxSize = defaultNoncesPerDevice
	}
	if expiration <= 0 {
		expiration = defaultNonceExpiration
	}

	nc := &NonceCache{
		devices:    make(map[string]*lru.Cache[string, cachedResponse]),
		maxSize:    maxSize,
		expiration: expiration,
		stop:       make(chan struct{}),
		logger:     logger.Component("nonce_cache"),
	}
	go nc.sweep(nonceSweepInterval)
	return nc
}

// GenerateNonce returns a nonce of the form <unix millis>-<8 hex digits>
func GenerateNonce() string {
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		n := time.Now().UnixNano()
		random = []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
	return fmt.Sprintf("%d-%x", time.Now().UnixMilli(), random)
}

// ValidateNonce checks the format produced by GenerateNonce
func ValidateNonce(nonce string) bool {
	ts, random, ok := strings.Cut(nonce, "-")
	if !ok || len(ts) < 13 || len(random) != 8 || strings.Contains(random, "-") {
		return false
	}
	if _, err := strconv.ParseUint(ts, 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(random, 16, 32)
	return err == nil
}

func (nc *NonceCache) deviceCache(deviceID string) *lru.Cache[string, cachedResponse] {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	cache, ok := nc.devices[deviceID]
	if !ok {
		cache, _ = lru.New[string, cachedResponse](nc.maxSize)
		nc.devices[deviceID] = cache
	}
	return cache
}

// Lookup returns the stored response for nonce, if still fresh
func (nc *NonceCache) Lookup(deviceID, nonce string) (*device.ActionResponse, bool) {
	if nonce == "" {
		return nil, false
	}

	cache := nc.deviceCache(deviceID)
	cached, ok := cache.Get(nonce)
	if !ok {
		return nil, false
	}
	if time.Since(cached.stored) > nc.expiration {
		cache.Remove(nonce)
		return nil, false
	}
	return cached.response, true
}

// Store records response for nonce. Empty nonces are ignored.
func (nc *NonceCache) Store(deviceID, nonce string, response *device.ActionResponse) {
	if nonce == "" {
		return
	}
	nc.deviceCache(deviceID).Add(nonce, cachedResponse{response: response, stored: time.Now()})
}

// ClearDevice forgets every nonce of a device
func (nc *NonceCache) ClearDevice(deviceID string) {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	if cache, ok := nc.devices[deviceID]; ok {
		cache.Purge()
		delete(nc.devices, deviceID)
	}
}

// Count returns the number of nonces held for a device
func (nc *NonceCache) Count(deviceID string) int {
	nc.mu.RLock()
	cache, ok := nc.devices[deviceID]
	nc.mu.RUnlock()

	if !ok {
		return 0
	}
	return cache.Len()
}

// Stats summarises the cache for the health endpoint
func (nc *NonceCache) Stats() map[string]interface{} {
	nc.mu.RLock()
	defer nc.mu.RUnlock()

	total := 0
	perDevice := make(map[string]int, len(nc.devices))
	for id, cache := range nc.devices {
		perDevice[id] = cache.Len()
		total += cache.Len()
	}

	return map[string]interface{}{
		"total_devices": len(nc.devices),
		"total_nonces":  total,
		"max_size":      nc.maxSize,
		"expiration":    nc.expiration.String(),
		"device_stats":  perDevice,
	}
}

func (nc *NonceCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-nc.stop:
			return
		case <-ticker.C:
			nc.removeExpired()
		}
	}
}

func (nc *NonceCache) removeExpired() {
	nc.mu.Lock()
	defer nc.mu.Unlock()

	expired := 0
	for id, cache := range nc.devices {
		for _, nonce := range cache.Keys() {
			if cached, ok := cache.Peek(nonce); ok && time.Since(cached.stored) > nc.expiration {
				cache.Remove(nonce)
				expired++
			}
		}
		if cache.Len() == 0 {
			delete(nc.devices, id)
		}
	}

	if expired > 0 {
		nc.logger.Debug().Int("expired_count", expired).Msg("Cleaned up expired nonces")
	}
}

// Shutdown stops the sweeper and drops everything
func (nc *NonceCache) Shutdown() {
	nc.once.Do(func() { close(nc.stop) })

	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.devices = make(map[string]*lru.Cache[string, cachedResponse])
}
