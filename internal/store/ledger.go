package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ScanLedger remembers script bundle URLs that were scanned without yielding a credential.
// A Bloom filter answers most misses; the LRU holds the authoritative, bounded set.
type ScanLedger struct {
	bloom             *bloom.BloomFilter
	lru               *lru.Cache[string, struct{}]
	mutex             sync.RWMutex
	capacity          int
	falsePositiveRate float64
}

// NewScanLedger creates a ledger holding at most capacity entries.
func NewScanLedger(capacity int, falsePositiveRate float64) *ScanLedger {
	if capacity <= 0 || capacity > int(^uint(0)>>1) {
		panic("capacity value out of range for uint conversion")
	}
	lruCache, _ := lru.New[string, struct{}](capacity)

	return &ScanLedger{
		bloom:             bloom.NewWithEstimates(uint(capacity), falsePositiveRate),
		lru:               lruCache,
		capacity:          capacity,
		falsePositiveRate: falsePositiveRate,
	}
}

// Has reports whether the script URL was already scanned without a match.
func (l *ScanLedger) Has(scriptURL string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if !l.bloom.TestString(scriptURL) {
		return false
	}
	return l.lru.Contains(scriptURL)
}

// Add records a scanned script URL. The oldest entry is evicted beyond capacity.
func (l *ScanLedger) Add(scriptURL string) {
	if scriptURL == "" {
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.bloom.AddString(scriptURL)
	l.lru.Add(scriptURL, struct{}{})
}

// Load replaces the ledger contents with the given URLs, oldest first.
func (l *ScanLedger) Load(scriptURLs []string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.clear()
	for _, scriptURL := range scriptURLs {
		if scriptURL != "" {
			l.bloom.AddString(scriptURL)
			l.lru.Add(scriptURL, struct{}{})
		}
	}
}

// Entries returns the recorded URLs, oldest first.
func (l *ScanLedger) Entries() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.lru.Keys()
}

// Size returns the number of recorded URLs.
func (l *ScanLedger) Size() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.lru.Len()
}

func (l *ScanLedger) clear() {
	l.bloom = bloom.NewWithEstimates(uint(l.capacity), l.falsePositiveRate)
	l.lru.Purge()
}
