package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	MintsSubmitted         uint64
	MintsGuardRejected     uint64
	MintsSucceeded         uint64
	MintsFailed            uint64
	MintDurationCount      uint64
	MintDurationTotalNs    int64
	EnumerationFailures    uint64
	MetadataDecoded        uint64
	MetadataDecodeErrors   uint64
	RefreshCount           uint64
	RefreshTotalNs         int64
	TokenURICacheHits      uint64
	TokenURICacheMisses    uint64
	OwnedTokensCacheHits   uint64
	OwnedTokensCacheMisses uint64
	WebhookDelivered       uint64
	WebhookFailed          uint64
}

var (
	_ Recorder    = (*InMemoryRecorder)(nil)
	_ Snapshotter = (*InMemoryRecorder)(nil)
)

// InMemoryRecorder stores metrics in memory; it backs /metrics and tests.
type InMemoryRecorder struct {
	mintsSubmitted       uint64
	mintsGuardRejected   uint64
	mintsSucceeded       uint64
	mintsFailed          uint64
	mintDurationCount    uint64
	mintDurationTotalNs  int64
	enumerationFailures  uint64
	metadataDecoded      uint64
	metadataDecodeErrors uint64
	refreshCount         uint64
	refreshTotalNs       int64
	tokenURICacheHits    uint64
	tokenURICacheMisses  uint64
	ownedCacheHits       uint64
	ownedCacheMisses     uint64
	webhookDelivered     uint64
	webhookFailed        uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		MintsSubmitted:         atomic.LoadUint64(&m.mintsSubmitted),
		MintsGuardRejected:     atomic.LoadUint64(&m.mintsGuardRejected),
		MintsSucceeded:         atomic.LoadUint64(&m.mintsSucceeded),
		MintsFailed:            atomic.LoadUint64(&m.mintsFailed),
		MintDurationCount:      atomic.LoadUint64(&m.mintDurationCount),
		MintDurationTotalNs:    atomic.LoadInt64(&m.mintDurationTotalNs),
		EnumerationFailures:    atomic.LoadUint64(&m.enumerationFailures),
		MetadataDecoded:        atomic.LoadUint64(&m.metadataDecoded),
		MetadataDecodeErrors:   atomic.LoadUint64(&m.metadataDecodeErrors),
		RefreshCount:           atomic.LoadUint64(&m.refreshCount),
		RefreshTotalNs:         atomic.LoadInt64(&m.refreshTotalNs),
		TokenURICacheHits:      atomic.LoadUint64(&m.tokenURICacheHits),
		TokenURICacheMisses:    atomic.LoadUint64(&m.tokenURICacheMisses),
		OwnedTokensCacheHits:   atomic.LoadUint64(&m.ownedCacheHits),
		OwnedTokensCacheMisses: atomic.LoadUint64(&m.ownedCacheMisses),
		WebhookDelivered:       atomic.LoadUint64(&m.webhookDelivered),
		WebhookFailed:          atomic.LoadUint64(&m.webhookFailed),
	}
}

// IncMintSubmitted increments the submitted mint counter.
func (m *InMemoryRecorder) IncMintSubmitted() {
	atomic.AddUint64(&m.mintsSubmitted, 1)
}

// IncMintGuardRejected increments the counter of submits dropped while pending.
func (m *InMemoryRecorder) IncMintGuardRejected() {
	atomic.AddUint64(&m.mintsGuardRejected, 1)
}

// IncMintResult increments the settled mint counter by status.
func (m *InMemoryRecorder) IncMintResult(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.mintsSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.mintsFailed, 1)
}

// ObserveMintDuration records time from submit to settle.
func (m *InMemoryRecorder) ObserveMintDuration(duration time.Duration) {
	atomic.AddUint64(&m.mintDurationCount, 1)
	atomic.AddInt64(&m.mintDurationTotalNs, duration.Nanoseconds())
}

// IncEnumerationFailure increments the failed tokensOfOwner counter.
func (m *InMemoryRecorder) IncEnumerationFailure() {
	atomic.AddUint64(&m.enumerationFailures, 1)
}

// IncMetadataDecoded increments the decode counter by status.
func (m *InMemoryRecorder) IncMetadataDecoded(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.metadataDecoded, 1)
		return
	}
	atomic.AddUint64(&m.metadataDecodeErrors, 1)
}

// ObserveRefreshDuration records how long an ownership derivation took.
func (m *InMemoryRecorder) ObserveRefreshDuration(duration time.Duration) {
	atomic.AddUint64(&m.refreshCount, 1)
	atomic.AddInt64(&m.refreshTotalNs, duration.Nanoseconds())
}

// IncTokenURICacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncTokenURICacheHit() {
	atomic.AddUint64(&m.tokenURICacheHits, 1)
}

// IncTokenURICacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncTokenURICacheMiss() {
	atomic.AddUint64(&m.tokenURICacheMisses, 1)
}

// IncOwnedTokensCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncOwnedTokensCacheHit() {
	atomic.AddUint64(&m.ownedCacheHits, 1)
}

// IncOwnedTokensCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncOwnedTokensCacheMiss() {
	atomic.AddUint64(&m.ownedCacheMisses, 1)
}

// IncWebhookDelivery increments the webhook delivery counter by status.
func (m *InMemoryRecorder) IncWebhookDelivery(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.webhookDelivered, 1)
		return
	}
	atomic.AddUint64(&m.webhookFailed, 1)
}
