// Package metrics defines the counters the mint controller, ownership view,
// read cache and webhook notifier report. InMemoryRecorder backs /metrics.
package metrics

import "time"

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder receives counters and timings from the mint, ownership, cache and
// webhook paths. Implementations must be safe for concurrent use.
type Recorder interface {
	IncMintSubmitted()
	IncMintGuardRejected()
	IncMintResult(status string)
	ObserveMintDuration(d time.Duration)

	IncEnumerationFailure()
	IncMetadataDecoded(status string)
	ObserveRefreshDuration(d time.Duration)

	IncTokenURICacheHit()
	IncTokenURICacheMiss()
	IncOwnedTokensCacheHit()
	IncOwnedTokensCacheMiss()

	IncWebhookDelivery(status string)
}

// Snapshotter is implemented by recorders that can be read back.
type Snapshotter interface {
	Snapshot() Snapshot
}
