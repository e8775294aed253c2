package metrics

import "time"

// NoopRecorder discards everything. Components fall back to it when no
// recorder is injected.
type NoopRecorder struct{}

func NewNoop() Recorder { return NoopRecorder{} }

func (NoopRecorder) IncMintSubmitted()                    {}
func (NoopRecorder) IncMintGuardRejected()                {}
func (NoopRecorder) IncMintResult(string)                 {}
func (NoopRecorder) ObserveMintDuration(time.Duration)    {}
func (NoopRecorder) IncEnumerationFailure()               {}
func (NoopRecorder) IncMetadataDecoded(string)            {}
func (NoopRecorder) ObserveRefreshDuration(time.Duration) {}
func (NoopRecorder) IncTokenURICacheHit()                 {}
func (NoopRecorder) IncTokenURICacheMiss()                {}
func (NoopRecorder) IncOwnedTokensCacheHit()              {}
func (NoopRecorder) IncOwnedTokensCacheMiss()             {}
func (NoopRecorder) IncWebhookDelivery(string)            {}
