package handler

import (
	"bufio"
	"net/http"
	"strconv"

	"github.com/mintdesk/mintdesk/internal/metrics"
)

// MetricsHandler serves a metrics.Snapshot in the Prometheus text format.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// sample.labels is a rendered label set such as `status="success"`, or a
// name suffix such as "_sum" for summary parts.
type sample struct {
	labels string
	value  string
}

type family struct {
	name, kind, help string
	samples          []sample
}

func counter(v uint64) string { return strconv.FormatUint(v, 10) }
func seconds(ns int64) string { return strconv.FormatFloat(float64(ns)/1e9, 'f', 6, 64) }

func byStatus(ok, bad uint64) []sample {
	return []sample{{`status="success"`, counter(ok)}, {`status="failure"`, counter(bad)}}
}

func families(s metrics.Snapshot) []family {
	return []family{
		{"mintdesk_mints_submitted_total", "counter", "Mint requests that reached the contract.",
			[]sample{{"", counter(s.MintsSubmitted)}}},
		{"mintdesk_mints_guard_rejected_total", "counter", "Mint requests refused while another was pending.",
			[]sample{{"", counter(s.MintsGuardRejected)}}},
		{"mintdesk_mints_total", "counter", "Settled mints by outcome.",
			byStatus(s.MintsSucceeded, s.MintsFailed)},
		{"mintdesk_mint_duration_seconds", "summary", "Time from submission to settlement.",
			[]sample{{"_count", counter(s.MintDurationCount)}, {"_sum", seconds(s.MintDurationTotalNs)}}},
		{"mintdesk_enumeration_failures_total", "counter", "Ownership enumerations that failed.",
			[]sample{{"", counter(s.EnumerationFailures)}}},
		{"mintdesk_metadata_decoded_total", "counter", "tokenURI decodes by outcome.",
			byStatus(s.MetadataDecoded, s.MetadataDecodeErrors)},
		{"mintdesk_refresh_duration_seconds", "summary", "Ownership view refresh time.",
			[]sample{{"_count", counter(s.RefreshCount)}, {"_sum", seconds(s.RefreshTotalNs)}}},
		{"mintdesk_token_uri_cache_hits_total", "counter", "",
			[]sample{{"", counter(s.TokenURICacheHits)}}},
		{"mintdesk_token_uri_cache_misses_total", "counter", "",
			[]sample{{"", counter(s.TokenURICacheMisses)}}},
		{"mintdesk_owned_tokens_cache_hits_total", "counter", "",
			[]sample{{"", counter(s.OwnedTokensCacheHits)}}},
		{"mintdesk_owned_tokens_cache_misses_total", "counter", "",
			[]sample{{"", counter(s.OwnedTokensCacheMisses)}}},
		{"mintdesk_webhook_deliveries_total", "counter", "Webhook delivery attempts by outcome.",
			byStatus(s.WebhookDelivered, s.WebhookFailed)},
	}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for _, f := range families(h.snapshotter.Snapshot()) {
		if f.help != "" {
			bw.WriteString("# HELP " + f.name + " " + f.help + "\n")
		}
		bw.WriteString("# TYPE " + f.name + " " + f.kind + "\n")
		for _, s := range f.samples {
			bw.WriteString(f.name)
			switch {
			case s.labels == "":
			case s.labels[0] == '_':
				bw.WriteString(s.labels)
			default:
				bw.WriteString("{" + s.labels + "}")
			}
			bw.WriteString(" " + s.value + "\n")
		}
	}
}
