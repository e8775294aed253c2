package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

const (
	HeaderSignature  = "X-Mintdesk-Signature"
	HeaderTimestamp  = "X-Mintdesk-Timestamp"
	HeaderDeliveryID = "X-Mintdesk-Delivery-Id"
	HeaderEvent      = "X-Mintdesk-Event"

	userAgent = "Mintdesk-Webhook/1.0"
)

// Delivery timeouts. The whole attempt is capped by clientTimeout.
const (
	clientTimeout         = 10 * time.Second
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	responseHeaderTimeout = 8 * time.Second
)

// NewHTTPClient returns the delivery client. Redirects are returned to the
// caller rather than followed. Unless allowLocal is set, every dial is
// checked against the resolved address so a name that passed
// ValidateTargetURL cannot later rebind to an internal host.
func NewHTTPClient(allowLocal bool) *http.Client {
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	if !allowLocal {
		dialer.Control = refusePrivate
	}
	return &http.Client{
		Timeout: clientTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("webhook dial %s: %w", address, err)
	}
	if !publicAddr(ap.Addr()) {
		return fmt.Errorf("webhook dial %s: %w", address, ErrPrivateIP)
	}
	return nil
}

// newDeliveryRequest builds one signed POST of body.
func newDeliveryRequest(ctx context.Context, target, secret string, p Payload, body []byte, sentAt time.Time) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	ts := sentAt.Unix()
	h := req.Header
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set(HeaderEvent, p.EventType)
	h.Set(HeaderDeliveryID, p.EventID)
	h.Set(HeaderTimestamp, fmt.Sprint(ts))
	h.Set(HeaderSignature, GenerateSignature(secret, ts, body))
	return req, nil
}
