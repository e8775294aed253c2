// Package metadata decodes on-chain token metadata.
package metadata

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/mintdesk/mintdesk/internal/metrics"
	"github.com/mintdesk/mintdesk/internal/model"
)

// Decode errors.
var (
	ErrMalformed    = errors.New("malformed token metadata")
	ErrMissingImage = errors.New("token metadata has no image")
	ErrDataURI      = errors.New("unsupported data uri")
)

const jsonMediaType = "application/json"

// Decoder turns raw tokenURI strings into TokenMetadata.
// It is safe for concurrent use.
type Decoder struct {
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger, recorder metrics.Recorder) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Decoder{
		logger:  logger.With("component", "metadata_decoder"),
		metrics: recorder,
	}
}

// DecodeTokenMetadata builds the metadata for tokenID. A nil rawURI means the
// fetch is still outstanding and yields the loading state. Decode failures are
// logged and reported through DecodeError; they never propagate.
func (d *Decoder) DecodeTokenMetadata(tokenID model.TokenID, rawURI *string) model.TokenMetadata {
	meta := model.TokenMetadata{TokenID: tokenID, RawURI: rawURI}
	if rawURI == nil {
		return meta
	}

	decoded, err := Parse(*rawURI)
	if err != nil {
		d.logger.Warn("failed to decode token metadata",
			"token_id", tokenID.String(),
			"error", err,
		)
		d.metrics.IncMetadataDecoded(metrics.StatusFailure)
		meta.DecodeError = true
		return meta
	}

	d.metrics.IncMetadataDecoded(metrics.StatusSuccess)
	meta.Decoded = &decoded
	return meta
}

// Parse extracts the image from a tokenURI. Bare JSON documents are accepted
// as well as application/json data URIs, plain or base64.
func Parse(raw string) (model.DecodedMetadata, error) {
	doc := []byte(raw)
	if strings.HasPrefix(raw, "data:") {
		var err error
		doc, err = decodeDataURI(raw)
		if err != nil {
			return model.DecodedMetadata{}, err
		}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return model.DecodedMetadata{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return model.DecodedMetadata{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	rawImage, ok := fields["image"]
	if !ok {
		return model.DecodedMetadata{}, ErrMissingImage
	}

	var image *string
	if err := json.Unmarshal(rawImage, &image); err != nil || image == nil {
		return model.DecodedMetadata{}, fmt.Errorf("%w: image is not a string", ErrMalformed)
	}

	return model.DecodedMetadata{Image: model.UnsafeMarkup(*image)}, nil
}

func decodeDataURI(raw string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload", ErrDataURI)
	}

	params := strings.Split(header, ";")
	if !strings.EqualFold(strings.TrimSpace(params[0]), jsonMediaType) {
		return nil, fmt.Errorf("%w: media type %q", ErrDataURI, params[0])
	}

	if strings.EqualFold(params[len(params)-1], "base64") {
		doc, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return doc, nil
	}

	doc, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return []byte(doc), nil
}
