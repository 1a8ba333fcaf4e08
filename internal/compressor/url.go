package compressor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"image-shrink-go/internal/apperr"
)

// URLBackend asks a compression service to fetch and compress an image by
// URL. The service replies with the URL of the compressed image.
type URLBackend struct {
	endpoint string
	client   *http.Client
}

// NewURLBackend returns a URLBackend posting to endpoint.
func NewURLBackend(endpoint string, client *http.Client) *URLBackend {
	return &URLBackend{endpoint: endpoint, client: client}
}

// Name returns "url".
func (b *URLBackend) Name() string { return "url" }

type urlRequest struct {
	ImageURL string `json:"imageURL"`
}

// Compress sends src.URL to the service. Sources without a URL are rejected:
// the service cannot receive bytes.
func (b *URLBackend) Compress(ctx context.Context, src Source, progress ProgressFunc) (*Output, error) {
	const stage = "compress request"

	if src.URL == "" {
		return nil, apperr.InvalidInputf(stage, "the url backend needs an image URL, got a local file %q", src.Name)
	}
	if src.Credential == "" {
		return nil, apperr.InvalidInputf(stage, "a token is required for the url backend")
	}

	payload, err := json.Marshal(urlRequest{ImageURL: src.URL})
	if err != nil {
		return nil, apperr.BackendWrap(stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.InvalidInputf(stage, "bad endpoint %q: %v", b.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req, src.Credential)

	progress.report(10)
	respBody, _, err := doRequest(b.client, req, stage)
	if err != nil {
		return nil, err
	}
	progress.report(50)

	parsed, err := parseCompressResponse(respBody, stage)
	if err != nil {
		return nil, err
	}

	compressed, contentType, err := download(ctx, b.client, parsed.resultURL(), src.Credential)
	if err != nil {
		return nil, err
	}
	progress.report(80)

	if parsed.Data.ContentType != "" {
		contentType = parsed.Data.ContentType
	}
	return &Output{
		Data:         compressed,
		ContentType:  detectContentType(contentType, src.Name),
		URL:          parsed.resultURL(),
		Width:        parsed.Data.Width,
		Height:       parsed.Data.Height,
		OriginalSize: contentLength(ctx, b.client, src.URL),
	}, nil
}
