package compressor

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"

	"image-shrink-go/internal/apperr"
)

// RemoteBackend uploads the image as multipart form data to a compression
// endpoint and downloads the result from the URL in the reply.
type RemoteBackend struct {
	endpoint string
	client   *http.Client
}

// NewRemoteBackend returns a RemoteBackend posting to endpoint.
func NewRemoteBackend(endpoint string, client *http.Client) *RemoteBackend {
	return &RemoteBackend{endpoint: endpoint, client: client}
}

// Name returns "remote".
func (b *RemoteBackend) Name() string { return "remote" }

// Compress uploads src and downloads the compressed image.
func (b *RemoteBackend) Compress(ctx context.Context, src Source, progress ProgressFunc) (*Output, error) {
	const stage = "upload"

	if src.Credential == "" {
		return nil, apperr.InvalidInputf(stage, "an API key is required for the remote backend")
	}

	data, err := sourceBytes(ctx, b.client, src)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", src.Name)
	if err != nil {
		return nil, apperr.BackendWrap(stage, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, apperr.BackendWrap(stage, err)
	}
	if err := form.Close(); err != nil {
		return nil, apperr.BackendWrap(stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, &body)
	if err != nil {
		return nil, apperr.InvalidInputf(stage, "bad endpoint %q: %v", b.endpoint, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
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

	// result URLs are pre-signed; the credential is not forwarded
	compressed, contentType, err := download(ctx, b.client, parsed.resultURL(), "")
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
		OriginalSize: int64(len(data)),
	}, nil
}
