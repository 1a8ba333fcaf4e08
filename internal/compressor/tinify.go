package compressor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"image-shrink-go/internal/apperr"
)

// TinifyBackend talks to a TinyPNG-compatible shrink service keyed by an API
// key sent as HTTP basic auth ("api", key).
type TinifyBackend struct {
	baseURL string
	client  *http.Client
}

// NewTinifyBackend returns a TinifyBackend for the service at baseURL.
func NewTinifyBackend(baseURL string, client *http.Client) *TinifyBackend {
	return &TinifyBackend{baseURL: baseURL, client: client}
}

// Name returns "tinify".
func (b *TinifyBackend) Name() string { return "tinify" }

type tinifyShrinkResponse struct {
	Input struct {
		Size int64  `json:"size"`
		Type string `json:"type"`
	} `json:"input"`
	Output struct {
		Size   int64   `json:"size"`
		Type   string  `json:"type"`
		Width  int     `json:"width"`
		Height int     `json:"height"`
		Ratio  float64 `json:"ratio"`
		URL    string  `json:"url"`
	} `json:"output"`
}

type tinifyError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type tinifyURLSource struct {
	Source struct {
		URL string `json:"url"`
	} `json:"source"`
}

// Compress shrinks src. Local data is uploaded as the request body; URL
// sources are passed to the service, which fetches them itself.
func (b *TinifyBackend) Compress(ctx context.Context, src Source, progress ProgressFunc) (*Output, error) {
	const stage = "shrink"

	if src.Credential == "" {
		return nil, apperr.InvalidInputf(stage, "an API key is required for the tinify backend")
	}

	var (
		body        []byte
		contentType string
	)
	if src.Data != nil {
		body = src.Data
	} else if src.URL != "" {
		var payload tinifyURLSource
		payload.Source.URL = src.URL
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, apperr.BackendWrap(stage, err)
		}
		body = encoded
		contentType = "application/json"
	} else {
		return nil, apperr.InvalidInputf(stage, "source has neither data nor url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/shrink", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.InvalidInputf(stage, "bad base url %q: %v", b.baseURL, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth("api", src.Credential)

	progress.report(10)
	respBody, resp, err := doRequest(b.client, req, stage)
	if err != nil {
		return nil, tinifyMessage(err)
	}
	progress.report(50)

	var parsed tinifyShrinkResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperr.Protocolf(stage, "decode response: %v", err)
	}
	resultURL := parsed.Output.URL
	if resultURL == "" {
		resultURL = resp.Header.Get("Location")
	}
	if resultURL == "" {
		return nil, apperr.Protocolf(stage, "response has no output url: %s", truncateBody(respBody))
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return nil, apperr.Protocolf("download", "bad output url %q: %v", resultURL, err)
	}
	dlReq.SetBasicAuth("api", src.Credential)
	compressed, dlResp, err := doRequest(b.client, dlReq, "download")
	if err != nil {
		return nil, tinifyMessage(err)
	}
	progress.report(80)

	declared := parsed.Output.Type
	if declared == "" {
		declared = dlResp.Header.Get("Content-Type")
	}
	originalSize := parsed.Input.Size
	if originalSize == 0 && src.Data != nil {
		originalSize = int64(len(src.Data))
	}
	return &Output{
		Data:         compressed,
		ContentType:  detectContentType(declared, src.Name),
		URL:          resultURL,
		Width:        parsed.Output.Width,
		Height:       parsed.Output.Height,
		OriginalSize: originalSize,
	}, nil
}

// tinifyMessage replaces a JSON error body with the service's message,
// e.g. "Unauthorized: Credentials are invalid.".
func tinifyMessage(err error) error {
	e, ok := err.(*apperr.Error)
	if !ok || e.Body == "" {
		return err
	}
	var te tinifyError
	if json.Unmarshal([]byte(e.Body), &te) != nil || te.Error == "" {
		return err
	}
	out := *e
	out.Body = fmt.Sprintf("%s: %s", te.Error, te.Message)
	return &out
}
