package compressor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"image-shrink-go/internal/apperr"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 4096

// compressResponse covers both result shapes returned by the compression
// services: {data:{output:{url}}} and {data:{compressedImageUrl,...}}.
type compressResponse struct {
	Data struct {
		Output struct {
			URL string `json:"url"`
		} `json:"output"`
		CompressedImageURL string `json:"compressedImageUrl"`
		Width              int    `json:"width"`
		Height             int    `json:"height"`
		ContentType        string `json:"contentType"`
		OutputID           string `json:"outputId"`
	} `json:"data"`
}

func (r *compressResponse) resultURL() string {
	if r.Data.Output.URL != "" {
		return r.Data.Output.URL
	}
	return r.Data.CompressedImageURL
}

// authorize sets a bearer Authorization header. Credentials that already
// carry a scheme ("Bearer x", "Basic y") are sent as-is.
func authorize(req *http.Request, credential string) {
	if credential == "" {
		return
	}
	if strings.Contains(credential, " ") {
		req.Header.Set("Authorization", credential)
		return
	}
	req.Header.Set("Authorization", "Bearer "+credential)
}

// doRequest sends req and returns the body of a 2xx response. Anything else
// becomes a BackendError carrying the status and body.
func doRequest(client *http.Client, req *http.Request, stage string) ([]byte, *http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, apperr.BackendWrap(stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp, apperr.Backend(stage, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, apperr.BackendWrap(stage, fmt.Errorf("read response: %w", err))
	}
	return body, resp, nil
}

// parseCompressResponse decodes a compression service reply and checks that
// it names a result URL.
func parseCompressResponse(body []byte, stage string) (*compressResponse, error) {
	var parsed compressResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Protocolf(stage, "decode response: %v", err)
	}
	if parsed.resultURL() == "" {
		return nil, apperr.Protocolf(stage, "response has no result url: %s", truncateBody(body))
	}
	return &parsed, nil
}

// download fetches url and returns its bytes and content type.
func download(ctx context.Context, client *http.Client, url, credential string) ([]byte, string, error) {
	const stage = "download"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperr.InvalidInputf(stage, "bad url %q: %v", url, err)
	}
	authorize(req, credential)

	body, resp, err := doRequest(client, req, stage)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// sourceBytes returns the bytes of src, downloading src.URL when the source
// has no local data.
func sourceBytes(ctx context.Context, client *http.Client, src Source) ([]byte, error) {
	if src.Data != nil {
		return src.Data, nil
	}
	if src.URL == "" {
		return nil, apperr.InvalidInputf("source", "source has neither data nor url")
	}
	data, _, err := download(ctx, client, src.URL, "")
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	return data, nil
}

// contentLength asks the server for the size of url with a HEAD request.
// It returns 0 when the size is unknown.
func contentLength(ctx context.Context, client *http.Client, url string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0
	}
	n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// detectContentType prefers the declared type, then the file extension.
func detectContentType(declared, name string) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
		return declared
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func truncateBody(body []byte) string {
	if len(body) > 512 {
		return string(body[:512]) + "..."
	}
	return string(body)
}
