package compressor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"image-shrink-go/internal/apperr"
)

// fakeService serves a compression endpoint at /compress and the result at
// /files/out.png.
func fakeService(t *testing.T, compress http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/compress", compress)
	mux.HandleFunc("/files/out.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("small"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteBackend_Compress(t *testing.T) {
	var gotAuth, gotName, gotBody string
	var srv *httptest.Server
	srv = fakeService(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		_, _ = w.Write([]byte(`{"data":{"output":{"url":"` + srv.URL + `/files/out.png"}}}`))
	})

	var steps []int
	b := NewRemoteBackend(srv.URL+"/compress", srv.Client())
	out, err := b.Compress(context.Background(),
		Source{Name: "photo.png", Data: []byte("original-bytes"), Credential: "k3y"},
		func(p int) { steps = append(steps, p) })
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}

	if gotAuth != "Bearer k3y" {
		t.Errorf("Authorization = %q, want Bearer k3y", gotAuth)
	}
	if gotName != "photo.png" || gotBody != "original-bytes" {
		t.Errorf("uploaded %q with %q", gotName, gotBody)
	}
	if string(out.Data) != "small" || out.ContentType != "image/png" {
		t.Errorf("Output = %q, %q", out.Data, out.ContentType)
	}
	if out.OriginalSize != int64(len("original-bytes")) {
		t.Errorf("OriginalSize = %d", out.OriginalSize)
	}
	if len(steps) != 3 || steps[0] != 10 || steps[1] != 50 || steps[2] != 80 {
		t.Errorf("progress = %v, want [10 50 80]", steps)
	}
}

func TestRemoteBackend_CompressedImageURLShape(t *testing.T) {
	var srv *httptest.Server
	srv = fakeService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"compressedImageUrl":"` + srv.URL + `/files/out.png","width":4,"height":3,"contentType":"image/png","outputId":"o1"}}`))
	})

	out, err := NewRemoteBackend(srv.URL+"/compress", srv.Client()).Compress(context.Background(),
		Source{Name: "a.png", Data: []byte("x"), Credential: "k"}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if out.Width != 4 || out.Height != 3 {
		t.Errorf("dimensions = %dx%d, want 4x3", out.Width, out.Height)
	}
}

func TestRemoteBackend_Non2xx(t *testing.T) {
	srv := fakeService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("quota exceeded"))
	})

	_, err := NewRemoteBackend(srv.URL+"/compress", srv.Client()).Compress(context.Background(),
		Source{Name: "a.png", Data: []byte("x"), Credential: "k"}, nil)
	if !errors.Is(err, apperr.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
	if apperr.StatusCode(err) != http.StatusPaymentRequired {
		t.Errorf("StatusCode = %d", apperr.StatusCode(err))
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error %q lacks response body", err)
	}
}

func TestRemoteBackend_MissingURL(t *testing.T) {
	srv := fakeService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"output":{}}}`))
	})

	_, err := NewRemoteBackend(srv.URL+"/compress", srv.Client()).Compress(context.Background(),
		Source{Name: "a.png", Data: []byte("x"), Credential: "k"}, nil)
	if !errors.Is(err, apperr.ErrProtocol) {
		t.Fatalf("error = %v, want ErrProtocol", err)
	}
}

func TestRemoteBackend_DownloadFailure(t *testing.T) {
	var srv *httptest.Server
	srv = fakeService(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"output":{"url":"` + srv.URL + `/files/missing.png"}}}`))
	})

	_, err := NewRemoteBackend(srv.URL+"/compress", srv.Client()).Compress(context.Background(),
		Source{Name: "a.png", Data: []byte("x"), Credential: "k"}, nil)
	if !errors.Is(err, apperr.ErrBackend) || apperr.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("error = %v, want 404 ErrBackend", err)
	}
}

func TestRemoteBackend_RequiresCredential(t *testing.T) {
	called := false
	srv := fakeService(t, func(w http.ResponseWriter, _ *http.Request) { called = true })

	_, err := NewRemoteBackend(srv.URL+"/compress", srv.Client()).Compress(context.Background(),
		Source{Name: "a.png", Data: []byte("x")}, nil)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if called {
		t.Error("service was called without a credential")
	}
}

func TestAuthorizeKeepsExplicitScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	authorize(req, "Token abc")
	if got := req.Header.Get("Authorization"); got != "Token abc" {
		t.Errorf("Authorization = %q", got)
	}
}
