package compressor

import (
	"testing"

	"image-shrink-go/internal/config"
	"image-shrink-go/internal/logger"
)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		backend string
		baseURL string
		want    string
		wantErr bool
	}{
		{config.BackendRemote, "https://api.test", "remote", false},
		{config.BackendURL, "https://api.test", "url", false},
		{config.BackendTinify, "https://api.tinify.test", "tinify", false},
		{config.BackendLocal, "", "local", false},
		{config.BackendRemote, "", "", true},
		{"magic", "https://api.test", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend+"/"+tt.baseURL, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Backend.Type = tt.backend
			cfg.Backend.BaseURL = tt.baseURL

			b, err := NewBackend(cfg, logger.Discard())
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend() = %v, want error", b.Name())
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}
