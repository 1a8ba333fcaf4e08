package compressor

import (
	"fmt"
	"net/http"

	"image-shrink-go/internal/config"

	"github.com/sirupsen/logrus"
)

// NewBackend creates the backend selected by cfg.Backend.Type.
func NewBackend(cfg *config.Config, log *logrus.Logger) (Backend, error) {
	client := &http.Client{Timeout: cfg.Backend.Timeout}

	switch cfg.Backend.Type {
	case config.BackendRemote, config.BackendURL, config.BackendTinify:
		if cfg.Backend.BaseURL == "" {
			return nil, fmt.Errorf("backend.base_url is required for backend %q", cfg.Backend.Type)
		}
	}

	switch cfg.Backend.Type {
	case config.BackendRemote:
		return NewRemoteBackend(cfg.Backend.BaseURL+cfg.Backend.CompressPath, client), nil
	case config.BackendURL:
		return NewURLBackend(cfg.Backend.BaseURL+cfg.Backend.CompressPath, client), nil
	case config.BackendTinify:
		return NewTinifyBackend(cfg.Backend.BaseURL, client), nil
	case config.BackendLocal:
		opts := LocalOptions{
			Quality:   cfg.Backend.Quality,
			Threshold: cfg.Backend.Threshold,
		}
		if cfg.Marker.Enabled {
			opts.MarkSoftware = cfg.Marker.Software
		}
		return NewLocalBackend(opts, client, log), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend.Type)
	}
}
