package web

import (
	"context"

	"image-shrink-go/internal/host"
)

// wsHost runs one job for the web server and pushes its progress and
// previews to every websocket client.
type wsHost struct {
	server     *Server
	sessionDir string
	jobID      string
	credential string
}

func newWSHost(s *Server, sessionDir, credential string) *wsHost {
	return &wsHost{
		server:     s,
		sessionDir: sessionDir,
		jobID:      host.NewJobID(),
		credential: credential,
	}
}

func (h *wsHost) SessionDir() string { return h.sessionDir }

func (h *wsHost) JobID() string { return h.jobID }

func (h *wsHost) Preview(markdown string) {
	h.server.broadcastWSMessage("preview", h.jobID, map[string]interface{}{
		"markdown": markdown,
	})
}

func (h *wsHost) ReportProgress(percent int) {
	h.server.broadcastWSMessage("progress", h.jobID, map[string]interface{}{
		"percent": percent,
	})
}

func (h *wsHost) Credential(ctx context.Context) (string, error) {
	return h.credential, nil
}
