package host

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Host is the workflow environment a task runs in.
type Host interface {
	// SessionDir is the scratch root shared by the jobs of one session.
	SessionDir() string
	// JobID identifies the current job inside the session.
	JobID() string
	// Preview renders a markdown report for humans.
	Preview(markdown string)
}

// ProgressReporter is implemented by hosts that can display progress (0-100).
type ProgressReporter interface {
	ReportProgress(percent int)
}

// CredentialProvider is implemented by hosts that manage API credentials.
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

// JobDir returns the job-scoped working directory of h.
func JobDir(h Host) string {
	return filepath.Join(h.SessionDir(), h.JobID())
}

// ReportProgress forwards percent to h when it supports progress.
func ReportProgress(h Host, percent int) {
	if p, ok := h.(ProgressReporter); ok {
		p.ReportProgress(percent)
	}
}

// Credential asks h for a managed credential. It returns "" without error
// when h does not manage credentials.
func Credential(ctx context.Context, h Host) (string, error) {
	if c, ok := h.(CredentialProvider); ok {
		return c.Credential(ctx)
	}
	return "", nil
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// ConsoleHost runs tasks from the command line: previews go to out, progress
// goes to the logger and the credential comes from configuration.
type ConsoleHost struct {
	sessionDir string
	jobID      string
	out        io.Writer
	log        *logrus.Logger
	credential string

	mu      sync.Mutex
	preview []string
}

// NewConsoleHost returns a ConsoleHost with a new job id.
func NewConsoleHost(sessionDir string, out io.Writer, log *logrus.Logger, credential string) *ConsoleHost {
	return &ConsoleHost{
		sessionDir: sessionDir,
		jobID:      NewJobID(),
		out:        out,
		log:        log,
		credential: credential,
	}
}

func (h *ConsoleHost) SessionDir() string { return h.sessionDir }

func (h *ConsoleHost) JobID() string { return h.jobID }

func (h *ConsoleHost) Preview(markdown string) {
	h.mu.Lock()
	h.preview = append(h.preview, markdown)
	h.mu.Unlock()

	if h.out != nil {
		fmt.Fprintln(h.out, markdown)
	}
}

func (h *ConsoleHost) ReportProgress(percent int) {
	h.log.WithField("job", h.jobID).Debugf("Progress: %d%%", percent)
}

func (h *ConsoleHost) Credential(ctx context.Context) (string, error) {
	return h.credential, nil
}

// Previews returns every markdown document rendered so far.
func (h *ConsoleHost) Previews() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.preview...)
}
