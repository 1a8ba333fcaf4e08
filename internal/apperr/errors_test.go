package apperr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid input", InvalidInputf("validate", "source %q not found", "a.jpg"), ErrInvalidInput},
		{"backend", Backend("upload", 500, "boom"), ErrBackend},
		{"backend wrap", BackendWrap("upload", errors.New("dial tcp")), ErrBackend},
		{"protocol", Protocolf("upload", "missing url"), ErrProtocol},
		{"io", IO("write", os.ErrPermission), ErrIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("compress: %w", tt.err)
			if !errors.Is(wrapped, tt.kind) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.kind)
			}
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("write", os.ErrPermission)
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("errors.Is(err, os.ErrPermission) = false")
	}
}

func TestBackendMessageCarriesStatusAndBody(t *testing.T) {
	err := Backend("upload", 403, `{"message":"quota exceeded"}`)
	msg := err.Error()
	for _, want := range []string{"upload", "backend error", "status 403", "quota exceeded"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if got := StatusCode(fmt.Errorf("wrapped: %w", err)); got != 403 {
		t.Errorf("StatusCode() = %d, want 403", got)
	}
}

func TestStatusCodeOfForeignError(t *testing.T) {
	if got := StatusCode(errors.New("plain")); got != 0 {
		t.Errorf("StatusCode() = %d, want 0", got)
	}
}
