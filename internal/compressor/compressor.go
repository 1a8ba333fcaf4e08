package compressor

import (
	"context"
)

// Source is the image handed to a backend. Either Data or URL is set; Name
// is the file name used for uploads and content-type guesses.
type Source struct {
	Name       string
	Data       []byte
	URL        string
	Credential string
}

// Output is what a backend produced.
type Output struct {
	Data        []byte
	ContentType string
	URL         string // where the backend published the result, if anywhere
	Width       int
	Height      int

	// OriginalSize is the size of the input as seen by the backend, or 0
	// when the backend could not tell.
	OriginalSize int64
}

// ProgressFunc receives coarse progress percentages. It may be nil.
type ProgressFunc func(percent int)

// Backend compresses a single image.
type Backend interface {
	// Compress returns the compressed image. Errors are *apperr.Error values
	// of kind ErrBackend, ErrProtocol or ErrInvalidInput.
	Compress(ctx context.Context, src Source, progress ProgressFunc) (*Output, error)

	// Name returns the backend type name.
	Name() string
}

func (p ProgressFunc) report(percent int) {
	if p != nil {
		p(percent)
	}
}
