package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"net/http"
	"os"
	"path/filepath"

	"image-shrink-go/internal/apperr"

	"github.com/barasher/go-exiftool"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// LocalOptions configures in-process compression.
type LocalOptions struct {
	Quality int // JPEG quality, 1-100

	// Threshold keeps the original bytes when the re-encoded image is not
	// smaller than original*Threshold.
	Threshold float64

	// MarkSoftware, when set, is written into the EXIF Software tag of JPEG
	// output with exiftool.
	MarkSoftware string
}

// LocalBackend re-encodes images with the imaging library.
type LocalBackend struct {
	opts   LocalOptions
	client *http.Client
	log    *logrus.Logger
}

// NewLocalBackend returns a LocalBackend. client is used only for URL sources.
func NewLocalBackend(opts LocalOptions, client *http.Client, log *logrus.Logger) *LocalBackend {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 1.0
	}
	return &LocalBackend{opts: opts, client: client, log: log}
}

// Name returns "local".
func (b *LocalBackend) Name() string { return "local" }

var formatContentTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.BMP:  "image/bmp",
	imaging.TIFF: "image/tiff",
}

// Compress decodes src and encodes it again in the same format.
func (b *LocalBackend) Compress(ctx context.Context, src Source, progress ProgressFunc) (*Output, error) {
	const stage = "local encode"

	data, err := sourceBytes(ctx, b.client, src)
	if err != nil {
		return nil, err
	}
	progress.report(10)

	_, formatName, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.BackendWrap(stage, fmt.Errorf("unsupported image %q: %w", src.Name, err))
	}
	format, err := imaging.FormatFromExtension(formatName)
	if err != nil {
		return nil, apperr.BackendWrap(stage, fmt.Errorf("unsupported format %q: %w", formatName, err))
	}

	// imaging keeps only the first frame, which would turn an animation
	// into a still image
	if format == imaging.GIF {
		frames, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, apperr.BackendWrap(stage, fmt.Errorf("decode %q: %w", src.Name, err))
		}
		if len(frames.Image) > 1 {
			b.log.WithField("file", src.Name).Infof("Animated GIF with %d frames, keeping original", len(frames.Image))
			progress.report(80)
			return &Output{
				Data:         data,
				ContentType:  formatContentTypes[format],
				Width:        frames.Config.Width,
				Height:       frames.Config.Height,
				OriginalSize: int64(len(data)),
			}, nil
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.BackendWrap(stage, fmt.Errorf("decode %q: %w", src.Name, err))
	}
	progress.report(50)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format,
		imaging.JPEGQuality(b.opts.Quality),
		imaging.PNGCompressionLevel(png.BestCompression),
	); err != nil {
		return nil, apperr.BackendWrap(stage, fmt.Errorf("encode %q: %w", src.Name, err))
	}

	out := buf.Bytes()
	if float64(len(out)) >= float64(len(data))*b.opts.Threshold {
		b.log.WithField("file", src.Name).Debug("Re-encoded image not smaller than original, keeping original")
		out = data
	} else if format == imaging.JPEG && b.opts.MarkSoftware != "" {
		if marked, err := b.mark(out); err != nil {
			b.log.WithField("file", src.Name).Warnf("EXIF marker not written: %v", err)
		} else {
			out = marked
		}
	}
	progress.report(80)

	bounds := img.Bounds()
	return &Output{
		Data:         out,
		ContentType:  formatContentTypes[format],
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		OriginalSize: int64(len(data)),
	}, nil
}

// mark writes the Software tag into a JPEG through a scratch file, since
// exiftool edits files in place.
func (b *LocalBackend) mark(jpeg []byte) ([]byte, error) {
	tmp, err := os.CreateTemp("", "image-shrink-*.jpg")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(jpeg); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(tmpPath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", filepath.Base(tmpPath))
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}
	files[0].SetString("Software", b.opts.MarkSoftware)
	et.WriteMetadata(files)
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	return os.ReadFile(tmpPath)
}
