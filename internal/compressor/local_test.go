package compressor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"image-shrink-go/internal/apperr"
	"image-shrink-go/internal/logger"
)

func testImage(w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(rng.Intn(16)), A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(64, 48), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, level png.CompressionLevel) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, testImage(64, 48)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLocalBackend_JPEG(t *testing.T) {
	original := encodeJPEG(t, 100)
	b := NewLocalBackend(LocalOptions{Quality: 40}, nil, logger.Discard())

	out, err := b.Compress(context.Background(), Source{Name: "a.jpg", Data: original}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if len(out.Data) >= len(original) {
		t.Errorf("compressed %d bytes, original %d", len(out.Data), len(original))
	}
	if out.ContentType != "image/jpeg" || out.Width != 64 || out.Height != 48 {
		t.Errorf("Output = %q %dx%d", out.ContentType, out.Width, out.Height)
	}
	if out.OriginalSize != int64(len(original)) {
		t.Errorf("OriginalSize = %d", out.OriginalSize)
	}
}

func TestLocalBackend_PNG(t *testing.T) {
	original := encodePNG(t, png.NoCompression)
	out, err := NewLocalBackend(LocalOptions{}, nil, logger.Discard()).Compress(context.Background(),
		Source{Name: "a.png", Data: original}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if out.ContentType != "image/png" || len(out.Data) >= len(original) {
		t.Errorf("Output = %q, %d bytes (original %d)", out.ContentType, len(out.Data), len(original))
	}
}

func TestLocalBackend_KeepsOriginalWhenNotSmaller(t *testing.T) {
	original := encodeJPEG(t, 10)
	b := NewLocalBackend(LocalOptions{Quality: 100, Threshold: 0.0001}, nil, logger.Discard())

	out, err := b.Compress(context.Background(), Source{Name: "a.jpg", Data: original}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if !bytes.Equal(out.Data, original) {
		t.Error("original bytes were not kept")
	}
}

func TestLocalBackend_NotAnImage(t *testing.T) {
	_, err := NewLocalBackend(LocalOptions{}, nil, logger.Discard()).Compress(context.Background(),
		Source{Name: "a.txt", Data: []byte("plain text")}, nil)
	if !errors.Is(err, apperr.ErrBackend) {
		t.Fatalf("error = %v, want ErrBackend", err)
	}
}

func encodeGIF(t *testing.T, frames int) []byte {
	t.Helper()
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, 64, 64), palette.Plan9)
		for y := 0; y < 64; y++ {
			for x := 0; x < 64; x++ {
				frame.SetColorIndex(x, y, uint8((x+y+i*40)%256))
			}
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLocalBackend_AnimatedGIFKeepsAllFrames(t *testing.T) {
	original := encodeGIF(t, 3)

	out, err := NewLocalBackend(LocalOptions{}, nil, logger.Discard()).Compress(context.Background(),
		Source{Name: "spin.gif", Data: original}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	decoded, err := gif.DecodeAll(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not a GIF: %v", err)
	}
	if len(decoded.Image) != 3 {
		t.Errorf("output has %d frames, want 3", len(decoded.Image))
	}
	if out.ContentType != "image/gif" || out.Width != 64 || out.Height != 64 {
		t.Errorf("Output = %q %dx%d", out.ContentType, out.Width, out.Height)
	}
}

func TestLocalBackend_SingleFrameGIF(t *testing.T) {
	original := encodeGIF(t, 1)

	out, err := NewLocalBackend(LocalOptions{}, nil, logger.Discard()).Compress(context.Background(),
		Source{Name: "still.gif", Data: original}, nil)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if _, err := gif.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Errorf("output is not a GIF: %v", err)
	}
}
