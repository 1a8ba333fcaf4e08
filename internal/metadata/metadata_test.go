package metadata

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"image-shrink-go/internal/logger"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestInspectPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	writePNG(t, path, 12, 7)

	in := NewEXIFInspector(logger.Discard())
	info, err := in.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != "png" || info.Width != 12 || info.Height != 7 {
		t.Errorf("Inspect() = %+v", info)
	}
	if info.IsMarked("ImageShrink") {
		t.Error("PNG without EXIF reported as marked")
	}

	if _, err := in.Inspect(path); err != nil {
		t.Fatal(err)
	}
	stats := in.GetCacheStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Errorf("GetCacheStats() = %+v", stats)
	}
}

func TestInspectNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	info, err := NewEXIFInspector(logger.Discard()).Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.Format != "" || info.Size != 5 {
		t.Errorf("Inspect() = %+v", info)
	}
}

func TestInspectMissing(t *testing.T) {
	if _, err := NewEXIFInspector(logger.Discard()).Inspect("/does/not/exist.jpg"); err == nil {
		t.Fatal("Inspect() should fail for a missing file")
	}
}

func TestIsMarked(t *testing.T) {
	info := &ImageInfo{Software: "ImageShrink Compressed"}
	if !info.IsMarked("ImageShrink") {
		t.Error("IsMarked() = false")
	}
	if info.IsMarked("") {
		t.Error("empty marker must never match")
	}
}
