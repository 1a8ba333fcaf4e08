package metadata

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// ImageInfo describes an image file on disk.
type ImageInfo struct {
	Path     string `json:"path" yaml:"path"`
	Size     int64  `json:"size" yaml:"size"`
	Format   string `json:"format" yaml:"format"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	Software string `json:"software,omitempty" yaml:"software,omitempty"` // EXIF Software tag
}

// IsMarked reports whether the Software tag carries marker.
func (i *ImageInfo) IsMarked(marker string) bool {
	return marker != "" && strings.Contains(i.Software, marker)
}

// Inspector reads image metadata.
type Inspector interface {
	Inspect(filePath string) (*ImageInfo, error)
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64   `json:"hits" yaml:"hits"`
	Misses       int64   `json:"misses" yaml:"misses"`
	HitRate      float64 `json:"hit_rate" yaml:"hit_rate"`
	TotalQueries int64   `json:"total_queries" yaml:"total_queries"`
}

// CacheReporter is implemented by inspectors that cache their results.
type CacheReporter interface {
	GetCacheStats() CacheStats
}

// EXIFInspector reads dimensions with image.DecodeConfig and the Software
// tag with goexif, caching results by path, size and modification time.
type EXIFInspector struct {
	logger *logrus.Logger
	cache  *sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewEXIFInspector returns a new EXIFInspector.
func NewEXIFInspector(logger *logrus.Logger) *EXIFInspector {
	return &EXIFInspector{
		logger: logger,
		cache:  &sync.Map{},
	}
}

// Inspect returns metadata for filePath. Files that cannot be decoded as
// images still return their size; Format is left empty.
func (e *EXIFInspector) Inspect(filePath string) (*ImageInfo, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	key := fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
	if cached, ok := e.cache.Load(key); ok {
		e.record(true)
		info := cached.(ImageInfo)
		return &info, nil
	}
	e.record(false)

	info := ImageInfo{Path: filePath, Size: fileInfo.Size()}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if cfg, format, err := image.DecodeConfig(file); err == nil {
		info.Format = format
		info.Width = cfg.Width
		info.Height = cfg.Height
	} else {
		e.logger.Debugf("Could not decode image config for %s: %v", filePath, err)
	}

	if info.Format == "jpeg" {
		if _, err := file.Seek(0, 0); err == nil {
			info.Software = readSoftware(file)
		}
	}

	e.cache.Store(key, info)
	return &info, nil
}

// GetCacheStats returns cache statistics for this inspector.
func (e *EXIFInspector) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

func (e *EXIFInspector) record(hit bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if hit {
		e.stats.Hits++
	} else {
		e.stats.Misses++
	}
	e.stats.TotalQueries++
}

func readSoftware(f *os.File) string {
	x, err := exif.Decode(f)
	if err != nil {
		return ""
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return val
}
