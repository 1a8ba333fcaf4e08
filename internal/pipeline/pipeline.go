package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"image-shrink-go/internal/apperr"
	"image-shrink-go/internal/compressor"
	"image-shrink-go/internal/config"
	"image-shrink-go/internal/host"
	"image-shrink-go/internal/logger"
	"image-shrink-go/internal/metadata"
	"image-shrink-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// Options tune the pipeline.
type Options struct {
	Suffix                 string
	Prefix                 string
	ImageExtensions        []string // allow-list of FilterImages
	CompressibleExtensions []string // items a batch sends to the backend
	ContinueOnError        bool     // isolate per-item failures in a batch
	SkipMarker             string   // skip batch items whose EXIF Software contains this
}

// OptionsFromConfig maps the configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Suffix:                 cfg.Output.Suffix,
		Prefix:                 cfg.Output.Prefix,
		ImageExtensions:        cfg.ImageExtensions,
		CompressibleExtensions: cfg.CompressibleExtensions,
		ContinueOnError:        cfg.Batch.ContinueOnError,
	}
	if cfg.Batch.SkipMarked {
		opts.SkipMarker = cfg.Marker.Software
	}
	return opts
}

// Request asks for one local file to be compressed. Its output always has a
// natural directory, so unlike URLRequest it takes no session root.
type Request struct {
	SourcePath  string
	Destination string // file path, directory, or empty
	Credential  string // empty means ask the host
}

// URLRequest asks for a remote image to be compressed.
type URLRequest struct {
	URL         string
	Destination string
	Credential  string
	SessionRoot string
}

// Result describes one compressed image.
type Result struct {
	SourcePath     string  `json:"source_path" yaml:"source_path"`
	OutputPath     string  `json:"output_path" yaml:"output_path"`
	OriginalSize   int64   `json:"original_size" yaml:"original_size"`
	CompressedSize int64   `json:"compressed_size" yaml:"compressed_size"`
	RatioPercent   float64 `json:"compression_ratio" yaml:"compression_ratio"`
	CompressedURL  string  `json:"compressed_url,omitempty" yaml:"compressed_url,omitempty"`
	ContentType    string  `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Width          int     `json:"width,omitempty" yaml:"width,omitempty"`
	Height         int     `json:"height,omitempty" yaml:"height,omitempty"`
	Backend        string  `json:"backend" yaml:"backend"`
}

func (r *Result) entry() statistics.Entry {
	return statistics.Entry{
		Name:           filepath.Base(r.SourcePath),
		OriginalSize:   r.OriginalSize,
		CompressedSize: r.CompressedSize,
	}
}

// Pipeline runs compression tasks against one backend for one host.
type Pipeline struct {
	backend   compressor.Backend
	host      host.Host
	log       *logrus.Logger
	inspector metadata.Inspector
	stats     *statistics.Statistics
	opts      Options
}

// New returns a Pipeline. inspector may be nil, in which case marker
// skipping is disabled.
func New(backend compressor.Backend, h host.Host, log *logrus.Logger, inspector metadata.Inspector, opts Options) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{
		backend:   backend,
		host:      h,
		log:       log,
		inspector: inspector,
		stats:     statistics.NewStatistics(),
		opts:      opts,
	}
}

// Statistics returns the counters accumulated by this pipeline.
func (p *Pipeline) Statistics() *statistics.Statistics {
	return p.stats
}

// FilterImages narrows paths to the configured image extensions.
func (p *Pipeline) FilterImages(paths []string) []string {
	return FilterImages(paths, p.opts.ImageExtensions, p.log)
}

func (p *Pipeline) resolver() PathResolver {
	return PathResolver{Suffix: p.opts.Suffix, Prefix: p.opts.Prefix}
}

func (p *Pipeline) jobDir(sessionRoot string) string {
	if sessionRoot != "" {
		return filepath.Join(sessionRoot, p.host.JobID())
	}
	return host.JobDir(p.host)
}

func (p *Pipeline) progress(percent int) {
	host.ReportProgress(p.host, percent)
}

func (p *Pipeline) credential(ctx context.Context, given string) (string, error) {
	if given != "" {
		return given, nil
	}
	cred, err := host.Credential(ctx, p.host)
	if err != nil {
		return "", apperr.InvalidInputf("credential", "host credential unavailable: %v", err)
	}
	return cred, nil
}

// CompressFile compresses one local file and previews a single-file report.
func (p *Pipeline) CompressFile(ctx context.Context, req Request) (*Result, error) {
	log := logger.WithFileOperation(p.log, req.SourcePath, "compress")

	outputPath, err := p.resolver().Resolve(req.SourcePath, req.Destination)
	if err != nil {
		return nil, err
	}

	cred, err := p.credential(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	p.stats.IncrementFilesFound()
	res, err := p.compressTo(ctx, req.SourcePath, outputPath, cred, p.progress)
	if err != nil {
		p.stats.AddError(req.SourcePath, "compress", err.Error())
		log.Errorf("Compression failed: %v", err)
		return nil, fmt.Errorf("compress %s: %w", req.SourcePath, err)
	}
	p.stats.Finalize()

	log.WithFields(logrus.Fields{
		"output":          res.OutputPath,
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
	}).Infof("Compressed image (%s)", statistics.FormatRatio(res.RatioPercent))

	p.host.Preview(statistics.SingleReport(res.entry(), res.OutputPath))
	return res, nil
}

// compressTo reads sourcePath, runs the backend and writes outputPath.
// Nothing is written when the backend fails.
func (p *Pipeline) compressTo(ctx context.Context, sourcePath, outputPath, credential string, progress compressor.ProgressFunc) (*Result, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, apperr.IO("read source", err)
	}
	p.stats.IncrementFilesProcessed()

	out, err := p.backend.Compress(ctx, compressor.Source{
		Name:       filepath.Base(sourcePath),
		Data:       data,
		Credential: credential,
	}, progress)
	if err != nil {
		return nil, err
	}

	compressedSize, err := writeOutput(outputPath, out.Data)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress(100)
	}

	originalSize := int64(len(data))
	p.stats.RecordCompression(originalSize, compressedSize)

	return &Result{
		SourcePath:     sourcePath,
		OutputPath:     outputPath,
		OriginalSize:   originalSize,
		CompressedSize: compressedSize,
		RatioPercent:   statistics.CompressionRatio(originalSize, compressedSize),
		CompressedURL:  out.URL,
		ContentType:    out.ContentType,
		Width:          out.Width,
		Height:         out.Height,
		Backend:        p.backend.Name(),
	}, nil
}

// CompressURL compresses a remote image and writes it locally.
func (p *Pipeline) CompressURL(ctx context.Context, req URLRequest) (*Result, error) {
	const stage = "validate url"
	log := logger.WithFileOperation(p.log, req.URL, "compress_url")

	imageURL := strings.TrimSpace(req.URL)
	if imageURL == "" {
		return nil, apperr.InvalidInputf(stage, "image URL cannot be empty")
	}
	parsed, err := url.Parse(imageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperr.InvalidInputf(stage, "not an http(s) URL: %q", imageURL)
	}

	cred, err := p.credential(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	p.stats.IncrementFilesFound()
	p.stats.IncrementFilesProcessed()

	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		name = ""
	}

	out, err := p.backend.Compress(ctx, compressor.Source{
		Name:       name,
		URL:        imageURL,
		Credential: cred,
	}, p.progress)
	if err != nil {
		p.stats.AddError(imageURL, "compress_url", err.Error())
		log.Errorf("Compression failed: %v", err)
		return nil, fmt.Errorf("compress %s: %w", imageURL, err)
	}

	outputPath, err := p.resolver().ResolveNamed(urlFileName(name, out.ContentType), req.Destination, p.jobDir(req.SessionRoot))
	if err != nil {
		return nil, err
	}
	compressedSize, err := writeOutput(outputPath, out.Data)
	if err != nil {
		return nil, err
	}
	p.progress(100)

	p.stats.RecordCompression(out.OriginalSize, compressedSize)
	p.stats.Finalize()

	res := &Result{
		SourcePath:     imageURL,
		OutputPath:     outputPath,
		OriginalSize:   out.OriginalSize,
		CompressedSize: compressedSize,
		RatioPercent:   statistics.CompressionRatio(out.OriginalSize, compressedSize),
		CompressedURL:  out.URL,
		ContentType:    out.ContentType,
		Width:          out.Width,
		Height:         out.Height,
		Backend:        p.backend.Name(),
	}
	log.WithField("output", outputPath).Info("Compressed remote image")

	report := statistics.SingleReport(res.entry(), res.OutputPath)
	if res.CompressedURL != "" {
		report += fmt.Sprintf("\n\n**Compressed Image URL**: %s", res.CompressedURL)
	}
	p.host.Preview(report)
	return res, nil
}

// urlFileName makes sure a name taken from a URL has an extension, falling
// back to one derived from the content type.
func urlFileName(name, contentType string) string {
	if name == "" {
		name = "image"
	}
	if filepath.Ext(name) != "" {
		return name
	}
	switch {
	case strings.Contains(contentType, "png"):
		return name + ".png"
	case strings.Contains(contentType, "gif"):
		return name + ".gif"
	case strings.Contains(contentType, "webp"):
		return name + ".webp"
	default:
		return name + ".jpg"
	}
}

// writeOutput writes data next to path and renames it into place, returning
// the size of the written file.
func writeOutput(path string, data []byte) (int64, error) {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return 0, apperr.IO("write output", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, apperr.IO("write output", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, apperr.IO("stat output", err)
	}
	return info.Size(), nil
}
