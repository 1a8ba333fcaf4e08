package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"image-shrink-go/internal/logger"
	"image-shrink-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// BatchRequest asks for a list of files or directories to be compressed.
type BatchRequest struct {
	Paths       []string
	Destination string // output directory; empty means the job directory
	Credential  string
	SessionRoot string
}

// ItemError records a batch item that failed while failures are isolated.
type ItemError struct {
	SourcePath string `json:"source_path" yaml:"source_path"`
	Error      string `json:"error" yaml:"error"`
}

// BatchReport is the combined outcome of a batch.
type BatchReport struct {
	Results         []Result    `json:"results" yaml:"results"`
	OutputPaths     []string    `json:"addresses" yaml:"addresses"`
	Skipped         []string    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Failed          []ItemError `json:"failed,omitempty" yaml:"failed,omitempty"`
	TotalOriginal   int64       `json:"total_original_size" yaml:"total_original_size"`
	TotalCompressed int64       `json:"total_compressed_size" yaml:"total_compressed_size"`
	TotalSaved      int64       `json:"total_saved" yaml:"total_saved"`
	Markdown        string      `json:"-" yaml:"-"`
}

// add appends a finished item and updates the running totals.
func (r *BatchReport) add(res Result) {
	r.Results = append(r.Results, res)
	r.OutputPaths = append(r.OutputPaths, res.OutputPath)
	r.TotalOriginal += res.OriginalSize
	r.TotalCompressed += res.CompressedSize
	r.TotalSaved = r.TotalOriginal - r.TotalCompressed
}

// Render builds the markdown table for the report.
func (r *BatchReport) Render() string {
	entries := make([]statistics.Entry, 0, len(r.Results)+len(r.Failed))
	for i := range r.Results {
		entries = append(entries, r.Results[i].entry())
	}
	for _, f := range r.Failed {
		var size int64
		if info, err := os.Stat(f.SourcePath); err == nil {
			size = info.Size()
		}
		entries = append(entries, statistics.Entry{
			Name:         filepath.Base(f.SourcePath),
			OriginalSize: size,
			Failed:       f.Error,
		})
	}
	return statistics.BatchTable(entries, r.TotalSaved)
}

// CompressBatch compresses every image in req.Paths into one directory.
// Files found in a directory keep their path relative to it; names that
// would still collide are numbered (a.jpg, a-1.jpg).
// Items whose extension is not compressible are skipped with a warning.
// By default the first failure aborts the batch and is returned; with
// ContinueOnError the failure is recorded in Failed and the batch goes on.
func (p *Pipeline) CompressBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	outDir := req.Destination
	if outDir == "" {
		outDir = p.jobDir(req.SessionRoot)
	}

	cred, err := p.credential(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	items := collectFiles(req.Paths, p.opts.CompressibleExtensions, p.log)
	allowed := NewExtensionSet(p.opts.CompressibleExtensions)
	names := uniqueNames{}
	report := &BatchReport{}

	for i, it := range items {
		item := it.Path
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled: %w", err)
		}

		log := logger.WithFileOperation(p.log, item, "batch")
		p.stats.IncrementFilesFound()

		if !allowed.Match(item) {
			log.Warn("Not an image file, skipped")
			p.stats.IncrementFilesSkipped()
			report.Skipped = append(report.Skipped, item)
			continue
		}
		if p.isMarked(item) {
			log.Info("Already compressed, skipped")
			p.stats.IncrementFilesSkipped()
			report.Skipped = append(report.Skipped, item)
			continue
		}

		res, err := p.compressItem(ctx, item, names.claim(it.Rel), outDir, cred)
		if err != nil {
			p.stats.AddError(item, "batch", err.Error())
			if !p.opts.ContinueOnError {
				log.Errorf("Batch aborted: %v", err)
				return nil, fmt.Errorf("batch item %s: %w", item, err)
			}
			log.Warnf("Item failed, continuing: %v", err)
			report.Failed = append(report.Failed, ItemError{SourcePath: item, Error: err.Error()})
			continue
		}
		report.add(*res)

		p.progress((i + 1) * 100 / len(items))
	}

	p.stats.Finalize()
	report.Markdown = report.Render()
	p.host.Preview(report.Markdown)

	p.log.WithFields(logrus.Fields{
		"compressed": len(report.Results),
		"skipped":    len(report.Skipped),
		"failed":     len(report.Failed),
		"saved":      statistics.FormatBytes(report.TotalSaved),
	}).Info("Batch completed")

	return report, nil
}

// compressItem writes item to rel under outDir.
func (p *Pipeline) compressItem(ctx context.Context, item, rel, outDir, credential string) (*Result, error) {
	r := p.resolver()
	if _, err := r.Resolve(item, ""); err != nil {
		// validates the source; the derived sibling name is not used
		return nil, err
	}
	outputPath, err := r.ResolveInto(rel, outDir)
	if err != nil {
		return nil, err
	}
	// per-item backend progress would jump back and forth across the batch
	return p.compressTo(ctx, item, outputPath, credential, nil)
}

func (p *Pipeline) isMarked(path string) bool {
	if p.inspector == nil || p.opts.SkipMarker == "" {
		return false
	}
	info, err := p.inspector.Inspect(path)
	if err != nil {
		return false
	}
	return info.IsMarked(p.opts.SkipMarker)
}
