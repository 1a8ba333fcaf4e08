package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics accumulates counters across compression runs.
type Statistics struct {
	FilesFound      int64
	FilesProcessed  int64
	FilesCompressed int64
	FilesSkipped    int64
	FilesWithErrors int64

	BytesOriginal   int64
	BytesCompressed int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		Errors:    make([]StatError, 0),
	}
}

// IncrementFilesFound increases the count of found files by 1.
func (s *Statistics) IncrementFilesFound() {
	atomic.AddInt64(&s.FilesFound, 1)
}

// IncrementFilesProcessed increases the count of processed files by 1.
func (s *Statistics) IncrementFilesProcessed() {
	atomic.AddInt64(&s.FilesProcessed, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// RecordCompression adds one finished compression to the totals.
func (s *Statistics) RecordCompression(originalSize, compressedSize int64) {
	atomic.AddInt64(&s.FilesCompressed, 1)
	atomic.AddInt64(&s.BytesOriginal, originalSize)
	atomic.AddInt64(&s.BytesCompressed, compressedSize)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.FilesWithErrors, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// BytesSaved returns original minus compressed bytes across all recorded files.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesOriginal) - atomic.LoadInt64(&s.BytesCompressed)
}

// Finalize stamps the end time and duration.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	original := atomic.LoadInt64(&s.BytesOriginal)
	compressed := atomic.LoadInt64(&s.BytesCompressed)

	return fmt.Sprintf(`Image Shrink Statistics Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Skipped: %d
		Errors: %d

Bytes:
		Original: %s
		Compressed: %s
		Saved: %s
		Ratio: %s

Performance:
		Duration: %v`,
		atomic.LoadInt64(&s.FilesFound),
		atomic.LoadInt64(&s.FilesProcessed),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesSkipped),
		atomic.LoadInt64(&s.FilesWithErrors),
		FormatBytes(original),
		FormatBytes(compressed),
		FormatBytes(original-compressed),
		FormatRatio(CompressionRatio(original, compressed)),
		duration)
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Snapshot is a point-in-time copy of the counters, safe to serialize.
type Snapshot struct {
	FilesFound      int64         `json:"files_found"`
	FilesProcessed  int64         `json:"files_processed"`
	FilesCompressed int64         `json:"files_compressed"`
	FilesSkipped    int64         `json:"files_skipped"`
	FilesWithErrors int64         `json:"files_with_errors"`
	BytesOriginal   int64         `json:"bytes_original"`
	BytesCompressed int64         `json:"bytes_compressed"`
	BytesSaved      int64         `json:"bytes_saved"`
	Duration        time.Duration `json:"duration"`
}

// Snapshot returns the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return Snapshot{
		FilesFound:      atomic.LoadInt64(&s.FilesFound),
		FilesProcessed:  atomic.LoadInt64(&s.FilesProcessed),
		FilesCompressed: atomic.LoadInt64(&s.FilesCompressed),
		FilesSkipped:    atomic.LoadInt64(&s.FilesSkipped),
		FilesWithErrors: atomic.LoadInt64(&s.FilesWithErrors),
		BytesOriginal:   atomic.LoadInt64(&s.BytesOriginal),
		BytesCompressed: atomic.LoadInt64(&s.BytesCompressed),
		BytesSaved:      s.BytesSaved(),
		Duration:        duration,
	}
}
