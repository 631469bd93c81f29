package ga

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVReporter appends one GenerationStats row per generation to a CSV
// stream. The header is written with the first row.
type CSVReporter struct {
	mu            sync.Mutex
	w             io.Writer
	closer        io.Closer
	headerWritten bool
	logger        *slog.Logger
}

// NewCSVReporter writes rows to w.
func NewCSVReporter(w io.Writer) *CSVReporter {
	return &CSVReporter{w: w, logger: slog.Default()}
}

// CreateCSVReporter creates (or truncates) the file at path and writes rows
// to it. Close releases the file.
func CreateCSVReporter(path string) (*CSVReporter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating telemetry directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	r := NewCSVReporter(f)
	r.closer = f
	return r, nil
}

// Write appends a row.
func (r *CSVReporter) Write(stats GenerationStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats.EvalSeconds = stats.EvalDuration.Seconds()
	records := []GenerationStats{stats}
	if !r.headerWritten {
		if err := gocsv.Marshal(records, r.w); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		r.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, r.w); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	return nil
}

func (r *CSVReporter) OnGenerationComplete(int, *Genome, float64) {}

func (r *CSVReporter) OnGenerationStats(stats GenerationStats) {
	if err := r.Write(stats); err != nil {
		r.logger.Error("telemetry row dropped", "generation", stats.Generation, "error", err)
	}
}

// Close closes the underlying file when the reporter owns one.
func (r *CSVReporter) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
