package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/pharos-bot/internal/events"
)

// ErrJournalClosed is returned by Handle after Close.
var ErrJournalClosed = errors.New("journal closed")

var journalHeader = []string{"timestamp", "address", "step", "iteration", "status", "tx_hash", "detail", "error"}

// Journal appends every completed step to a CSV file as it happens. It is
// an events.Handler and is safe for concurrent use.
type Journal struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	ticker *time.Ticker
	done   chan struct{}
	closed bool
	logger *zap.Logger
	path   string

	records uint64
	flushes uint64
}

// OpenJournal opens path in append mode, writing the header only when the
// file is new, and flushes buffered rows every flushInterval.
func OpenJournal(path string, flushInterval time.Duration, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	j := &Journal{
		writer: csv.NewWriter(file),
		file:   file,
		done:   make(chan struct{}),
		logger: logger.Named("journal"),
		path:   path,
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(journalHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		j.writer.Flush()
	}

	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	j.ticker = time.NewTicker(flushInterval)
	go j.periodicFlush()

	return j, nil
}

// Handle records StepCompleted events and ignores the rest.
func (j *Journal) Handle(_ context.Context, event events.Event) error {
	e, ok := event.(events.StepCompletedEvent)
	if !ok {
		return nil
	}

	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	record := []string{
		e.Timestamp().Format(time.RFC3339),
		e.Address,
		e.Step,
		strconv.Itoa(e.Iteration),
		e.Status,
		e.TxHash,
		e.Detail,
		errText,
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if err := j.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	j.records++
	return nil
}

// Flush forces buffered rows to disk.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	j.flushes++
	return nil
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Error("Periodic journal flush failed", zap.String("file", j.path), zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close flushes and closes the file. Further calls are no-ops.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	close(j.done)
	j.ticker.Stop()

	flushErr := j.flushLocked()
	if err := j.file.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("failed to close journal: %w", err))
	}

	j.logger.Debug("Journal closed",
		zap.String("file", j.path),
		zap.Uint64("records", j.records),
		zap.Uint64("flushes", j.flushes))
	return flushErr
}

// Records returns the number of rows written since open.
func (j *Journal) Records() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}
