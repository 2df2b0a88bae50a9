package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joacorob/evmsync/internal/model"
)

var csvHeader = []string{
	"event_source_name", "chain_id", "block_number", "timestamp", "log_index",
	"address", "topic0", "topic1", "topic2", "topic3", "data",
	"transaction_hash", "transaction_index", "tx_from", "tx_to",
}

// csvFile wraps an opened CSV file with its writer.
type csvFile struct {
	file   *os.File
	writer *csv.Writer
}

// CSVSink persists matched events into per-event-source CSV files, one
// file per EventSourceName, with a fixed column layout (spec's Event shape
// flattened for export). Adapted from the teacher's CSVSink, which wrote
// one file per decoded ABI event name against an ad-hoc map; here the
// column set is the store's typed Event, so no per-row header inference is
// needed.
type CSVSink struct {
	outputDir string
	mu        sync.Mutex
	files     map[string]*csvFile
}

// NewCSVSink initialises a sink that writes CSV files under the given
// directory, creating the directory tree if it doesn't already exist.
func NewCSVSink(outputDir string) (*CSVSink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv output directory: %w", err)
	}
	return &CSVSink{
		outputDir: outputDir,
		files:     make(map[string]*csvFile),
	}, nil
}

// Write appends evt as a CSV row, lazily creating the file associated with
// its EventSourceName.
func (s *CSVSink) Write(evt model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := evt.EventSourceName
	if name == "" {
		name = "unknown"
	}

	cf, ok := s.files[name]
	if !ok {
		fp := filepath.Join(s.outputDir, fmt.Sprintf("%s.csv", name))
		_, statErr := os.Stat(fp)
		exists := !os.IsNotExist(statErr)

		f, err := os.OpenFile(fp, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open csv file %s: %w", fp, err)
		}

		w := csv.NewWriter(f)
		if !exists {
			if err := w.Write(csvHeader); err != nil {
				f.Close()
				return fmt.Errorf("failed to write csv header for %s: %w", fp, err)
			}
			w.Flush()
			if err := w.Error(); err != nil {
				f.Close()
				return fmt.Errorf("failed to flush csv header for %s: %w", fp, err)
			}
		}

		cf = &csvFile{file: f, writer: w}
		s.files[name] = cf
	}

	to := ""
	if evt.Transaction.To != nil {
		to = *evt.Transaction.To
	}
	row := []string{
		name,
		strconv.FormatUint(evt.ChainID, 10),
		strconv.FormatUint(evt.Block.Number, 10),
		strconv.FormatUint(evt.Block.Timestamp, 10),
		strconv.Itoa(evt.Log.LogIndex),
		evt.Log.Address,
		evt.Log.Topic(0), evt.Log.Topic(1), evt.Log.Topic(2), evt.Log.Topic(3),
		evt.Log.Data,
		evt.Log.TransactionHash,
		strconv.Itoa(evt.Log.TransactionIndex),
		evt.Transaction.From,
		to,
	}

	if err := cf.writer.Write(row); err != nil {
		return err
	}
	cf.writer.Flush()
	return cf.writer.Error()
}

// Close flushes and closes every open file. Safe to call once, at shutdown.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, cf := range s.files {
		cf.writer.Flush()
		if err := cf.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
