package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/observability"
)

// Ledger appends records as JSON lines to a local file.
// Thread-safe: concurrent writers are serialized so the chain stays linear.
type Ledger struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	last   string
	count  int
	logger *zap.Logger
}

// OpenLedger opens (or creates) the ledger at path and resumes the chain
// from its last record.
func OpenLedger(path string, logger *zap.Logger) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	records, err := ReadLedger(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := VerifyChain(records); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l := &Ledger{
		path:   path,
		file:   f,
		last:   genesisHash,
		count:  len(records),
		logger: observability.OrNop(logger).Named("audit"),
	}
	if len(records) > 0 {
		l.last = records[len(records)-1].Hash
	}
	return l, nil
}

// Write implements Sink.
func (l *Ledger) Write(_ context.Context, rec Record) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sealed, err := seal(rec, l.last)
	if err != nil {
		return rec, err
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return rec, fmt.Errorf("marshal record: %w", err)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return rec, fmt.Errorf("write %s: %w", l.path, err)
	}
	l.last = sealed.Hash
	l.count++
	l.logger.Debug("audit record appended",
		zap.String("id", sealed.ID),
		zap.String("session", sealed.SessionID),
		zap.Int("height", l.count))
	return sealed, nil
}

// Len returns the number of records in the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close implements Sink.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadLedger decodes every record in the file at path.
func ReadLedger(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Decode record by record; lines may be arbitrarily long.
	var records []Record
	dec := json.NewDecoder(bufio.NewReader(f))
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Verify checks the chain stored at path.
func Verify(path string) error {
	records, err := ReadLedger(path)
	if err != nil {
		return err
	}
	return VerifyChain(records)
}
