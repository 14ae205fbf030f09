// Package audit records every processed query in a write-only, hash-chained
// log. The analysis core never reads it back; sinks only append.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iyulab/siem-analyst/internal/config"
	"github.com/iyulab/siem-analyst/internal/model"
)

// ErrTampered is returned by Verify when the chain does not link up.
var ErrTampered = errors.New("audit chain broken")

// genesisHash is the PrevHash of the first record in a chain.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one audited query. Hash covers every other field, PrevHash
// included, so rewriting any record breaks every later link.
type Record struct {
	ID         string       `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	SessionID  string       `json:"session_id"`
	Query      string       `json:"query"`
	Intent     model.Intent `json:"intent"`
	Confidence float64      `json:"confidence"`
	TotalHits  int          `json:"total_hits"`
	RiskScore  int          `json:"risk_score"`
	Outcome    string       `json:"outcome"` // ok | search_failed | invalid_input
	PrevHash   string       `json:"prev_hash"`
	Hash       string       `json:"hash"`
}

// Sink accepts audit records. Write returns the record as stored, with its
// chain fields filled in.
type Sink interface {
	Write(ctx context.Context, rec Record) (Record, error)
	Close() error
}

// seal links rec to prev and computes its hash.
func seal(rec Record, prev string) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.PrevHash = prev
	h, err := hashOf(rec)
	if err != nil {
		return rec, err
	}
	rec.Hash = h
	return rec, nil
}

func hashOf(rec Record) (string, error) {
	rec.Hash = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain checks that every record's hash is intact and links to its
// predecessor.
func VerifyChain(records []Record) error {
	prev := genesisHash
	for i, rec := range records {
		if rec.PrevHash != prev {
			return fmt.Errorf("%w: record %d (%s) prev_hash mismatch", ErrTampered, i, rec.ID)
		}
		h, err := hashOf(rec)
		if err != nil {
			return err
		}
		if h != rec.Hash {
			return fmt.Errorf("%w: record %d (%s) hash mismatch", ErrTampered, i, rec.ID)
		}
		prev = rec.Hash
	}
	return nil
}

// Nop discards records.
type Nop struct{}

// Write implements Sink.
func (Nop) Write(_ context.Context, rec Record) (Record, error) { return rec, nil }

// Close implements Sink.
func (Nop) Close() error { return nil }

// Open builds the sink named in cfg.
func Open(cfg config.AuditConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Sink {
	case "file":
		return OpenLedger(cfg.Path, logger)
	case "nats":
		return ConnectNATS(cfg.NATSURL, cfg.Subject, logger)
	case "none", "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unsupported audit sink: %q", cfg.Sink)
}
